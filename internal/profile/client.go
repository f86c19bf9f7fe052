// Package profile talks to the downstream user-profile service.
package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"qazna.org/authservice/internal/auth"
	"qazna.org/authservice/internal/breaker"
)

const maxResponseBytes = 1 << 20

// ErrRejected means the profile service answered but did not confirm the profile.
var ErrRejected = errors.New("profile: request rejected")

// Config captures how to reach the profile service.
type Config struct {
	BaseURL string
	Path    string
	Timeout time.Duration
	Client  *http.Client
	Breaker *breaker.Breaker
	Logger  *zap.Logger
}

// Client creates user profiles through the profile service. Every call runs under the breaker.
type Client struct {
	endpoint string
	client   *http.Client
	breaker  *breaker.Breaker
	logger   *zap.Logger
}

// User mirrors the profile service representation of a user.
type User struct {
	ID        int64           `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Surname   string          `json:"surname,omitempty"`
	Email     string          `json:"email"`
	BirthDate string          `json:"birthDate,omitempty"`
	Cards     json.RawMessage `json:"cards,omitempty"`
}

// NewClient builds a profile client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("profile: base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("profile: invalid base url: %w", err)
	}
	if cfg.Breaker == nil {
		return nil, errors.New("profile: breaker is required")
	}
	path := strings.TrimSpace(cfg.Path)
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint: base + path,
		client:   hc,
		breaker:  cfg.Breaker,
		logger:   logger,
	}, nil
}

// CreateProfile posts the profile and returns the email confirmed by the service.
// While the breaker is open the call fails immediately with breaker.ErrOpen.
func (c *Client) CreateProfile(ctx context.Context, p auth.Profile, bearerToken string) (string, error) {
	body, err := json.Marshal(User{
		Name:      p.Name,
		Surname:   p.Surname,
		Email:     p.Email,
		BirthDate: p.BirthDate,
	})
	if err != nil {
		return "", fmt.Errorf("encode profile payload: %w", err)
	}
	email, err := breaker.Execute(ctx, c.breaker, func(ctx context.Context) (string, error) {
		return c.post(ctx, body, bearerToken)
	})
	if err != nil {
		c.logger.Debug("profile call failed",
			zap.String("endpoint", c.endpoint),
			zap.Stringer("breaker_state", c.breaker.State()),
			zap.Error(err))
		return "", err
	}
	return email, nil
}

func (c *Client) post(ctx context.Context, body []byte, bearerToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create profile request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token := strings.TrimSpace(bearerToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read profile response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	var created User
	if err := json.Unmarshal(data, &created); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrRejected, err)
	}
	email := strings.TrimSpace(created.Email)
	if email == "" {
		return "", fmt.Errorf("%w: response carries no email", ErrRejected)
	}
	return email, nil
}
