package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"qazna.org/authservice/internal/auth"
	"qazna.org/authservice/internal/obs"
)

const serviceName = "authservice"

// AuthService is the token lifecycle the HTTP layer exposes.
type AuthService interface {
	Authenticator
	Login(ctx context.Context, email, password string) (auth.TokenPair, error)
	Register(ctx context.Context, reg auth.Registration) error
	Validate(ctx context.Context, token string) (auth.TokenInfo, error)
	Refresh(ctx context.Context, token string) (auth.TokenPair, error)
}

// ReadyProbe: простая проверка готовности (например, ping БД).
type ReadyProbe interface {
	Check(ctx context.Context) error
}

// ReadyFunc adapts a function to ReadyProbe.
type ReadyFunc func(ctx context.Context) error

func (f ReadyFunc) Check(ctx context.Context) error {
	if f == nil {
		return nil
	}
	return f(ctx)
}

// Options configures the HTTP surface.
type Options struct {
	Service      AuthService
	Ready        ReadyProbe
	Version      string
	RateLimiter  *RateLimiter
	MaxBodyBytes int64
}

// API: HTTP слой.
type API struct {
	mux          *http.ServeMux
	svc          AuthService
	ready        ReadyProbe
	version      string
	limiter      *RateLimiter
	maxBodyBytes int64
}

func New(opts Options) *API {
	a := &API{
		mux:          http.NewServeMux(),
		svc:          opts.Service,
		ready:        opts.Ready,
		version:      opts.Version,
		limiter:      opts.RateLimiter,
		maxBodyBytes: opts.MaxBodyBytes,
	}
	if a.ready == nil {
		a.ready = ReadyFunc(nil)
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = 1 << 20
	}

	// health/ready
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	for _, prefix := range []string{"/auth", "/api/v1/auth"} {
		a.mux.HandleFunc(prefix+"/login", a.handleLogin)
		a.mux.HandleFunc(prefix+"/register", a.handleRegister)
		a.mux.HandleFunc(prefix+"/validate", a.handleValidate)
		a.mux.HandleFunc(prefix+"/refresh", a.handleRefresh)
		a.mux.HandleFunc(prefix+"/me", a.handleMe)
	}

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	return a
}

// Handler returns the mux wrapped in the full middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	if a.svc != nil {
		h = RequestAuthenticator(a.svc)(h)
	}
	h = MaxBodyBytes(h, a.maxBodyBytes)
	if a.limiter != nil {
		h = a.limiter.Middleware(h)
	}
	h = SecurityHeaders(h)
	h = CORS(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.ready.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
