package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"qazna.org/authservice/internal/auth"
	"qazna.org/authservice/internal/mocks"
)

type apiClient struct {
	baseURL  string
	client   *http.Client
	codec    *auth.TokenCodec
	profiles *mocks.MockProfileCreator
	t        *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	ctrl := gomock.NewController(t)
	profiles := mocks.NewMockProfileCreator(ctrl)
	hasher, err := auth.NewPasswordHasher(auth.DefaultHashAlgorithm)
	require.NoError(t, err)
	codec, err := auth.NewTokenCodec(bytes.Repeat([]byte("k"), 32))
	require.NoError(t, err)
	store := auth.NewMemoryStore()
	svc, err := auth.NewService(store, hasher, codec, profiles)
	require.NoError(t, err)

	api := New(Options{
		Service:     svc,
		Ready:       ReadyFunc(svc.Ready),
		Version:     "test",
		RateLimiter: NewRateLimiter(100, 100),
	})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL:  srv.URL,
		client:   srv.Client(),
		codec:    codec,
		profiles: profiles,
		t:        t,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(c.t, err)
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) expectProfiles(times int) {
	c.profiles.EXPECT().
		CreateProfile(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p auth.Profile, _ string) (string, error) {
			return p.Email, nil
		}).
		Times(times)
}

func (c *apiClient) adminToken() string {
	c.t.Helper()
	token, err := c.codec.Issue(auth.Principal{Email: "root@x.com", Role: auth.RoleAdmin}, auth.TokenAccess)
	require.NoError(c.t, err)
	return token
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func bearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestAuthFlow(t *testing.T) {
	c := newTestAPI(t)
	c.expectProfiles(1)

	resp := c.post("/auth/register", map[string]string{
		"email":     "a@x.com",
		"password":  "secret1",
		"role":      "USER",
		"name":      "Ann",
		"birthDate": "1990-04-01",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = c.post("/auth/login", map[string]string{"email": "a@x.com", "password": "secret1"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pair := decodeBody[auth.TokenPair](t, resp)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	resp = c.post("/auth/validate", map[string]string{"token": pair.AccessToken}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	info := decodeBody[auth.TokenInfo](t, resp)
	assert.Equal(t, auth.TokenInfo{Email: "a@x.com", Role: auth.RoleUser, Type: auth.TokenAccess}, info)

	resp = c.post("/api/v1/auth/refresh", map[string]string{"token": pair.RefreshToken}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	refreshed := decodeBody[auth.TokenPair](t, resp)
	assert.NotEmpty(t, refreshed.AccessToken)

	resp = c.do(http.MethodGet, "/auth/me", nil, bearerHeader(refreshed.AccessToken))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decodeBody[principalResponse](t, resp)
	assert.Equal(t, "a@x.com", me.Email)
	assert.Equal(t, auth.RoleUser, me.Role)
	assert.NotEmpty(t, me.UserID)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	c := newTestAPI(t)
	c.expectProfiles(1)

	resp := c.post("/auth/register", map[string]string{"email": "a@x.com", "password": "secret1", "role": "USER"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = c.post("/auth/login", map[string]string{"email": "a@x.com", "password": "secret1"}, nil)
	pair := decodeBody[auth.TokenPair](t, resp)

	resp = c.post("/auth/refresh", map[string]string{"token": pair.AccessToken}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody[errorBody](t, resp)
	assert.Equal(t, "access token cannot be used to refresh tokens", body.Message)
}

func TestLoginErrorsDoNotDistinguish(t *testing.T) {
	c := newTestAPI(t)
	c.expectProfiles(1)

	resp := c.post("/auth/register", map[string]string{"email": "a@x.com", "password": "secret1", "role": "USER"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	unknown := c.post("/auth/login", map[string]string{"email": "nobody@x.com", "password": "secret1"}, nil)
	wrong := c.post("/auth/login", map[string]string{"email": "a@x.com", "password": "secret2"}, nil)
	require.Equal(t, http.StatusNotFound, unknown.StatusCode)
	require.Equal(t, http.StatusNotFound, wrong.StatusCode)

	b1 := decodeBody[errorBody](t, unknown)
	b2 := decodeBody[errorBody](t, wrong)
	assert.Equal(t, b1.Message, b2.Message)
	assert.NotEqual(t, b1.ErrorID, b2.ErrorID)
	assert.Equal(t, "/auth/login", b1.Path)
	assert.NotEmpty(t, b1.RequestID)
}

func TestRegisterStatusMapping(t *testing.T) {
	c := newTestAPI(t)
	c.expectProfiles(2)

	resp := c.post("/auth/register", map[string]string{"email": "admin@x.com", "password": "secret1", "role": "ADMIN"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = c.post("/auth/register", map[string]string{"email": "admin@x.com", "password": "secret1", "role": "ADMIN"},
		bearerHeader(c.adminToken()))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = c.post("/auth/register", map[string]string{"email": "admin@x.com", "password": "secret1", "role": "USER"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = c.post("/auth/register", map[string]string{"email": "b@x.com", "password": "secret1", "role": "ROOT"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = c.post("/auth/register", map[string]string{"email": "c@x.com", "password": "secret1", "role": "user"}, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestRegisterProfileUnavailable(t *testing.T) {
	c := newTestAPI(t)
	c.profiles.EXPECT().
		CreateProfile(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", errors.New("connection refused"))

	resp := c.post("/auth/register", map[string]string{"email": "a@x.com", "password": "secret1", "role": "USER"}, nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decodeBody[errorBody](t, resp)
	assert.Equal(t, "user service is temporarily unavailable", body.Message)

	resp = c.post("/auth/login", map[string]string{"email": "a@x.com", "password": "secret1"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestValidationErrorList(t *testing.T) {
	c := newTestAPI(t)

	resp := c.post("/auth/register", map[string]string{
		"email":     "not-an-email",
		"password":  "123",
		"birthDate": "01.04.1990",
	}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	errs := decodeBody[[]fieldError](t, resp)
	fields := make([]string, 0, len(errs))
	for _, fe := range errs {
		fields = append(fields, fe.Field)
		switch fe.Field {
		case "email":
			assert.Equal(t, "not-an-email", fe.RejectedValue)
		case "password":
			assert.Nil(t, fe.RejectedValue)
		}
	}
	assert.Equal(t, []string{"birthDate", "email", "password", "role"}, fields)
}

func TestMalformedBody(t *testing.T) {
	c := newTestAPI(t)

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/auth/login", bytes.NewBufferString(`{"email":`))
	require.NoError(t, err)
	resp, err := c.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2 := c.post("/auth/login", map[string]any{"email": "a@x.com", "password": "secret1", "extra": 1}, nil)
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestValidateErrors(t *testing.T) {
	c := newTestAPI(t)

	resp := c.post("/auth/validate", map[string]string{"token": "garbage"}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	expired, err := auth.NewTokenCodec(bytes.Repeat([]byte("k"), 32),
		auth.WithCodecClock(func() time.Time { return time.Now().Add(-24 * time.Hour) }))
	require.NoError(t, err)
	token, err := expired.Issue(auth.Principal{Email: "a@x.com", Role: auth.RoleUser}, auth.TokenAccess)
	require.NoError(t, err)

	resp = c.post("/auth/validate", map[string]string{"token": token}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody[errorBody](t, resp)
	assert.Equal(t, "token has expired", body.Message)
}

func TestMeRequiresAuthentication(t *testing.T) {
	c := newTestAPI(t)

	resp := c.do(http.MethodGet, "/auth/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = c.do(http.MethodGet, "/auth/me", nil, bearerHeader("garbage"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMethodNotAllowedAndNotFound(t *testing.T) {
	c := newTestAPI(t)

	resp := c.do(http.MethodGet, "/auth/login", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.MethodPost, resp.Header.Get("Allow"))

	resp = c.do(http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndReady(t *testing.T) {
	c := newTestAPI(t)

	resp := c.do(http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decodeBody[map[string]any](t, resp)
	assert.Equal(t, serviceName, health["service"])
	assert.Equal(t, "test", health["version"])
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp = c.do(http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	failing := New(Options{Ready: ReadyFunc(func(context.Context) error { return errors.New("db down") })})
	rr := httptest.NewRecorder()
	failing.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
