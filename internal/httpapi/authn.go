package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"qazna.org/authservice/internal/auth"
	"qazna.org/authservice/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var errNoBearer = errors.New("missing bearer token")

// Authenticator resolves the principal behind an access token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Principal, error)
}

// RequestAuthenticator installs the principal of a valid bearer token into the
// request context. Requests without a usable token continue unauthenticated;
// handlers that need identity reject them.
func RequestAuthenticator(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := extractBearerToken(r.Header.Get(authHeader))
			if err != nil || auth.IsAuthenticated(r.Context()) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := auth.ContextWithToken(r.Context(), token)
			principal, err := authn.Authenticate(ctx, token)
			if err != nil {
				obs.Logger().Debug("bearer token rejected",
					zap.String("request_id", RequestIDFromContext(ctx)),
					zap.String("path", r.URL.Path),
					zap.Error(err))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			ctx = auth.ContextWithPrincipal(ctx, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errNoBearer
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errNoBearer
	}
	return token, nil
}
