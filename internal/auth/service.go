package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ProfileCreator creates the downstream user profile for a freshly registered account.
// It returns the email echoed back by the profile service.
type ProfileCreator interface {
	CreateProfile(ctx context.Context, profile Profile, bearerToken string) (string, error)
}

// Service orchestrates login, registration, token validation and refresh.
type Service struct {
	store    Store
	hasher   *PasswordHasher
	codec    *TokenCodec
	profiles ProfileCreator
	logger   *zap.Logger
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithLogger sets the logger used for diagnostics. Secrets are never logged.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) error {
		if l != nil {
			s.logger = l
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, hasher *PasswordHasher, codec *TokenCodec, profiles ProfileCreator, opts ...ServiceOption) (*Service, error) {
	switch {
	case store == nil:
		return nil, errors.New("auth: store is required")
	case hasher == nil:
		return nil, errors.New("auth: password hasher is required")
	case codec == nil:
		return nil, errors.New("auth: token codec is required")
	case profiles == nil:
		return nil, errors.New("auth: profile creator is required")
	}
	svc := &Service{
		store:    store,
		hasher:   hasher,
		codec:    codec,
		profiles: profiles,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Codec exposes the token codec used by the service.
func (s *Service) Codec() *TokenCodec { return s.codec }

// Login verifies the password and issues a token pair. Unknown email and wrong
// password produce the same NotFound error.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, error) {
	email = normalizeEmail(email)
	cred, err := s.store.Credentials().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, errBadCredentials()
		}
		return TokenPair{}, fmt.Errorf("auth: find credential: %w", err)
	}
	if !s.hasher.Matches(password, cred.PasswordSalt, cred.PasswordHash) {
		return TokenPair{}, errBadCredentials()
	}
	principal, err := s.principalFor(ctx, cred)
	if err != nil {
		return TokenPair{}, err
	}
	return s.codec.IssuePair(principal)
}

// Register creates a user, its credential and its downstream profile in one
// transaction. Only an ADMIN caller may register an ADMIN.
func (s *Service) Register(ctx context.Context, reg Registration) error {
	email := normalizeEmail(reg.Email)
	if email == "" {
		return invalidf("email is required")
	}
	if reg.Password == "" {
		return invalidf("password is required")
	}

	roleName, err := ParseRoleName(reg.Role)
	if err != nil {
		return err
	}
	role, err := s.store.Roles().FindByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFoundf("role %s not found", roleName)
		}
		return fmt.Errorf("auth: find role: %w", err)
	}

	creator, err := s.callerRole(reg.CallerToken)
	if err != nil {
		return err
	}
	if !creator.CanAssign(role.Name) {
		return newError(ErrForbidden, nil, "only %s can register %s users", RoleAdmin, role.Name)
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		exists, err := tx.Credentials().ExistsByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("auth: check email: %w", err)
		}
		if exists {
			return newError(ErrAlreadyExists, nil, "email %s is already in use", email)
		}

		user, err := tx.Users().Save(ctx, &User{RoleID: role.ID, Role: role.Name})
		if err != nil {
			return fmt.Errorf("auth: save user: %w", err)
		}
		salt, err := s.hasher.GenerateSalt()
		if err != nil {
			return err
		}
		_, err = tx.Credentials().Save(ctx, &Credential{
			Email:        email,
			PasswordSalt: salt,
			PasswordHash: s.hasher.Encode(reg.Password, salt),
			UserID:       user.ID,
		})
		if err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				return newError(ErrAlreadyExists, err, "email %s is already in use", email)
			}
			return fmt.Errorf("auth: save credential: %w", err)
		}

		profile := reg.Profile
		profile.Email = email
		if _, err := s.profiles.CreateProfile(ctx, profile, strings.TrimSpace(reg.CallerToken)); err != nil {
			s.logger.Warn("profile creation failed", zap.String("email", email), zap.Error(err))
			return newError(ErrDependencyUnavailable, err, "user service is temporarily unavailable")
		}
		return nil
	})
	if _, ok := AsError(err); !ok && errors.Is(err, ErrAlreadyExists) {
		// a concurrent registration committed the same email first
		return newError(ErrAlreadyExists, err, "email %s is already in use", email)
	}
	return err
}

// Validate checks a token and returns its claim bundle.
func (s *Service) Validate(ctx context.Context, token string) (TokenInfo, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return TokenInfo{}, invalidf("token is missing or empty")
	}
	claims, err := s.codec.Parse(token)
	if err != nil {
		return TokenInfo{}, newError(ErrInvalid, err, "token is malformed")
	}
	if s.codec.expired(claims) {
		return TokenInfo{}, invalidf("token has expired")
	}
	email := strings.TrimSpace(claims.Subject)
	role := RoleName(strings.TrimSpace(claims.Role))
	kind := TokenKind(strings.TrimSpace(claims.Type))
	if email == "" || role == "" || kind == "" {
		return TokenInfo{}, invalidf("token is missing required claims")
	}
	if !role.Valid() || (kind != TokenAccess && kind != TokenRefresh) {
		return TokenInfo{}, invalidf("token carries unknown claims")
	}
	if !s.codec.IsValid(token, email, role) {
		return TokenInfo{}, invalidf("token is invalid")
	}
	return TokenInfo{Email: email, Role: role, Type: kind}, nil
}

// Refresh exchanges a valid REFRESH token for a new token pair.
func (s *Service) Refresh(ctx context.Context, token string) (TokenPair, error) {
	claims, err := s.codec.Parse(token)
	if err != nil {
		return TokenPair{}, newError(ErrInvalid, err, "refresh token is invalid")
	}
	email := claims.Subject
	if !s.codec.IsValid(token, email, RoleName(claims.Role)) {
		return TokenPair{}, invalidf("refresh token is invalid")
	}
	if !s.codec.IsRefreshToken(token) {
		return TokenPair{}, invalidf("access token cannot be used to refresh tokens")
	}
	cred, err := s.store.Credentials().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, notFoundf("user with email %s not found", email)
		}
		return TokenPair{}, fmt.Errorf("auth: find credential: %w", err)
	}
	principal, err := s.principalFor(ctx, cred)
	if err != nil {
		return TokenPair{}, err
	}
	return s.codec.IssuePair(principal)
}

// Authenticate resolves the principal behind a fully valid ACCESS token.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := s.verifyAccess(token)
	if err != nil {
		return Principal{}, err
	}
	cred, err := s.store.Credentials().FindByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, notFoundf("user with email %s not found", claims.Subject)
		}
		return Principal{}, fmt.Errorf("auth: find credential: %w", err)
	}
	return s.principalFor(ctx, cred)
}

// Ready reports whether the backing store is reachable.
func (s *Service) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// callerRole returns USER for anonymous callers. A present token must be a
// fully valid ACCESS token before its role claim is trusted.
func (s *Service) callerRole(token string) (RoleName, error) {
	if strings.TrimSpace(token) == "" {
		return RoleUser, nil
	}
	claims, err := s.verifyAccess(token)
	if err != nil {
		return "", err
	}
	return RoleName(claims.Role), nil
}

func (s *Service) verifyAccess(token string) (*Claims, error) {
	claims, err := s.codec.Parse(token)
	if err != nil {
		return nil, newError(ErrInvalid, err, "bearer token is malformed")
	}
	if s.codec.expired(claims) {
		return nil, invalidf("bearer token has expired")
	}
	if TokenKind(claims.Type) != TokenAccess {
		return nil, invalidf("bearer token is not an access token")
	}
	role := RoleName(claims.Role)
	if !role.Valid() || !s.codec.IsValid(token, claims.Subject, role) {
		return nil, invalidf("bearer token is invalid")
	}
	return claims, nil
}

func (s *Service) principalFor(ctx context.Context, cred *Credential) (Principal, error) {
	user, err := s.store.Users().Find(ctx, cred.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, notFoundf("user with email %s not found", cred.Email)
		}
		return Principal{}, fmt.Errorf("auth: find user: %w", err)
	}
	return Principal{UserID: user.ID, Email: cred.Email, Role: user.Role}, nil
}

func errBadCredentials() error {
	return notFoundf("invalid email or password")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
