package auth

import "time"

// Role is reference data looked up by name.
type Role struct {
	ID   string
	Name RoleName
}

// User is the identity a credential belongs to. Each user holds exactly one role.
type User struct {
	ID        string
	RoleID    string
	Role      RoleName
	CreatedAt time.Time
}

// Credential binds an email to a salted password hash. Salt and hash never leave the auth boundary.
type Credential struct {
	ID           string
	Email        string
	PasswordSalt string
	PasswordHash string
	UserID       string
	CreatedAt    time.Time
}

// Principal is the request-scoped identity used to mint tokens and authorize calls.
type Principal struct {
	UserID string
	Email  string
	Role   RoleName
}

// HasRole reports whether the principal holds role.
func (p Principal) HasRole(role RoleName) bool {
	return p.Role == role
}

// TokenKind distinguishes short-lived access tokens from refresh tokens.
type TokenKind string

const (
	TokenAccess  TokenKind = "ACCESS"
	TokenRefresh TokenKind = "REFRESH"
)

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenInfo is the claim bundle returned by Validate.
type TokenInfo struct {
	Email string    `json:"email"`
	Role  RoleName  `json:"role"`
	Type  TokenKind `json:"type"`
}

// Profile is the registration payload forwarded to the user-profile service.
type Profile struct {
	Name      string `json:"name,omitempty"`
	Surname   string `json:"surname,omitempty"`
	Email     string `json:"email"`
	BirthDate string `json:"birthDate,omitempty"`
}

// Registration carries everything Register needs.
type Registration struct {
	Email       string
	Password    string
	Role        string
	Profile     Profile
	CallerToken string
}
