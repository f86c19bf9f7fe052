package auth

import "context"

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Credentials() CredentialStore
	Users() UserStore
	Roles() RoleStore
	// WithinTx runs fn against a transactional view of the store. Any error
	// returned by fn rolls back every write made through tx.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
	Ping(ctx context.Context) error
}

// CredentialStore owns the email to credential mapping.
type CredentialStore interface {
	// FindByEmail returns ErrNotFound when no credential exists.
	FindByEmail(ctx context.Context, email string) (*Credential, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	// Save assigns an ID on first save. A duplicate email yields ErrAlreadyExists.
	Save(ctx context.Context, c *Credential) (*Credential, error)
}

// UserStore manages users.
type UserStore interface {
	Save(ctx context.Context, u *User) (*User, error)
	Find(ctx context.Context, id string) (*User, error)
}

// RoleStore resolves role reference data.
type RoleStore interface {
	FindByName(ctx context.Context, name RoleName) (*Role, error)
}
