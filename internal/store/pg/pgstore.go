// Package pg implements auth.Store on PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"qazna.org/authservice/internal/auth"
	"qazna.org/authservice/internal/ids"
)

const driverName = "pgx"

// PoolOptions tunes the connection pool.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Store implements auth.Store. A Store returned to a WithinTx callback runs every query in that transaction.
type Store struct {
	db *sqlx.DB
	q  sqlx.ExtContext
	tx *sqlx.Tx
}

var _ auth.Store = (*Store)(nil)

// Open connects to dsn and applies pool settings.
func Open(dsn string, opts PoolOptions) (*Store, error) {
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = opts.MaxOpenConns / 2
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 15 * time.Minute
	}
	if opts.ConnMaxIdleTime <= 0 {
		opts.ConnMaxIdleTime = 5 * time.Minute
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	return New(db), nil
}

// New wraps an existing handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, q: db}
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for migrations.
func (s *Store) DB() *sql.DB { return s.db.DB }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Credentials() auth.CredentialStore { return credentialStore{q: s.q} }
func (s *Store) Users() auth.UserStore             { return userStore{q: s.q} }
func (s *Store) Roles() auth.RoleStore             { return roleStore{q: s.q} }

// WithinTx runs fn in a database transaction. Nested calls reuse the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx auth.Store) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pg: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, &Store{db: s.db, q: tx, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pg: commit: %w", err)
	}
	return nil
}

// Credential store ----------------------------------------------------------
type credentialRow struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	PasswordSalt string    `db:"password_salt"`
	PasswordHash string    `db:"password_hash"`
	UserID       string    `db:"user_id"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r credentialRow) toCredential() *auth.Credential {
	return &auth.Credential{
		ID:           r.ID,
		Email:        r.Email,
		PasswordSalt: r.PasswordSalt,
		PasswordHash: r.PasswordHash,
		UserID:       r.UserID,
		CreatedAt:    r.CreatedAt,
	}
}

type credentialStore struct{ q sqlx.ExtContext }

func (s credentialStore) FindByEmail(ctx context.Context, email string) (*auth.Credential, error) {
	var row credentialRow
	err := sqlx.GetContext(ctx, s.q, &row,
		`select id, email, password_salt, password_hash, user_id, created_at from credentials where email=$1`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return row.toCredential(), nil
}

func (s credentialStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, s.q, &exists, `select exists(select 1 from credentials where email=$1)`, email)
	return exists, err
}

// Save inserts new credentials. For existing ones only the hash is updated; the salt never changes.
func (s credentialStore) Save(ctx context.Context, c *auth.Credential) (*auth.Credential, error) {
	saved := *c
	if saved.ID != "" {
		res, err := s.q.ExecContext(ctx, `update credentials set password_hash=$2 where id=$1`, saved.ID, saved.PasswordHash)
		if err != nil {
			return nil, mapWriteErr(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, auth.ErrNotFound
		}
		return &saved, nil
	}
	saved.ID = ids.New(ids.Credential)
	err := s.q.QueryRowxContext(ctx,
		`insert into credentials(id, email, password_salt, password_hash, user_id) values($1,$2,$3,$4,$5) returning created_at`,
		saved.ID, saved.Email, saved.PasswordSalt, saved.PasswordHash, saved.UserID,
	).Scan(&saved.CreatedAt)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return &saved, nil
}

// User store ----------------------------------------------------------------
type userRow struct {
	ID        string    `db:"id"`
	RoleID    string    `db:"role_id"`
	Role      string    `db:"role"`
	CreatedAt time.Time `db:"created_at"`
}

type userStore struct{ q sqlx.ExtContext }

func (s userStore) Save(ctx context.Context, u *auth.User) (*auth.User, error) {
	saved := *u
	if saved.ID == "" {
		saved.ID = ids.New(ids.User)
	}
	err := s.q.QueryRowxContext(ctx,
		`insert into users(id, role_id) values($1,$2)
		 on conflict (id) do update set role_id = excluded.role_id
		 returning created_at`,
		saved.ID, saved.RoleID,
	).Scan(&saved.CreatedAt)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return &saved, nil
}

func (s userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	var row userRow
	err := sqlx.GetContext(ctx, s.q, &row,
		`select u.id, u.role_id, r.name as role, u.created_at
		   from users u join roles r on r.id = u.role_id
		  where u.id=$1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return &auth.User{ID: row.ID, RoleID: row.RoleID, Role: auth.RoleName(row.Role), CreatedAt: row.CreatedAt}, nil
}

// Role store ----------------------------------------------------------------
type roleStore struct{ q sqlx.ExtContext }

func (s roleStore) FindByName(ctx context.Context, name auth.RoleName) (*auth.Role, error) {
	var row struct {
		ID   string `db:"id"`
		Name string `db:"name"`
	}
	err := sqlx.GetContext(ctx, s.q, &row, `select id, name from roles where name=$1`, name.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return &auth.Role{ID: row.ID, Name: auth.RoleName(row.Name)}, nil
}

// mapWriteErr translates constraint violations into auth error kinds.
func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return fmt.Errorf("%w: %s", auth.ErrAlreadyExists, pgErr.ConstraintName)
	case pgerrcode.ForeignKeyViolation:
		return fmt.Errorf("%w: %s", auth.ErrNotFound, pgErr.ConstraintName)
	default:
		return err
	}
}
