package auth

import (
	"context"
	"maps"
	"sync"
	"time"

	"qazna.org/authservice/internal/ids"
)

// MemoryStore is an in-process Store used when no database is configured and in tests.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	roles map[RoleName]Role
	users map[string]User
	creds map[string]Credential // keyed by email
}

func (st *memState) clone() *memState {
	return &memState{
		roles: maps.Clone(st.roles),
		users: maps.Clone(st.users),
		creds: maps.Clone(st.creds),
	}
}

// NewMemoryStore returns a store seeded with every known role.
func NewMemoryStore() *MemoryStore {
	st := &memState{
		roles: make(map[RoleName]Role),
		users: make(map[string]User),
		creds: make(map[string]Credential),
	}
	for _, name := range Roles() {
		st.roles[name] = Role{ID: ids.New(ids.Role), Name: name}
	}
	return &MemoryStore{state: st}
}

func (s *MemoryStore) view() *memView {
	return &memView{lock: &s.mu, state: func() *memState { return s.state }}
}

func (s *MemoryStore) Credentials() CredentialStore { return memCredentials{s.view()} }
func (s *MemoryStore) Users() UserStore             { return memUsers{s.view()} }
func (s *MemoryStore) Roles() RoleStore             { return memRoles{s.view()} }
func (s *MemoryStore) Ping(context.Context) error   { return nil }

// WithinTx runs fn against a private snapshot without holding the store lock,
// so slow work inside fn does not block other callers. Writes are applied on
// success; a credential email taken by a concurrent commit fails with ErrAlreadyExists.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	s.mu.Lock()
	base := s.state.clone()
	s.mu.Unlock()

	tx := &memTx{state: base.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(base, tx.snapshot())
}

// commit applies the entries of next that differ from base. Nothing is applied on conflict.
func (s *MemoryStore) commit(base, next *memState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for email, c := range next.creds {
		if prev, ok := base.creds[email]; ok && prev == c {
			continue
		}
		if cur, ok := s.state.creds[email]; ok && cur.ID != c.ID {
			return ErrAlreadyExists
		}
	}
	for id, u := range next.users {
		if prev, ok := base.users[id]; !ok || prev != u {
			s.state.users[id] = u
		}
	}
	for email, c := range next.creds {
		if prev, ok := base.creds[email]; !ok || prev != c {
			s.state.creds[email] = c
		}
	}
	return nil
}

type memTx struct {
	mu    sync.Mutex
	state *memState
}

func (t *memTx) view() *memView {
	return &memView{lock: &t.mu, state: func() *memState { return t.state }}
}

func (t *memTx) snapshot() *memState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *memTx) Credentials() CredentialStore { return memCredentials{t.view()} }
func (t *memTx) Users() UserStore             { return memUsers{t.view()} }
func (t *memTx) Roles() RoleStore             { return memRoles{t.view()} }
func (t *memTx) Ping(context.Context) error   { return nil }

func (t *memTx) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, t)
}

type memView struct {
	lock  sync.Locker
	state func() *memState
}

type memCredentials struct{ v *memView }

func (m memCredentials) FindByEmail(_ context.Context, email string) (*Credential, error) {
	m.v.lock.Lock()
	defer m.v.lock.Unlock()
	c, ok := m.v.state().creds[email]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m memCredentials) ExistsByEmail(_ context.Context, email string) (bool, error) {
	m.v.lock.Lock()
	defer m.v.lock.Unlock()
	_, ok := m.v.state().creds[email]
	return ok, nil
}

func (m memCredentials) Save(_ context.Context, c *Credential) (*Credential, error) {
	m.v.lock.Lock()
	defer m.v.lock.Unlock()
	st := m.v.state()
	if existing, ok := st.creds[c.Email]; ok && existing.ID != c.ID {
		return nil, ErrAlreadyExists
	}
	saved := *c
	if saved.ID == "" {
		now := time.Now().UTC()
		saved.ID = ids.NewAt(ids.Credential, now)
		saved.CreatedAt = now
	}
	st.creds[saved.Email] = saved
	return &saved, nil
}

type memUsers struct{ v *memView }

func (m memUsers) Save(_ context.Context, u *User) (*User, error) {
	m.v.lock.Lock()
	defer m.v.lock.Unlock()
	saved := *u
	if saved.ID == "" {
		now := time.Now().UTC()
		saved.ID = ids.NewAt(ids.User, now)
		saved.CreatedAt = now
	}
	m.v.state().users[saved.ID] = saved
	return &saved, nil
}

func (m memUsers) Find(_ context.Context, id string) (*User, error) {
	m.v.lock.Lock()
	defer m.v.lock.Unlock()
	u, ok := m.v.state().users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

type memRoles struct{ v *memView }

func (m memRoles) FindByName(_ context.Context, name RoleName) (*Role, error) {
	m.v.lock.Lock()
	defer m.v.lock.Unlock()
	r, ok := m.v.state().roles[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}
