package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"qazna.org/authservice/internal/auth"
)

const (
	roleKeyPrefix  = "authservice:role:"
	defaultRoleTTL = 10 * time.Minute
)

// RoleCache is a read-through auth.RoleStore. Cache failures fall back to the underlying store.
type RoleCache struct {
	next   auth.RoleStore
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewRoleCache decorates next with cache.
func NewRoleCache(next auth.RoleStore, cache Cache, ttl time.Duration, logger *zap.Logger) *RoleCache {
	if ttl <= 0 {
		ttl = defaultRoleTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleCache{next: next, cache: cache, ttl: ttl, logger: logger}
}

type cachedRole struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *RoleCache) FindByName(ctx context.Context, name auth.RoleName) (*auth.Role, error) {
	key := roleKeyPrefix + name.String()
	data, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		c.logger.Warn("role cache get failed", zap.String("key", key), zap.Error(err))
	case data != nil:
		var cr cachedRole
		if err := json.Unmarshal(data, &cr); err == nil && cr.ID != "" {
			return &auth.Role{ID: cr.ID, Name: auth.RoleName(cr.Name)}, nil
		}
		c.logger.Warn("role cache entry is corrupt", zap.String("key", key))
	}

	role, err := c.next.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(cachedRole{ID: role.ID, Name: role.Name.String()})
	if err == nil {
		err = c.cache.Set(ctx, key, payload, c.ttl)
	}
	if err != nil {
		c.logger.Warn("role cache set failed", zap.String("key", key), zap.Error(err))
	}
	return role, nil
}

// Store wraps an auth.Store so that role lookups outside transactions go through the cache.
type Store struct {
	auth.Store
	roles *RoleCache
}

// Wrap returns store with a cached role lookup.
func Wrap(store auth.Store, cache Cache, ttl time.Duration, logger *zap.Logger) *Store {
	return &Store{Store: store, roles: NewRoleCache(store.Roles(), cache, ttl, logger)}
}

func (s *Store) Roles() auth.RoleStore { return s.roles }
