package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const resolverCacheTTL = 10 * time.Minute

// Resolver answers "does this user hold this permission in this organization".
// Resolution is a single query over active assignments; results are cached in
// Redis behind a per-organization version counter so that role mutations can
// invalidate every cached entry for a tenant with one INCR, before the
// mutation is acknowledged.
type Resolver struct {
	store Store
	cache *redis.Client
}

// NewResolver builds a resolver. cache may be nil, in which case every call
// hits the database directly.
func NewResolver(store Store, cache *redis.Client) *Resolver {
	return &Resolver{store: store, cache: cache}
}

// Resolve returns the union of permission codes granted to the user inside
// the organization. Cache failures degrade to a direct lookup.
func (r *Resolver) Resolve(ctx context.Context, userID, orgID string) ([]string, error) {
	if userID == "" || orgID == "" {
		return nil, ErrInvalidInput
	}
	if r.cache == nil {
		return r.store.Permissions().ResolveForUser(ctx, userID, orgID)
	}

	// The version is read once, before the store query. An invalidation that
	// lands between the query and the Set below bumps the version, so the
	// entry written here sits under a key no later reader consults.
	key, keyErr := r.cacheKey(ctx, userID, orgID)
	if keyErr == nil {
		raw, getErr := r.cache.Get(ctx, key).Bytes()
		if getErr == nil {
			var codes []string
			if json.Unmarshal(raw, &codes) == nil {
				return codes, nil
			}
		}
	}

	codes, err := r.store.Permissions().ResolveForUser(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	if keyErr == nil {
		if raw, mErr := json.Marshal(codes); mErr == nil {
			_ = r.cache.Set(ctx, key, raw, resolverCacheTTL).Err()
		}
	}
	return codes, nil
}

// Authorize checks one permission. Missing permission is ErrPermissionDenied;
// absence of any assignment in the organization is indistinguishable from an
// empty grant set.
func (r *Resolver) Authorize(ctx context.Context, userID, orgID, permission string) error {
	codes, err := r.Resolve(ctx, userID, orgID)
	if err != nil {
		return err
	}
	for _, c := range codes {
		if c == permission {
			return nil
		}
	}
	return ErrPermissionDenied
}

// Invalidate bumps the organization's cache version. It must succeed, or at
// least be attempted, before a role mutation is acknowledged; a cache error
// here is returned to the caller rather than swallowed, because serving stale
// grants after an acknowledged revocation is worse than failing the mutation.
func (r *Resolver) Invalidate(ctx context.Context, orgID string) error {
	if r.cache == nil {
		return nil
	}
	if err := r.cache.Incr(ctx, versionKey(orgID)).Err(); err != nil {
		return fmt.Errorf("bump permission cache version: %w", err)
	}
	return nil
}

func (r *Resolver) cacheKey(ctx context.Context, userID, orgID string) (string, error) {
	ver, err := r.cache.Get(ctx, versionKey(orgID)).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return "", err
		}
		ver = 0
	}
	return fmt.Sprintf("perm:%s:%d:%s", orgID, ver, userID), nil
}

func versionKey(orgID string) string {
	return "permver:" + orgID
}
