package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newCachedResolver(t *testing.T) (*Resolver, *MemoryStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewMemoryStore()
	return NewResolver(store, client), store, mr
}

func seedGrant(t *testing.T, store *MemoryStore) (userID, orgID string) {
	t.Helper()
	ctx := context.Background()
	if err := store.Permissions().Ensure(ctx, BuiltinPermissions()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	role := &Role{OrganizationID: "org-1", Name: "Sales", Code: "sales"}
	if err := store.Roles().Create(ctx, role); err != nil {
		t.Fatalf("Create role: %v", err)
	}
	if err := store.Permissions().SetForRole(ctx, role.ID, []string{PermLeadRead}); err != nil {
		t.Fatalf("SetForRole: %v", err)
	}
	if err := store.Roles().Assign(ctx, Assignment{UserID: "user-1", OrganizationID: "org-1", RoleID: role.ID, Active: true}); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	return "user-1", "org-1"
}

func TestResolverCachesResult(t *testing.T) {
	r, store, mr := newCachedResolver(t)
	userID, orgID := seedGrant(t, store)
	ctx := context.Background()

	codes, err := r.Resolve(ctx, userID, orgID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(codes) != 1 || codes[0] != PermLeadRead {
		t.Fatalf("unexpected codes: %v", codes)
	}

	// The cached entry answers even if the store changes underneath.
	if err := store.Roles().RemoveAssignment(ctx, userID, orgID, ""); err == nil {
		t.Fatal("sanity: removing unknown assignment should fail")
	}
	if mr.Keys() == nil {
		t.Fatal("expected cache entry in redis")
	}
	again, err := r.Resolve(ctx, userID, orgID)
	if err != nil {
		t.Fatalf("Resolve cached: %v", err)
	}
	if len(again) != 1 {
		t.Fatalf("unexpected cached codes: %v", again)
	}
}

func TestResolverInvalidateBumpsVersion(t *testing.T) {
	r, store, _ := newCachedResolver(t)
	userID, orgID := seedGrant(t, store)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, userID, orgID); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// Drop the grant, invalidate, and observe the change immediately.
	roleIDs, err := store.Roles().ActiveRoleIDs(ctx, userID, orgID)
	if err != nil || len(roleIDs) != 1 {
		t.Fatalf("ActiveRoleIDs: %v %v", roleIDs, err)
	}
	if err := store.Roles().RemoveAssignment(ctx, userID, orgID, roleIDs[0]); err != nil {
		t.Fatalf("RemoveAssignment: %v", err)
	}
	if err := r.Invalidate(ctx, orgID); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	codes, err := r.Resolve(ctx, userID, orgID)
	if err != nil {
		t.Fatalf("Resolve after invalidate: %v", err)
	}
	if len(codes) != 0 {
		t.Fatalf("stale grants served after invalidation: %v", codes)
	}
}

func TestResolverCacheFailureDegradesToStore(t *testing.T) {
	r, store, mr := newCachedResolver(t)
	userID, orgID := seedGrant(t, store)
	mr.Close()

	codes, err := r.Resolve(context.Background(), userID, orgID)
	if err != nil {
		t.Fatalf("Resolve with dead cache: %v", err)
	}
	if len(codes) != 1 {
		t.Fatalf("unexpected codes: %v", codes)
	}
}

func TestResolverWithoutCache(t *testing.T) {
	store := NewMemoryStore()
	r := NewResolver(store, nil)
	userID, orgID := seedGrant(t, store)

	if err := r.Authorize(context.Background(), userID, orgID, PermLeadRead); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	err := r.Authorize(context.Background(), userID, orgID, PermInvoiceApprove)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if err := r.Invalidate(context.Background(), orgID); err != nil {
		t.Fatalf("Invalidate without cache: %v", err)
	}
}

// mutatingStore runs a hook right after ResolveForUser returns, before the
// resolver gets a chance to cache the result.
type mutatingStore struct {
	*MemoryStore
	afterResolve func()
}

func (s *mutatingStore) Permissions() PermissionStore {
	return &mutatingPerms{PermissionStore: s.MemoryStore.Permissions(), store: s}
}

type mutatingPerms struct {
	PermissionStore
	store *mutatingStore
}

func (p *mutatingPerms) ResolveForUser(ctx context.Context, userID, orgID string) ([]string, error) {
	codes, err := p.PermissionStore.ResolveForUser(ctx, userID, orgID)
	if p.store.afterResolve != nil {
		p.store.afterResolve()
	}
	return codes, err
}

func TestResolverInvalidationDuringResolveWins(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mem := NewMemoryStore()
	userID, orgID := seedGrant(t, mem)
	store := &mutatingStore{MemoryStore: mem}
	r := NewResolver(store, client)
	ctx := context.Background()

	// The grant is revoked and the cache invalidated while the first Resolve
	// is between its store read and its cache write. The entry it writes must
	// land under the old version, where no later reader looks.
	store.afterResolve = func() {
		store.afterResolve = nil
		roleIDs, err := mem.Roles().ActiveRoleIDs(ctx, userID, orgID)
		if err != nil || len(roleIDs) != 1 {
			t.Fatalf("ActiveRoleIDs: %v %v", roleIDs, err)
		}
		if err := mem.Roles().RemoveAssignment(ctx, userID, orgID, roleIDs[0]); err != nil {
			t.Fatalf("RemoveAssignment: %v", err)
		}
		if err := r.Invalidate(ctx, orgID); err != nil {
			t.Fatalf("Invalidate: %v", err)
		}
	}

	codes, err := r.Resolve(ctx, userID, orgID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(codes) != 1 {
		t.Fatalf("first Resolve should see the pre-revocation grant, got %v", codes)
	}

	after, err := r.Resolve(ctx, userID, orgID)
	if err != nil {
		t.Fatalf("Resolve after concurrent invalidation: %v", err)
	}
	if len(after) != 0 {
		t.Fatalf("revoked grants served from cache: %v", after)
	}
}
