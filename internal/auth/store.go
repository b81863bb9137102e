package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Organizations() OrganizationStore
	Users() UserStore
	Roles() RoleStore
	Permissions() PermissionStore
	Sessions() SessionStore
	MFA() MFAStore
	PasswordResets() PasswordResetStore

	// Bootstrap creates a tenant in one atomic step: the organization, its
	// first user, the owner role with its grants, and the owner assignment.
	// A failure anywhere leaves no partial tenant behind.
	Bootstrap(ctx context.Context, b *TenantBootstrap) error
}

// TenantBootstrap is the initial state of a new tenant.
type TenantBootstrap struct {
	Organization *Organization
	Owner        *User
	OwnerRole    *Role
	RoleCodes    []string
	Assignment   Assignment
}

// OrganizationStore manages tenants.
type OrganizationStore interface {
	Create(ctx context.Context, org *Organization) error
	Find(ctx context.Context, id string) (*Organization, error)
	List(ctx context.Context) ([]*Organization, error)
}

// UserStore manages user records including credential and lockout state.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	ListByOrg(ctx context.Context, orgID string) ([]*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateStatus(ctx context.Context, userID string, status UserStatus) error
	SetMFA(ctx context.Context, userID string, state MFAState, secret string) error

	// RecordFailedLogin atomically increments the failure counter and, when
	// the threshold is crossed, opens the lockout window in the same
	// statement. Concurrent failed logins must not lose increments.
	RecordFailedLogin(ctx context.Context, userID string, threshold int, lockFor time.Duration) (attempts int, lockedUntil *time.Time, err error)

	// ResetLoginState zeroes the failure counter, clears any lockout and
	// stamps the successful login.
	ResetLoginState(ctx context.Context, userID, ip string) error
}

// RoleStore manages roles and their per-organization assignments.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	ListByOrg(ctx context.Context, orgID string) ([]*Role, error)
	Assign(ctx context.Context, a Assignment) error
	RemoveAssignment(ctx context.Context, userID, orgID, roleID string) error
	ActiveRoleIDs(ctx context.Context, userID, orgID string) ([]string, error)
}

// PermissionStore manages the global permission catalog and role grants.
type PermissionStore interface {
	Ensure(ctx context.Context, perms []Permission) error
	List(ctx context.Context) ([]Permission, error)
	SetForRole(ctx context.Context, roleID string, codes []string) error
	PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error)

	// ResolveForUser returns the union of permission codes granted by the
	// user's active role assignments inside one organization only.
	ResolveForUser(ctx context.Context, userID, orgID string) ([]string, error)
}

// SessionStore manages refresh-token lineages.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Find(ctx context.Context, id string) (*Session, error)
	ListActive(ctx context.Context, userID string) ([]*Session, error)

	// Rotate performs the compare-and-swap at the heart of reuse detection:
	// the hash advances only if oldHash still matches and the session is
	// live. A live session with a different hash yields errRotationMismatch;
	// exactly one of two concurrent rotations can win.
	Rotate(ctx context.Context, id, oldHash, newHash string, extend time.Duration) (*Session, error)

	Revoke(ctx context.Context, userID, sessionID, reason string) error
	RevokeFamily(ctx context.Context, familyID, reason string) error
	RevokeAllForUser(ctx context.Context, userID, exceptSessionID, reason string) error

	// TrimOldest revokes everything beyond the keep newest live sessions.
	TrimOldest(ctx context.Context, userID string, keep int) error
}

// MFAStore manages recovery codes and pending login challenges.
type MFAStore interface {
	ReplaceRecoveryCodes(ctx context.Context, userID string, codeHashes []string) error
	ConsumeRecoveryCode(ctx context.Context, userID, codeHash string) (bool, error)
	DeleteRecoveryCodes(ctx context.Context, userID string) error

	CreateChallenge(ctx context.Context, id, userID string, expiresAt time.Time) error

	// ConsumeChallenge marks a pending-login challenge used. A second consume
	// of the same id, or a consume past expiry, fails.
	ConsumeChallenge(ctx context.Context, id string) error
}

// PasswordResetStore manages single-use reset tokens.
type PasswordResetStore interface {
	// Create invalidates any outstanding tokens for the user before storing
	// the new one.
	Create(ctx context.Context, pr *PasswordReset) error
	Find(ctx context.Context, id string) (*PasswordReset, error)
	MarkUsed(ctx context.Context, id string) error
}
