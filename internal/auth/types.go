package auth

import "time"

// UserStatus enumerates account lifecycle states. Users are soft-deactivated,
// never physically deleted.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusInactive  UserStatus = "inactive"
)

// MFAState is an explicit tagged state so that "enabled with no secret" is
// unrepresentable in valid data.
type MFAState string

const (
	MFADisabled      MFAState = "disabled"
	MFAPendingEnable MFAState = "pending_enable"
	MFAEnabled       MFAState = "enabled"
)

// Organization is the tenant boundary. Every entity below except the global
// permission catalog is scoped by organization.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	OrgStatusActive   = "active"
	OrgStatusInactive = "inactive"
)

// User is a human account with its home organization, credential material and
// lockout counters.
type User struct {
	ID                  string     `json:"id"`
	OrganizationID      string     `json:"organization_id"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	Status              UserStatus `json:"status"`
	MFAState            MFAState   `json:"mfa_state"`
	MFASecret           string     `json:"-"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP         string     `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Locked reports whether the account lockout window is still open.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// Role groups permissions inside one organization. System roles (Owner) are
// seeded at registration and immutable.
type Role struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Code           string    `json:"code"`
	HierarchyLevel int       `json:"hierarchy_level"`
	System         bool      `json:"is_system"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Permission is a global, immutable capability identified by a
// "resource.action" code.
type Permission struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Assignment grants a user a role in one organization. Permission resolution
// only walks active assignments and never crosses the organization boundary.
type Assignment struct {
	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id"`
	RoleID         string    `json:"role_id"`
	Active         bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// Session is a refresh-token lineage. The row keeps only the hash of the
// current secret; presenting a superseded secret is treated as theft and
// revokes the whole family.
type Session struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	OrganizationID string     `json:"organization_id"`
	FamilyID       string     `json:"-"`
	TokenHash      string     `json:"-"`
	DeviceName     string     `json:"device_name,omitempty"`
	IPAddress      string     `json:"ip_address,omitempty"`
	UserAgent      string     `json:"-"`
	IssuedAt       time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
	RevokedAt      *time.Time `json:"-"`
	RevokedReason  string     `json:"-"`
}

// Live reports whether the session can still be rotated.
func (s *Session) Live(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// PasswordReset is a single-use, hashed reset token.
type PasswordReset struct {
	ID        string
	UserID    string
	TokenHash string
	IPAddress string
	UserAgent string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// TokenPair is the result of a successful login or rotation.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
