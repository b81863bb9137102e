package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"horizonsync.org/internal/ids"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store with in-process maps. It backs tests and local
// development without a database; semantics mirror the Postgres store,
// including compare-and-swap rotation.
type MemoryStore struct {
	mu sync.Mutex

	orgs        map[string]*Organization
	users       map[string]*User
	roles       map[string]*Role
	perms       map[string]Permission            // by code
	rolePerms   map[string]map[string]bool      // roleID -> code set
	assignments map[string]*Assignment          // userID|orgID|roleID
	sessions    map[string]*Session
	recovery    map[string][]*memRecoveryCode   // userID -> codes
	challenges  map[string]*memChallenge
	resets      map[string]*PasswordReset
}

type memRecoveryCode struct {
	hash string
	used bool
}

type memChallenge struct {
	userID    string
	expiresAt time.Time
	used      bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orgs:        map[string]*Organization{},
		users:       map[string]*User{},
		roles:       map[string]*Role{},
		perms:       map[string]Permission{},
		rolePerms:   map[string]map[string]bool{},
		assignments: map[string]*Assignment{},
		sessions:    map[string]*Session{},
		recovery:    map[string][]*memRecoveryCode{},
		challenges:  map[string]*memChallenge{},
		resets:      map[string]*PasswordReset{},
	}
}

func (m *MemoryStore) Organizations() OrganizationStore   { return (*memOrgs)(m) }
func (m *MemoryStore) Users() UserStore                   { return (*memUsers)(m) }
func (m *MemoryStore) Roles() RoleStore                   { return (*memRoles)(m) }
func (m *MemoryStore) Permissions() PermissionStore       { return (*memPerms)(m) }
func (m *MemoryStore) Sessions() SessionStore             { return (*memSessions)(m) }
func (m *MemoryStore) MFA() MFAStore                      { return (*memMFA)(m) }
func (m *MemoryStore) PasswordResets() PasswordResetStore { return (*memResets)(m) }

func assignmentKey(userID, orgID, roleID string) string {
	return userID + "|" + orgID + "|" + roleID
}

// Bootstrap validates every piece before touching the maps, so a conflict
// cannot leave a half-created tenant.
func (m *MemoryStore) Bootstrap(_ context.Context, b *TenantBootstrap) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orgs[b.Organization.ID]; ok {
		return ErrConflict
	}
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, b.Owner.Email) {
			return ErrConflict
		}
	}
	for _, existing := range m.roles {
		if existing.OrganizationID == b.OwnerRole.OrganizationID && existing.Code == b.OwnerRole.Code {
			return ErrConflict
		}
	}

	org := *b.Organization
	m.orgs[org.ID] = &org
	owner := *b.Owner
	m.users[owner.ID] = &owner
	role := *b.OwnerRole
	m.roles[role.ID] = &role

	grants := make(map[string]bool, len(b.RoleCodes))
	for _, code := range b.RoleCodes {
		if _, ok := m.perms[code]; ok {
			grants[code] = true
		}
	}
	m.rolePerms[role.ID] = grants

	a := b.Assignment
	m.assignments[assignmentKey(a.UserID, a.OrganizationID, a.RoleID)] = &a
	return nil
}

// Organization store -------------------------------------------------------
type memOrgs MemoryStore

func (m *memOrgs) Create(_ context.Context, org *Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if org.ID == "" {
		org.ID = ids.New()
	}
	if _, ok := m.orgs[org.ID]; ok {
		return ErrConflict
	}
	cp := *org
	m.orgs[org.ID] = &cp
	return nil
}

func (m *memOrgs) Find(_ context.Context, id string) (*Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	org, ok := m.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (m *memOrgs) List(_ context.Context) ([]*Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]*Organization, 0, len(m.orgs))
	for _, org := range m.orgs {
		cp := *org
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

// User store ---------------------------------------------------------------
type memUsers MemoryStore

func (m *memUsers) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrConflict
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) Find(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) ListByOrg(_ context.Context, orgID string) ([]*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*User
	for _, u := range m.users {
		if u.OrganizationID == orgID {
			cp := *u
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now()
	return nil
}

func (m *memUsers) UpdateStatus(_ context.Context, userID string, status UserStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Status = status
	u.UpdatedAt = time.Now()
	return nil
}

func (m *memUsers) SetMFA(_ context.Context, userID string, state MFAState, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.MFAState = state
	u.MFASecret = secret
	u.UpdatedAt = time.Now()
	return nil
}

func (m *memUsers) RecordFailedLogin(_ context.Context, userID string, threshold int, lockFor time.Duration) (int, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return 0, nil, ErrNotFound
	}
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= threshold {
		until := time.Now().Add(lockFor)
		u.LockedUntil = &until
	}
	u.UpdatedAt = time.Now()
	return u.FailedLoginAttempts, u.LockedUntil, nil
}

func (m *memUsers) ResetLoginState(_ context.Context, userID, ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.LastLoginAt = &now
	u.LastLoginIP = ip
	u.UpdatedAt = now
	return nil
}

// Role store ---------------------------------------------------------------
type memRoles MemoryStore

func (m *memRoles) Create(_ context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if role.ID == "" {
		role.ID = ids.New()
	}
	for _, existing := range m.roles {
		if existing.OrganizationID == role.OrganizationID && existing.Code == role.Code {
			return ErrConflict
		}
	}
	cp := *role
	m.roles[role.ID] = &cp
	return nil
}

func (m *memRoles) Find(_ context.Context, id string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *role
	return &cp, nil
}

func (m *memRoles) ListByOrg(_ context.Context, orgID string) ([]*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*Role
	for _, role := range m.roles {
		if role.OrganizationID == orgID {
			cp := *role
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].HierarchyLevel < res[j].HierarchyLevel })
	return res, nil
}

func (m *memRoles) Assign(_ context.Context, a Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.Active = true
	cp := a
	m.assignments[assignmentKey(a.UserID, a.OrganizationID, a.RoleID)] = &cp
	return nil
}

func (m *memRoles) RemoveAssignment(_ context.Context, userID, orgID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[assignmentKey(userID, orgID, roleID)]
	if !ok || !a.Active {
		return ErrNotFound
	}
	a.Active = false
	return nil
}

func (m *memRoles) ActiveRoleIDs(_ context.Context, userID, orgID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var roleIDs []string
	for _, a := range m.assignments {
		if a.UserID == userID && a.OrganizationID == orgID && a.Active {
			roleIDs = append(roleIDs, a.RoleID)
		}
	}
	sort.Strings(roleIDs)
	return roleIDs, nil
}

// Permission store ---------------------------------------------------------
type memPerms MemoryStore

func (m *memPerms) Ensure(_ context.Context, perms []Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range perms {
		if _, ok := m.perms[p.Code]; ok {
			continue
		}
		if p.ID == "" {
			p.ID = ids.New()
		}
		m.perms[p.Code] = p
	}
	return nil
}

func (m *memPerms) List(_ context.Context) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]Permission, 0, len(m.perms))
	for _, p := range m.perms {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Code < res[j].Code })
	return res, nil
}

func (m *memPerms) SetForRole(_ context.Context, roleID string, codes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := map[string]bool{}
	for _, code := range codes {
		if _, ok := m.perms[code]; ok {
			set[code] = true
		}
	}
	m.rolePerms[roleID] = set
	return nil
}

func (m *memPerms) PermissionsForRole(_ context.Context, roleID string) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Permission
	for code := range m.rolePerms[roleID] {
		if p, ok := m.perms[code]; ok {
			res = append(res, p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Code < res[j].Code })
	return res, nil
}

func (m *memPerms) ResolveForUser(_ context.Context, userID, orgID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := map[string]bool{}
	for _, a := range m.assignments {
		if a.UserID != userID || a.OrganizationID != orgID || !a.Active {
			continue
		}
		for code := range m.rolePerms[a.RoleID] {
			set[code] = true
		}
	}
	codes := make([]string, 0, len(set))
	for code := range set {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

// Session store ------------------------------------------------------------
type memSessions MemoryStore

func (m *memSessions) Create(_ context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess.ID == "" {
		sess.ID = ids.New()
	}
	if _, ok := m.sessions[sess.ID]; ok {
		return ErrConflict
	}
	cp := *sess
	m.sessions[sess.ID] = &cp
	return nil
}

func (m *memSessions) Find(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (m *memSessions) ListActive(_ context.Context, userID string) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var res []*Session
	for _, sess := range m.sessions {
		if sess.UserID == userID && sess.Live(now) {
			cp := *sess
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].IssuedAt.After(res[j].IssuedAt) })
	return res, nil
}

func (m *memSessions) Rotate(_ context.Context, id, oldHash, newHash string, extend time.Duration) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := time.Now()
	switch {
	case sess.RevokedAt != nil:
		return nil, ErrSessionRevoked
	case !sess.ExpiresAt.After(now):
		return nil, ErrTokenExpired
	case sess.TokenHash != oldHash:
		return nil, errRotationMismatch
	}
	sess.TokenHash = newHash
	sess.LastUsedAt = &now
	sess.ExpiresAt = now.Add(extend)
	cp := *sess
	return &cp, nil
}

func (m *memSessions) Revoke(_ context.Context, userID, sessionID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok || sess.UserID != userID || sess.RevokedAt != nil {
		return ErrNotFound
	}
	now := time.Now()
	sess.RevokedAt = &now
	sess.RevokedReason = reason
	return nil
}

func (m *memSessions) RevokeFamily(_ context.Context, familyID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, sess := range m.sessions {
		if sess.FamilyID == familyID && sess.RevokedAt == nil {
			sess.RevokedAt = &now
			sess.RevokedReason = reason
		}
	}
	return nil
}

func (m *memSessions) RevokeAllForUser(_ context.Context, userID, exceptSessionID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, sess := range m.sessions {
		if sess.UserID == userID && sess.ID != exceptSessionID && sess.RevokedAt == nil {
			sess.RevokedAt = &now
			sess.RevokedReason = reason
		}
	}
	return nil
}

func (m *memSessions) TrimOldest(_ context.Context, userID string, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var live []*Session
	for _, sess := range m.sessions {
		if sess.UserID == userID && sess.Live(now) {
			live = append(live, sess)
		}
	}
	if len(live) <= keep {
		return nil
	}
	sort.Slice(live, func(i, j int) bool { return live[i].IssuedAt.After(live[j].IssuedAt) })
	for _, sess := range live[keep:] {
		sess.RevokedAt = &now
		sess.RevokedReason = "session_limit"
	}
	return nil
}

// MFA store ----------------------------------------------------------------
type memMFA MemoryStore

func (m *memMFA) ReplaceRecoveryCodes(_ context.Context, userID string, codeHashes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	codes := make([]*memRecoveryCode, 0, len(codeHashes))
	for _, hash := range codeHashes {
		codes = append(codes, &memRecoveryCode{hash: hash})
	}
	m.recovery[userID] = codes
	return nil
}

func (m *memMFA) ConsumeRecoveryCode(_ context.Context, userID, codeHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, code := range m.recovery[userID] {
		if code.hash == codeHash && !code.used {
			code.used = true
			return true, nil
		}
	}
	return false, nil
}

func (m *memMFA) DeleteRecoveryCodes(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recovery, userID)
	return nil
}

func (m *memMFA) CreateChallenge(_ context.Context, id, userID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.challenges[id]; ok {
		return ErrConflict
	}
	m.challenges[id] = &memChallenge{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *memMFA) ConsumeChallenge(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.challenges[id]
	if !ok || ch.used || time.Now().After(ch.expiresAt) {
		return ErrNotFound
	}
	ch.used = true
	return nil
}

// Password reset store -----------------------------------------------------
type memResets MemoryStore

func (m *memResets) Create(_ context.Context, pr *PasswordReset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pr.ID == "" {
		pr.ID = ids.New()
	}
	now := time.Now()
	for _, existing := range m.resets {
		if existing.UserID == pr.UserID && existing.UsedAt == nil {
			used := now
			existing.UsedAt = &used
		}
	}
	cp := *pr
	m.resets[pr.ID] = &cp
	return nil
}

func (m *memResets) Find(_ context.Context, id string) (*PasswordReset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr, ok := m.resets[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *pr
	return &cp, nil
}

func (m *memResets) MarkUsed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr, ok := m.resets[id]
	if !ok || pr.UsedAt != nil {
		return ErrNotFound
	}
	now := time.Now()
	pr.UsedAt = &now
	return nil
}
