package auth

import (
	"context"
	"strconv"
	"strings"
)

// RegisterInput bootstraps a tenant: one organization, one owner account.
type RegisterInput struct {
	OrganizationName string
	Email            string
	Password         string
	Device           DeviceInfo
}

// RegisterResult is the freshly created tenant.
type RegisterResult struct {
	Organization *Organization
	User         *User
}

// Register creates an organization together with its first user and grants
// that user the seeded Owner role holding every builtin permission.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	name := strings.TrimSpace(in.OrganizationName)
	email := normalizeEmail(in.Email)
	if name == "" || email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidInput
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	// Seeding the global catalog is idempotent and shared by all tenants, so
	// it stays outside the tenant transaction.
	if err := s.store.Permissions().Ensure(ctx, BuiltinPermissions()); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	org := &Organization{
		ID:        s.idgen(),
		Name:      name,
		Status:    OrgStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	user := &User{
		ID:             s.idgen(),
		OrganizationID: org.ID,
		Email:          email,
		PasswordHash:   hash,
		Status:         UserStatusActive,
		MFAState:       MFADisabled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	owner := &Role{
		ID:             s.idgen(),
		OrganizationID: org.ID,
		Name:           "Owner",
		Code:           "owner",
		HierarchyLevel: 0,
		System:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Bootstrap(ctx, &TenantBootstrap{
		Organization: org,
		Owner:        user,
		OwnerRole:    owner,
		RoleCodes:    AllPermissionCodes(),
		Assignment: Assignment{
			UserID:         user.ID,
			OrganizationID: org.ID,
			RoleID:         owner.ID,
			Active:         true,
			CreatedAt:      now,
		},
	}); err != nil {
		return nil, err
	}

	s.record(ctx, "org.created", user.ID, org.ID, org.ID, map[string]string{"name": org.Name})
	return &RegisterResult{Organization: org, User: user}, nil
}

// CreateOrganization adds a tenant without bootstrapping a user.
func (s *Service) CreateOrganization(ctx context.Context, actorID, name string) (*Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidInput
	}
	now := s.clock()
	org := &Organization{
		ID:        s.idgen(),
		Name:      name,
		Status:    OrgStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Organizations().Create(ctx, org); err != nil {
		return nil, err
	}
	s.record(ctx, "org.created", actorID, org.ID, org.ID, map[string]string{"name": org.Name})
	return org, nil
}

// GetOrganization fetches one tenant.
func (s *Service) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	return s.store.Organizations().Find(ctx, id)
}

// CreateUserInput adds an account to an existing organization.
type CreateUserInput struct {
	OrganizationID string
	Email          string
	Password       string
	RoleID         string
}

// CreateUser creates a user inside an organization, optionally assigning an
// initial role.
func (s *Service) CreateUser(ctx context.Context, actorID string, in CreateUserInput) (*User, error) {
	email := normalizeEmail(in.Email)
	if in.OrganizationID == "" || email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidInput
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	if _, err := s.store.Organizations().Find(ctx, in.OrganizationID); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	user := &User{
		ID:             s.idgen(),
		OrganizationID: in.OrganizationID,
		Email:          email,
		PasswordHash:   hash,
		Status:         UserStatusActive,
		MFAState:       MFADisabled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, err
	}
	if in.RoleID != "" {
		if err := s.AssignRole(ctx, actorID, user.ID, in.OrganizationID, in.RoleID); err != nil {
			return nil, err
		}
	}
	s.record(ctx, "user.created", actorID, in.OrganizationID, user.ID, map[string]string{"email": user.Email})
	return user, nil
}

// ListUsers returns accounts in one organization.
func (s *Service) ListUsers(ctx context.Context, orgID string) ([]*User, error) {
	return s.store.Users().ListByOrg(ctx, orgID)
}

// UpdateUserStatus suspends or reactivates an account inside the caller's
// organization. Suspension revokes every live session so the change takes
// effect before the access token dies.
func (s *Service) UpdateUserStatus(ctx context.Context, actorID, orgID, userID string, status UserStatus) error {
	switch status {
	case UserStatusActive, UserStatusSuspended, UserStatusInactive:
	default:
		return ErrInvalidInput
	}
	user, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		return err
	}
	if user.OrganizationID != orgID {
		return ErrNotFound
	}
	if err := s.store.Users().UpdateStatus(ctx, userID, status); err != nil {
		return err
	}
	if status != UserStatusActive {
		if err := s.store.Sessions().RevokeAllForUser(ctx, userID, "", "account_"+string(status)); err != nil {
			return err
		}
	}
	s.record(ctx, "user.status_changed", actorID, user.OrganizationID, userID, map[string]string{"status": string(status)})
	return nil
}

// CreateRoleInput describes a custom role.
type CreateRoleInput struct {
	OrganizationID string
	Name           string
	Code           string
	HierarchyLevel int
}

// CreateRole adds a non-system role to an organization.
func (s *Service) CreateRole(ctx context.Context, actorID string, in CreateRoleInput) (*Role, error) {
	name := strings.TrimSpace(in.Name)
	code := strings.ToLower(strings.TrimSpace(in.Code))
	if in.OrganizationID == "" || name == "" || code == "" || in.HierarchyLevel < 0 {
		return nil, ErrInvalidInput
	}
	if _, err := s.store.Organizations().Find(ctx, in.OrganizationID); err != nil {
		return nil, err
	}
	now := s.clock()
	role := &Role{
		ID:             s.idgen(),
		OrganizationID: in.OrganizationID,
		Name:           name,
		Code:           code,
		HierarchyLevel: in.HierarchyLevel,
		System:         false,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Roles().Create(ctx, role); err != nil {
		return nil, err
	}
	s.record(ctx, "role.created", actorID, in.OrganizationID, role.ID, map[string]string{"code": role.Code})
	return role, nil
}

// ListRoles returns the roles of one organization.
func (s *Service) ListRoles(ctx context.Context, orgID string) ([]*Role, error) {
	return s.store.Roles().ListByOrg(ctx, orgID)
}

// ListPermissions returns the global catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.Permissions().List(ctx)
}

// RolePermissions returns the grants of one role. A role outside the caller's
// organization is reported as absent, not forbidden.
func (s *Service) RolePermissions(ctx context.Context, orgID, roleID string) ([]Permission, error) {
	role, err := s.store.Roles().Find(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role.OrganizationID != orgID {
		return nil, ErrNotFound
	}
	return s.store.Permissions().PermissionsForRole(ctx, roleID)
}

// SetRolePermissions replaces a role's grant set. System roles are immutable,
// and only roles inside the caller's organization are reachable. The
// organization's permission cache is invalidated before the call returns,
// so no request served afterwards can observe the old grants.
func (s *Service) SetRolePermissions(ctx context.Context, actorID, orgID, roleID string, codes []string) error {
	role, err := s.store.Roles().Find(ctx, roleID)
	if err != nil {
		return err
	}
	if role.OrganizationID != orgID {
		return ErrNotFound
	}
	if role.System {
		return ErrConflict
	}
	for _, code := range codes {
		if !ValidPermissionCode(code) {
			return ErrInvalidInput
		}
	}
	if err := s.store.Permissions().SetForRole(ctx, roleID, codes); err != nil {
		return err
	}
	if err := s.resolver.Invalidate(ctx, role.OrganizationID); err != nil {
		return err
	}
	s.record(ctx, "role.permissions_updated", actorID, role.OrganizationID, roleID, map[string]string{"count": strconv.Itoa(len(codes))})
	return nil
}

// AssignRole grants a role to a user inside one organization. Role and user
// both have to live in that organization; anything outside it is absent.
func (s *Service) AssignRole(ctx context.Context, actorID, userID, orgID, roleID string) error {
	role, err := s.store.Roles().Find(ctx, roleID)
	if err != nil {
		return err
	}
	if role.OrganizationID != orgID {
		return ErrNotFound
	}
	user, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		return err
	}
	if user.OrganizationID != orgID {
		return ErrNotFound
	}
	if err := s.store.Roles().Assign(ctx, Assignment{
		UserID:         userID,
		OrganizationID: orgID,
		RoleID:         roleID,
		Active:         true,
		CreatedAt:      s.clock(),
	}); err != nil {
		return err
	}
	if err := s.resolver.Invalidate(ctx, orgID); err != nil {
		return err
	}
	s.record(ctx, "role.assigned", actorID, orgID, userID, map[string]string{"role_id": roleID})
	return nil
}

// RemoveRoleAssignment revokes a role grant. The cache invalidation happens
// before the response, matching the guarantee on assignment.
func (s *Service) RemoveRoleAssignment(ctx context.Context, actorID, userID, orgID, roleID string) error {
	if err := s.store.Roles().RemoveAssignment(ctx, userID, orgID, roleID); err != nil {
		return err
	}
	if err := s.resolver.Invalidate(ctx, orgID); err != nil {
		return err
	}
	s.record(ctx, "role.unassigned", actorID, orgID, userID, map[string]string{"role_id": roleID})
	return nil
}
