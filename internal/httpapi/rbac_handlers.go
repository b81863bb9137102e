package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"horizonsync.org/internal/auth"
)

type createOrganizationRequest struct {
	Name string `json:"name"`
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	RoleID   string `json:"role_id"`
}

type createRoleRequest struct {
	Name           string `json:"name"`
	Code           string `json:"code"`
	HierarchyLevel int    `json:"hierarchy_level"`
}

type updateRolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

type updateUserStatusRequest struct {
	Status string `json:"status"`
}

type authzCheckRequest struct {
	Permission string `json:"permission"`
}

func (a *API) handleAuthzCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	var req authzCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Permission = strings.TrimSpace(req.Permission)
	if req.Permission == "" {
		writeError(w, r, http.StatusBadRequest, "permission is required")
		return
	}
	err := a.svc.Authorize(r.Context(), claims.UserID, claims.OrganizationID, req.Permission)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"allowed": true})
	default:
		// Denials answer 200 with allowed=false; only infrastructure
		// failures surface as errors.
		if errors.Is(err, auth.ErrPermissionDenied) {
			writeJSON(w, http.StatusOK, map[string]any{"allowed": false})
			return
		}
		handleAuthError(w, r, err)
	}
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := requireClaims(w, r); !ok {
		return
	}
	perms, err := a.svc.ListPermissions(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (a *API) handleOrganizations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	claims, ok := a.ensurePermission(w, r, auth.PermOrgManage)
	if !ok {
		return
	}
	var req createOrganizationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org, err := a.svc.CreateOrganization(r.Context(), claims.UserID, req.Name)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/organizations/%s", org.ID))
	writeJSON(w, http.StatusCreated, org)
}

func (a *API) handleOrganizationScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/organizations/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	orgID := parts[0]
	if len(parts) == 1 {
		a.handleOrganization(w, r, orgID)
		return
	}
	if len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch parts[1] {
	case "users":
		a.handleOrganizationUsers(w, r, orgID)
	case "roles":
		a.handleOrganizationRoles(w, r, orgID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// sameOrg rejects cross-tenant administration before any permission check.
func sameOrg(w http.ResponseWriter, r *http.Request, claims *auth.Claims, orgID string) bool {
	if claims.OrganizationID != orgID {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return false
	}
	return true
}

func (a *API) handleOrganization(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	claims, ok := requireClaims(w, r)
	if !ok || !sameOrg(w, r, claims, orgID) {
		return
	}
	org, err := a.svc.GetOrganization(r.Context(), orgID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (a *API) handleOrganizationUsers(w http.ResponseWriter, r *http.Request, orgID string) {
	switch r.Method {
	case http.MethodGet:
		claims, ok := a.ensurePermission(w, r, auth.PermUserRead)
		if !ok || !sameOrg(w, r, claims, orgID) {
			return
		}
		users, err := a.svc.ListUsers(r.Context(), orgID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	case http.MethodPost:
		claims, ok := a.ensurePermission(w, r, auth.PermUserManage)
		if !ok || !sameOrg(w, r, claims, orgID) {
			return
		}
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.svc.CreateUser(r.Context(), claims.UserID, auth.CreateUserInput{
			OrganizationID: orgID,
			Email:          req.Email,
			Password:       req.Password,
			RoleID:         strings.TrimSpace(req.RoleID),
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
		writeJSON(w, http.StatusCreated, user)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleOrganizationRoles(w http.ResponseWriter, r *http.Request, orgID string) {
	switch r.Method {
	case http.MethodGet:
		claims, ok := requireClaims(w, r)
		if !ok || !sameOrg(w, r, claims, orgID) {
			return
		}
		roles, err := a.svc.ListRoles(r.Context(), orgID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		claims, ok := a.ensurePermission(w, r, auth.PermRoleManage)
		if !ok || !sameOrg(w, r, claims, orgID) {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.svc.CreateRole(r.Context(), claims.UserID, auth.CreateRoleInput{
			OrganizationID: orgID,
			Name:           req.Name,
			Code:           req.Code,
			HierarchyLevel: req.HierarchyLevel,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "permissions" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	roleID := parts[0]

	switch r.Method {
	case http.MethodGet:
		claims, ok := requireClaims(w, r)
		if !ok {
			return
		}
		perms, err := a.svc.RolePermissions(r.Context(), claims.OrganizationID, roleID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
	case http.MethodPut:
		claims, ok := a.ensurePermission(w, r, auth.PermPermissionManage)
		if !ok {
			return
		}
		var req updateRolePermissionsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.svc.SetRolePermissions(r.Context(), claims.UserID, claims.OrganizationID, roleID, req.Permissions); err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	userID := parts[0]

	switch {
	case len(parts) == 2 && parts[1] == "assignments":
		a.handleUserAssignments(w, r, userID)
	case len(parts) == 3 && parts[1] == "assignments":
		a.handleUserAssignment(w, r, userID, parts[2])
	case len(parts) == 2 && parts[1] == "status":
		a.handleUserStatus(w, r, userID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUserAssignments(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	claims, ok := a.ensurePermission(w, r, auth.PermRoleManage)
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.RoleID = strings.TrimSpace(req.RoleID)
	if req.RoleID == "" {
		writeError(w, r, http.StatusBadRequest, "role_id is required")
		return
	}
	if err := a.svc.AssignRole(r.Context(), claims.UserID, userID, claims.OrganizationID, req.RoleID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (a *API) handleUserAssignment(w http.ResponseWriter, r *http.Request, userID, roleID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	claims, ok := a.ensurePermission(w, r, auth.PermRoleManage)
	if !ok {
		return
	}
	if err := a.svc.RemoveRoleAssignment(r.Context(), claims.UserID, userID, claims.OrganizationID, roleID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUserStatus(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	claims, ok := a.ensurePermission(w, r, auth.PermUserManage)
	if !ok {
		return
	}
	var req updateUserStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.UpdateUserStatus(r.Context(), claims.UserID, claims.OrganizationID, userID, auth.UserStatus(req.Status)); err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
