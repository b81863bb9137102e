package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"horizonsync.org/internal/audit"
	"horizonsync.org/internal/auth"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T, opts ...auth.Option) *apiClient {
	t.Helper()

	base := []auth.Option{auth.WithBcryptCost(4)}
	svc, err := auth.NewService(auth.NewMemoryStore(),
		[]byte("0123456789abcdef0123456789abcdef"), "horizon-test",
		append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	events := audit.NewLogger(nil)
	t.Cleanup(events.Close)

	api := New(svc, events, ReadyProbe{}, "test")
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{baseURL: srv.URL, client: srv.Client(), t: t}
}

func (c *apiClient) do(method, path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type loginPayload struct {
	Tokens      tokenPayload `json:"tokens"`
	MFARequired bool         `json:"mfa_required"`
	MFAToken    string       `json:"mfa_token"`
}

func (c *apiClient) registerAndLogin(email string) loginPayload {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/v1/auth/register", map[string]string{
		"organization_name": "Acme Corp",
		"email":             email,
		"password":          "sturdy-password",
	}, "")
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("register status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/v1/auth/login", map[string]string{
		"email":    email,
		"password": "sturdy-password",
	}, "")
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login status %d", resp.StatusCode)
	}
	var out loginPayload
	decodeBody(c.t, resp, &out)
	return out
}

func TestHealthz(t *testing.T) {
	c := newTestAPI(t)
	resp := c.do(http.MethodGet, "/healthz", nil, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestRegisterLoginRefreshFlow(t *testing.T) {
	c := newTestAPI(t)
	login := c.registerAndLogin("owner@acme.test")
	if login.Tokens.AccessToken == "" || login.Tokens.RefreshToken == "" {
		t.Fatal("missing tokens")
	}

	// Sessions are visible to the authenticated user.
	resp := c.do(http.MethodGet, "/v1/auth/sessions", nil, login.Tokens.AccessToken)
	var sessions struct {
		Sessions []json.RawMessage `json:"sessions"`
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sessions status %d", resp.StatusCode)
	}
	decodeBody(t, resp, &sessions)
	if len(sessions.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions.Sessions))
	}

	// Rotation produces a fresh pair.
	resp = c.do(http.MethodPost, "/v1/auth/refresh", map[string]string{
		"refresh_token": login.Tokens.RefreshToken,
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status %d", resp.StatusCode)
	}
	var rotated struct {
		Tokens tokenPayload `json:"tokens"`
	}
	decodeBody(t, resp, &rotated)
	if rotated.Tokens.RefreshToken == login.Tokens.RefreshToken {
		t.Fatal("refresh token did not rotate")
	}

	// Replaying the old token is rejected.
	resp = c.do(http.MethodPost, "/v1/auth/refresh", map[string]string{
		"refresh_token": login.Tokens.RefreshToken,
	}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("replay status %d, want 401", resp.StatusCode)
	}
}

func TestAuthzCheck(t *testing.T) {
	c := newTestAPI(t)
	login := c.registerAndLogin("owner@acme.test")

	resp := c.do(http.MethodPost, "/v1/authz/check", map[string]string{
		"permission": "org.manage",
	}, login.Tokens.AccessToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("check status %d", resp.StatusCode)
	}
	var out struct {
		Allowed bool `json:"allowed"`
	}
	decodeBody(t, resp, &out)
	if !out.Allowed {
		t.Fatal("owner should hold org.manage")
	}

	resp = c.do(http.MethodPost, "/v1/authz/check", map[string]string{
		"permission": "no.such.permission",
	}, login.Tokens.AccessToken)
	decodeBody(t, resp, &out)
	if out.Allowed {
		t.Fatal("unknown permission should deny")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	c := newTestAPI(t)
	c.registerAndLogin("owner@acme.test")

	resp := c.do(http.MethodPost, "/v1/auth/login", map[string]string{
		"email":    "owner@acme.test",
		"password": "wrong-password",
	}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", resp.StatusCode)
	}
}

func TestLockoutAnswers423(t *testing.T) {
	c := newTestAPI(t, auth.WithLockoutPolicy(2, time.Hour))
	c.registerAndLogin("owner@acme.test")

	var last *http.Response
	for i := 0; i < 2; i++ {
		last = c.do(http.MethodPost, "/v1/auth/login", map[string]string{
			"email":    "owner@acme.test",
			"password": "wrong-password",
		}, "")
		last.Body.Close()
	}
	if last.StatusCode != http.StatusLocked {
		t.Fatalf("status %d, want 423", last.StatusCode)
	}
	if last.Header.Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestProtectedEndpointsRequireToken(t *testing.T) {
	c := newTestAPI(t)
	for _, path := range []string{"/v1/auth/sessions", "/v1/permissions", "/v1/audit/stream"} {
		resp := c.do(http.MethodGet, path, nil, "")
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: status %d, want 401", path, resp.StatusCode)
		}
	}
}

func TestPermissionEnforcedOnAdminRoutes(t *testing.T) {
	c := newTestAPI(t)
	owner := c.registerAndLogin("owner@acme.test")

	// The owner provisions a user that holds no roles.
	var me struct {
		User struct {
			OrganizationID string `json:"organization_id"`
		} `json:"user"`
	}
	resp := c.do(http.MethodPost, "/v1/auth/login", map[string]string{
		"email":    "owner@acme.test",
		"password": "sturdy-password",
	}, "")
	decodeBody(t, resp, &me)

	resp = c.do(http.MethodPost, "/v1/organizations/"+me.User.OrganizationID+"/users", map[string]string{
		"email":    "clerk@acme.test",
		"password": "another-password",
	}, owner.Tokens.AccessToken)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create user status %d", resp.StatusCode)
	}
	resp.Body.Close()

	clerkResp := c.do(http.MethodPost, "/v1/auth/login", map[string]string{
		"email":    "clerk@acme.test",
		"password": "another-password",
	}, "")
	var clerk loginPayload
	decodeBody(t, clerkResp, &clerk)

	// A user with no grants cannot administer the tenant.
	resp = c.do(http.MethodPost, "/v1/organizations", map[string]string{
		"name": "Shadow Org",
	}, clerk.Tokens.AccessToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status %d, want 403", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	c := newTestAPI(t)
	resp := c.do(http.MethodGet, "/v1/auth/login", nil, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status %d, want 405", resp.StatusCode)
	}
	if resp.Header.Get("Allow") == "" {
		t.Fatal("expected Allow header")
	}
}

func TestLogoutEndpoint(t *testing.T) {
	c := newTestAPI(t)
	login := c.registerAndLogin("owner@acme.test")

	resp := c.do(http.MethodPost, "/v1/auth/logout", map[string]string{
		"refresh_token": login.Tokens.RefreshToken,
	}, login.Tokens.AccessToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status %d", resp.StatusCode)
	}

	resp = c.do(http.MethodPost, "/v1/auth/refresh", map[string]string{
		"refresh_token": login.Tokens.RefreshToken,
	}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh after logout status %d, want 401", resp.StatusCode)
	}
}

func TestAdminRoutesAreTenantScoped(t *testing.T) {
	c := newTestAPI(t)
	alpha := c.registerAndLogin("owner@acme.test")
	beta := c.registerAndLogin("owner@globex.test")

	var betaMe struct {
		User struct {
			ID             string `json:"id"`
			OrganizationID string `json:"organization_id"`
		} `json:"user"`
	}
	resp := c.do(http.MethodPost, "/v1/auth/login", map[string]string{
		"email":    "owner@globex.test",
		"password": "sturdy-password",
	}, "")
	decodeBody(t, resp, &betaMe)

	resp = c.do(http.MethodGet, "/v1/organizations/"+betaMe.User.OrganizationID+"/roles", nil, beta.Tokens.AccessToken)
	var betaRoles struct {
		Roles []struct {
			ID string `json:"id"`
		} `json:"roles"`
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list roles status %d", resp.StatusCode)
	}
	decodeBody(t, resp, &betaRoles)
	if len(betaRoles.Roles) != 1 {
		t.Fatalf("expected 1 role, got %d", len(betaRoles.Roles))
	}
	foreignRole := betaRoles.Roles[0].ID

	// Another tenant's role answers 404 for reads and writes alike.
	resp = c.do(http.MethodGet, "/v1/roles/"+foreignRole+"/permissions", nil, alpha.Tokens.AccessToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign role read status %d, want 404", resp.StatusCode)
	}
	resp = c.do(http.MethodPut, "/v1/roles/"+foreignRole+"/permissions", map[string]any{
		"permissions": []string{"lead.read"},
	}, alpha.Tokens.AccessToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign role write status %d, want 404", resp.StatusCode)
	}

	// Another tenant's user cannot be suspended.
	resp = c.do(http.MethodPut, "/v1/users/"+betaMe.User.ID+"/status", map[string]string{
		"status": "suspended",
	}, alpha.Tokens.AccessToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign user status %d, want 404", resp.StatusCode)
	}
	resp = c.do(http.MethodPost, "/v1/auth/login", map[string]string{
		"email":    "owner@globex.test",
		"password": "sturdy-password",
	}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("victim login status %d after failed foreign suspension", resp.StatusCode)
	}
}
