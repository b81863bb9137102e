package httpapi

import (
	"net/http"
	"strings"

	"horizonsync.org/internal/auth"
)

type registerRequest struct {
	OrganizationName string `json:"organization_name"`
	Email            string `json:"email"`
	Password         string `json:"password"`
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	MFACode    string `json:"mfa_code"`
	DeviceName string `json:"device_name"`
}

type mfaVerifyRequest struct {
	MFAToken string `json:"mfa_token"`
	Code     string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
	AllDevices   bool   `json:"all_devices"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type mfaEnableRequest struct {
	Password string `json:"password"`
}

type mfaDisableRequest struct {
	Password string `json:"password"`
	Code     string `json:"code"`
}

func deviceInfo(r *http.Request, name string) auth.DeviceInfo {
	return auth.DeviceInfo{
		Name:      strings.TrimSpace(name),
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.svc.Register(r.Context(), auth.RegisterInput{
		OrganizationName: req.OrganizationName,
		Email:            req.Email,
		Password:         req.Password,
		Device:           deviceInfo(r, ""),
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"organization": res.Organization,
		"user":         res.User,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.svc.Login(r.Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		MFACode:  req.MFACode,
		Device:   deviceInfo(r, req.DeviceName),
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if res.MFARequired {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"mfa_required": true,
			"mfa_token":    res.MFAToken,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tokens": res.Tokens,
		"user":   res.User,
	})
}

// handleMFAVerify serves two callers: a paused login carrying the bridge
// token, and an authenticated user confirming enrollment with their first
// code.
func (a *API) handleMFAVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req mfaVerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Code == "" {
		writeError(w, r, http.StatusBadRequest, "code is required")
		return
	}

	if req.MFAToken != "" {
		res, err := a.svc.CompleteMFALogin(r.Context(), req.MFAToken, req.Code, deviceInfo(r, ""))
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"tokens": res.Tokens,
			"user":   res.User,
		})
		return
	}

	accessToken, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	claims, err := a.svc.VerifyAccessToken(accessToken)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	codes, err := a.svc.ConfirmMFAEnrollment(r.Context(), claims.UserID, req.Code)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":        true,
		"recovery_codes": codes,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeError(w, r, http.StatusBadRequest, "refresh_token is required")
		return
	}
	pair, err := a.svc.Refresh(r.Context(), req.RefreshToken, deviceInfo(r, ""))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": pair})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	var req logoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeError(w, r, http.StatusBadRequest, "refresh_token is required")
		return
	}
	if err := a.svc.Logout(r.Context(), claims.UserID, req.RefreshToken); err != nil {
		handleAuthError(w, r, err)
		return
	}
	if req.AllDevices {
		if err := a.svc.RevokeOtherSessions(r.Context(), claims.UserID, ""); err != nil {
			handleAuthError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := a.svc.ForgotPassword(r.Context(), req.Email, deviceInfo(r, "")); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	// The answer never reveals whether the account exists. The token travels
	// out of band through the mail pipeline.
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
	})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Token == "" || req.NewPassword == "" {
		writeError(w, r, http.StatusBadRequest, "token and new_password are required")
		return
	}
	if err := a.svc.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMFAEnable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	var req mfaEnableRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	secret, uri, err := a.svc.BeginMFAEnrollment(r.Context(), claims.UserID, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"secret":      secret,
		"otpauth_uri": uri,
	})
}

func (a *API) handleMFADisable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	var req mfaDisableRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.DisableMFA(r.Context(), claims.UserID, req.Password, req.Code); err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		sessions, err := a.svc.ListSessions(r.Context(), claims.UserID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		// The access token's jti is the session it was issued under.
		type sessionView struct {
			*auth.Session
			Current bool `json:"current"`
		}
		views := make([]sessionView, 0, len(sessions))
		for _, sess := range sessions {
			views = append(views, sessionView{Session: sess, Current: sess.ID == claims.TokenID})
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
	case http.MethodDelete:
		// Revokes everything except the session named by the refresh token,
		// when one is supplied.
		var current string
		if r.ContentLength > 0 {
			var req refreshRequest
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			if id, _, err := auth.SplitSessionToken(req.RefreshToken); err == nil {
				current = id
			}
		}
		if err := a.svc.RevokeOtherSessions(r.Context(), claims.UserID, current); err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) handleSessionResource(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	sessionID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/auth/sessions/"), "/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if err := a.svc.RevokeSession(r.Context(), claims.UserID, sessionID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
