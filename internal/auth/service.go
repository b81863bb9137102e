package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"horizonsync.org/internal/ids"
	"horizonsync.org/internal/obs"
)

const (
	defaultAccessTTL     = 15 * time.Minute
	defaultRefreshTTL    = 14 * 24 * time.Hour
	defaultMFAPendingTTL = 5 * time.Minute
	defaultResetTTL      = time.Hour

	defaultLockThreshold = 5
	defaultLockDuration  = 30 * time.Minute
	defaultBcryptCost    = 12
	defaultMaxSessions   = 10

	recoveryCodeCount = 10
	minPasswordLength = 8
)

// Auditor receives security events. A nil auditor is valid and drops events.
type Auditor interface {
	Record(ctx context.Context, action, actorID, orgID, targetID string, meta map[string]string)
}

// DeviceInfo is the client context captured on login and rotation.
type DeviceInfo struct {
	Name      string
	IPAddress string
	UserAgent string
}

// Service implements the authentication and authorization flows on top of a
// Store, a Redis-backed permission resolver and a token signer.
type Service struct {
	store    Store
	resolver *Resolver
	signer   *tokenSigner
	totp     *totpManager
	audit    Auditor

	clock func() time.Time
	idgen func() string

	accessTTL     time.Duration
	refreshTTL    time.Duration
	mfaPendingTTL time.Duration
	resetTTL      time.Duration
	lockThreshold int
	lockDuration  time.Duration
	bcryptCost    int
	maxSessions   int
}

// Option customizes a Service.
type Option func(*Service)

func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.idgen = gen }
}

func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.audit = a }
}

func WithResolver(r *Resolver) Option {
	return func(s *Service) { s.resolver = r }
}

func WithTOTPIssuer(issuer string) Option {
	return func(s *Service) { s.totp = newTOTPManager(issuer) }
}

func WithAccessTTL(d time.Duration) Option {
	return func(s *Service) { s.accessTTL = d }
}

func WithRefreshTTL(d time.Duration) Option {
	return func(s *Service) { s.refreshTTL = d }
}

func WithMFAPendingTTL(d time.Duration) Option {
	return func(s *Service) { s.mfaPendingTTL = d }
}

func WithResetTTL(d time.Duration) Option {
	return func(s *Service) { s.resetTTL = d }
}

func WithLockoutPolicy(threshold int, duration time.Duration) Option {
	return func(s *Service) {
		s.lockThreshold = threshold
		s.lockDuration = duration
	}
}

func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

func WithSessionLimit(limit int) Option {
	return func(s *Service) { s.maxSessions = limit }
}

// NewService builds a Service. secret signs access tokens; issuer is embedded
// in them and verified on parse.
func NewService(store Store, secret []byte, issuer string, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if len(secret) < 16 {
		return nil, errors.New("auth: signing secret too short")
	}

	s := &Service{
		store:         store,
		signer:        newTokenSigner(secret, issuer),
		totp:          newTOTPManager(issuer),
		clock:         time.Now,
		idgen:         ids.New,
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		mfaPendingTTL: defaultMFAPendingTTL,
		resetTTL:      defaultResetTTL,
		lockThreshold: defaultLockThreshold,
		lockDuration:  defaultLockDuration,
		bcryptCost:    defaultBcryptCost,
		maxSessions:   defaultMaxSessions,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resolver == nil {
		s.resolver = NewResolver(store, nil)
	}
	return s, nil
}

// Resolver exposes the permission resolver for authorization middleware.
func (s *Service) Resolver() *Resolver { return s.resolver }

// LoginInput carries credentials. MFACode is optional; when the account has
// MFA enabled and no code is supplied, the result is a pending challenge.
type LoginInput struct {
	Email    string
	Password string
	MFACode  string
	Device   DeviceInfo
}

// LoginResult is either a completed login (Tokens set) or a pending MFA
// challenge (MFARequired with a short-lived bridge token).
type LoginResult struct {
	MFARequired bool
	MFAToken    string
	Tokens      *TokenPair
	User        *User
}

// Login authenticates credentials. Unknown email, wrong password and wrong
// MFA code are indistinguishable to the caller; the lockout counter advances
// on every failure attributable to an existing account.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		obs.ObserveLogin("invalid")
		return nil, ErrInvalidCredentials
	}

	user, err := s.findUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			burnPasswordCheck(in.Password)
			obs.ObserveLogin("invalid")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := s.clock()
	if user.Locked(now) {
		obs.ObserveLogin("locked")
		s.record(ctx, "auth.login.locked", user.ID, user.OrganizationID, user.ID, map[string]string{"ip": in.Device.IPAddress})
		return nil, &AccountLockedError{RetryAfter: user.LockedUntil.Sub(now)}
	}

	if err := VerifyPassword(user.PasswordHash, in.Password); err != nil {
		return nil, s.failLogin(ctx, user, in.Device, "bad_password")
	}

	if user.Status != UserStatusActive {
		obs.ObserveLogin("disabled")
		return nil, ErrAccountDisabled
	}

	if user.MFAState == MFAEnabled {
		if in.MFACode == "" {
			token, err := s.issueMFAChallenge(ctx, user)
			if err != nil {
				return nil, err
			}
			obs.ObserveLogin("mfa_required")
			return &LoginResult{MFARequired: true, MFAToken: token}, nil
		}
		if err := s.verifyMFA(ctx, user, in.MFACode); err != nil {
			return nil, s.failLogin(ctx, user, in.Device, "bad_mfa")
		}
	}

	return s.finishLogin(ctx, user, in.Device)
}

// CompleteMFALogin finishes a login that was paused for an MFA code. The
// bridge token is single use; its challenge row is consumed before the code
// is checked.
func (s *Service) CompleteMFALogin(ctx context.Context, pendingToken, code string, device DeviceInfo) (*LoginResult, error) {
	claims, err := s.signer.verify(pendingToken, tokenTypeMFAPending)
	if err != nil {
		return nil, err
	}
	if err := s.store.MFA().ConsumeChallenge(ctx, claims.TokenID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrTokenMalformed
		}
		return nil, err
	}

	user, err := s.store.Users().Find(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	if user.Locked(now) {
		obs.ObserveLogin("locked")
		return nil, &AccountLockedError{RetryAfter: user.LockedUntil.Sub(now)}
	}
	if user.Status != UserStatusActive {
		return nil, ErrAccountDisabled
	}
	if user.MFAState != MFAEnabled {
		return nil, ErrTokenMalformed
	}

	if err := s.verifyMFA(ctx, user, code); err != nil {
		return nil, s.failLogin(ctx, user, device, "bad_mfa")
	}
	return s.finishLogin(ctx, user, device)
}

func (s *Service) failLogin(ctx context.Context, user *User, device DeviceInfo, reason string) error {
	attempts, lockedUntil, err := s.store.Users().RecordFailedLogin(ctx, user.ID, s.lockThreshold, s.lockDuration)
	if err != nil {
		return err
	}
	meta := map[string]string{"reason": reason, "ip": device.IPAddress, "attempts": fmt.Sprintf("%d", attempts)}
	s.record(ctx, "auth.login.failed", user.ID, user.OrganizationID, user.ID, meta)

	now := s.clock()
	if lockedUntil != nil && now.Before(*lockedUntil) {
		obs.ObserveLogin("locked")
		s.record(ctx, "auth.account.locked", user.ID, user.OrganizationID, user.ID, map[string]string{"until": lockedUntil.Format(time.RFC3339)})
		return &AccountLockedError{RetryAfter: lockedUntil.Sub(now)}
	}
	obs.ObserveLogin("invalid")
	if reason == "bad_mfa" {
		return ErrMFAInvalid
	}
	return ErrInvalidCredentials
}

func (s *Service) issueMFAChallenge(ctx context.Context, user *User) (string, error) {
	now := s.clock()
	challengeID := s.idgen()
	if err := s.store.MFA().CreateChallenge(ctx, challengeID, user.ID, now.Add(s.mfaPendingTTL)); err != nil {
		return "", err
	}
	token, _, err := s.signer.signMFAPending(user.ID, challengeID, now, s.mfaPendingTTL)
	return token, err
}

func (s *Service) verifyMFA(ctx context.Context, user *User, code string) error {
	ok, err := s.totp.VerifyCode(user.MFASecret, code, s.clock())
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	consumed, err := s.store.MFA().ConsumeRecoveryCode(ctx, user.ID, hashRecoveryCode(code))
	if err != nil {
		return err
	}
	if !consumed {
		return ErrMFAInvalid
	}
	s.record(ctx, "auth.mfa.recovery_used", user.ID, user.OrganizationID, user.ID, nil)
	return nil
}

func (s *Service) finishLogin(ctx context.Context, user *User, device DeviceInfo) (*LoginResult, error) {
	if err := s.store.Users().ResetLoginState(ctx, user.ID, device.IPAddress); err != nil {
		return nil, err
	}
	pair, _, err := s.issueTokens(ctx, user, device, "")
	if err != nil {
		return nil, err
	}
	obs.ObserveLogin("success")
	s.record(ctx, "auth.login", user.ID, user.OrganizationID, user.ID, map[string]string{"ip": device.IPAddress})
	return &LoginResult{Tokens: pair, User: user}, nil
}

// issueTokens mints an access token bound to the user's current role set and
// opens a new session lineage. familyID may be empty for a fresh family.
func (s *Service) issueTokens(ctx context.Context, user *User, device DeviceInfo, familyID string) (*TokenPair, *Session, error) {
	now := s.clock()

	roleIDs, err := s.store.Roles().ActiveRoleIDs(ctx, user.ID, user.OrganizationID)
	if err != nil {
		return nil, nil, err
	}

	secret, hash, err := newRefreshSecret()
	if err != nil {
		return nil, nil, err
	}
	if familyID == "" {
		familyID = uuid.NewString()
	}
	sess := &Session{
		ID:             s.idgen(),
		UserID:         user.ID,
		OrganizationID: user.OrganizationID,
		FamilyID:       familyID,
		TokenHash:      hash,
		DeviceName:     device.Name,
		IPAddress:      device.IPAddress,
		UserAgent:      device.UserAgent,
		IssuedAt:       now,
		ExpiresAt:      now.Add(s.refreshTTL),
	}
	if err := s.store.Sessions().Create(ctx, sess); err != nil {
		return nil, nil, err
	}
	if err := s.store.Sessions().TrimOldest(ctx, user.ID, s.maxSessions); err != nil {
		return nil, nil, err
	}

	access, accessExp, err := s.signer.signAccess(user.ID, user.OrganizationID, sess.ID, roleFingerprint(roleIDs), now, s.accessTTL)
	if err != nil {
		return nil, nil, err
	}
	pair := &TokenPair{
		AccessToken:      access,
		RefreshToken:     encodeRefreshToken(sess.ID, secret),
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: sess.ExpiresAt,
	}
	return pair, sess, nil
}

// Refresh rotates a refresh token. Presenting a superseded secret for a live
// session revokes the entire family before the caller hears anything.
func (s *Service) Refresh(ctx context.Context, refreshToken string, device DeviceInfo) (*TokenPair, error) {
	sessionID, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	newSecret, newHash, err := newRefreshSecret()
	if err != nil {
		return nil, err
	}
	sess, err := s.store.Sessions().Rotate(ctx, sessionID, hashRefreshSecret(secret), newHash, s.refreshTTL)
	if err != nil {
		if errors.Is(err, errRotationMismatch) {
			return nil, s.handleTokenReuse(ctx, sessionID, device)
		}
		if errors.Is(err, ErrNotFound) {
			return nil, ErrTokenMalformed
		}
		return nil, err
	}

	user, err := s.store.Users().Find(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if user.Status != UserStatusActive {
		return nil, ErrAccountDisabled
	}

	now := s.clock()
	roleIDs, err := s.store.Roles().ActiveRoleIDs(ctx, user.ID, user.OrganizationID)
	if err != nil {
		return nil, err
	}
	access, accessExp, err := s.signer.signAccess(user.ID, user.OrganizationID, sess.ID, roleFingerprint(roleIDs), now, s.accessTTL)
	if err != nil {
		return nil, err
	}
	s.record(ctx, "auth.refresh", user.ID, user.OrganizationID, sess.ID, map[string]string{"ip": device.IPAddress})
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     encodeRefreshToken(sess.ID, newSecret),
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: sess.ExpiresAt,
	}, nil
}

func (s *Service) handleTokenReuse(ctx context.Context, sessionID string, device DeviceInfo) error {
	sess, err := s.store.Sessions().Find(ctx, sessionID)
	if err != nil {
		return ErrTokenReused
	}
	if err := s.store.Sessions().RevokeFamily(ctx, sess.FamilyID, "token_reuse"); err != nil {
		obs.Error("revoke family after reuse", map[string]any{"session_id": sessionID, "error": err.Error()})
	}
	obs.ObserveTokenReuse()
	s.record(ctx, "auth.token_reuse", sess.UserID, sess.OrganizationID, sessionID, map[string]string{"ip": device.IPAddress, "family_id": sess.FamilyID})
	return ErrTokenReused
}

// Logout revokes the session named by the refresh token, if it belongs to the
// user. An already-dead token is a successful logout.
func (s *Service) Logout(ctx context.Context, userID, refreshToken string) error {
	sessionID, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return err
	}
	sess, err := s.store.Sessions().Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if sess.UserID != userID || !constantTimeEqual(sess.TokenHash, hashRefreshSecret(secret)) {
		return ErrTokenMalformed
	}
	if err := s.store.Sessions().Revoke(ctx, userID, sessionID, "logout"); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	s.record(ctx, "auth.logout", userID, sess.OrganizationID, sessionID, nil)
	return nil
}

// VerifyAccessToken validates a bearer token for request authentication.
func (s *Service) VerifyAccessToken(raw string) (*Claims, error) {
	return s.signer.verify(raw, tokenTypeAccess)
}

// ListSessions returns the user's live sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]*Session, error) {
	return s.store.Sessions().ListActive(ctx, userID)
}

// RevokeSession revokes one of the user's own sessions.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID string) error {
	if err := s.store.Sessions().Revoke(ctx, userID, sessionID, "user_revoked"); err != nil {
		return err
	}
	s.record(ctx, "auth.session.revoked", userID, "", sessionID, nil)
	return nil
}

// RevokeOtherSessions revokes every session except the current one.
func (s *Service) RevokeOtherSessions(ctx context.Context, userID, currentSessionID string) error {
	if err := s.store.Sessions().RevokeAllForUser(ctx, userID, currentSessionID, "user_revoked"); err != nil {
		return err
	}
	s.record(ctx, "auth.session.revoked_all", userID, "", currentSessionID, nil)
	return nil
}

// ForgotPassword issues a single-use reset token. The caller delivers it out
// of band; an unknown email yields no token and no error so the endpoint
// cannot be used to probe for accounts.
func (s *Service) ForgotPassword(ctx context.Context, email string, device DeviceInfo) (string, error) {
	user, err := s.findUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}

	secret, hash, err := newRefreshSecret()
	if err != nil {
		return "", err
	}
	now := s.clock()
	pr := &PasswordReset{
		ID:        s.idgen(),
		UserID:    user.ID,
		TokenHash: hash,
		IPAddress: device.IPAddress,
		UserAgent: device.UserAgent,
		ExpiresAt: now.Add(s.resetTTL),
		CreatedAt: now,
	}
	if err := s.store.PasswordResets().Create(ctx, pr); err != nil {
		return "", err
	}
	s.record(ctx, "auth.password.reset_requested", user.ID, user.OrganizationID, user.ID, map[string]string{"ip": device.IPAddress})
	return encodeRefreshToken(pr.ID, secret), nil
}

// ResetPassword consumes a reset token, replaces the credential and revokes
// every session the account has.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	resetID, secret, err := splitRefreshToken(token)
	if err != nil {
		return err
	}

	pr, err := s.store.PasswordResets().Find(ctx, resetID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrTokenMalformed
		}
		return err
	}
	now := s.clock()
	if pr.UsedAt != nil || now.After(pr.ExpiresAt) {
		return ErrTokenExpired
	}
	if !constantTimeEqual(pr.TokenHash, hashRefreshSecret(secret)) {
		return ErrTokenMalformed
	}
	if err := s.store.PasswordResets().MarkUsed(ctx, resetID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrTokenExpired
		}
		return err
	}

	hash, err := HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	if err := s.store.Users().UpdatePassword(ctx, pr.UserID, hash); err != nil {
		return err
	}
	if err := s.store.Sessions().RevokeAllForUser(ctx, pr.UserID, "", "password_reset"); err != nil {
		return err
	}
	if err := s.store.Users().ResetLoginState(ctx, pr.UserID, pr.IPAddress); err != nil {
		return err
	}
	s.record(ctx, "auth.password.reset", pr.UserID, "", pr.UserID, nil)
	return nil
}

// BeginMFAEnrollment provisions a TOTP secret. The account stays in a pending
// state until the first valid code confirms the authenticator works.
func (s *Service) BeginMFAEnrollment(ctx context.Context, userID, password string) (secret, uri string, err error) {
	user, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if user.MFAState == MFAEnabled {
		return "", "", ErrConflict
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return "", "", ErrInvalidCredentials
	}

	secret, err = s.totp.GenerateSecret()
	if err != nil {
		return "", "", err
	}
	if err := s.store.Users().SetMFA(ctx, userID, MFAPendingEnable, secret); err != nil {
		return "", "", err
	}
	return secret, s.totp.ProvisionURI(secret, user.Email), nil
}

// ConfirmMFAEnrollment verifies the first code and activates MFA, returning
// single-use recovery codes shown exactly once.
func (s *Service) ConfirmMFAEnrollment(ctx context.Context, userID, code string) ([]string, error) {
	user, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.MFAState != MFAPendingEnable || user.MFASecret == "" {
		return nil, ErrConflict
	}
	ok, err := s.totp.VerifyCode(user.MFASecret, code, s.clock())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrMFAInvalid
	}

	codes := make([]string, 0, recoveryCodeCount)
	hashes := make([]string, 0, recoveryCodeCount)
	for i := 0; i < recoveryCodeCount; i++ {
		code, hash, err := newRecoveryCode()
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
		hashes = append(hashes, hash)
	}
	if err := s.store.MFA().ReplaceRecoveryCodes(ctx, userID, hashes); err != nil {
		return nil, err
	}
	if err := s.store.Users().SetMFA(ctx, userID, MFAEnabled, user.MFASecret); err != nil {
		return nil, err
	}
	s.record(ctx, "auth.mfa.enabled", userID, user.OrganizationID, userID, nil)
	return codes, nil
}

// DisableMFA turns MFA off after re-proving both factors.
func (s *Service) DisableMFA(ctx context.Context, userID, password, code string) error {
	user, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		return err
	}
	if user.MFAState != MFAEnabled {
		return ErrConflict
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return ErrInvalidCredentials
	}
	if err := s.verifyMFA(ctx, user, code); err != nil {
		return err
	}

	if err := s.store.Users().SetMFA(ctx, userID, MFADisabled, ""); err != nil {
		return err
	}
	if err := s.store.MFA().DeleteRecoveryCodes(ctx, userID); err != nil {
		return err
	}
	s.record(ctx, "auth.mfa.disabled", userID, user.OrganizationID, userID, nil)
	return nil
}

// ResolvePermissions returns the caller's effective permission codes in the
// organization.
func (s *Service) ResolvePermissions(ctx context.Context, userID, orgID string) ([]string, error) {
	return s.resolver.Resolve(ctx, userID, orgID)
}

// Authorize checks one permission, recording denials.
func (s *Service) Authorize(ctx context.Context, userID, orgID, permission string) error {
	err := s.resolver.Authorize(ctx, userID, orgID, permission)
	if errors.Is(err, ErrPermissionDenied) {
		obs.ObservePermissionDenied()
		s.record(ctx, "authz.denied", userID, orgID, "", map[string]string{"permission": permission})
	}
	return err
}

// ValidatePassword enforces the minimum credential policy.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	return nil
}

func (s *Service) record(ctx context.Context, action, actorID, orgID, targetID string, meta map[string]string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, action, actorID, orgID, targetID, meta)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// findUserByEmail retries the lookup once on a transient store failure.
// A sentinel miss is final; the caller decides how much to reveal about it.
func (s *Service) findUserByEmail(ctx context.Context, email string) (*User, error) {
	user, err := s.store.Users().FindByEmail(ctx, email)
	if err == nil || errors.Is(err, ErrNotFound) || ctx.Err() != nil {
		return user, err
	}
	return s.store.Users().FindByEmail(ctx, email)
}
