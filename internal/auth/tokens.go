package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenTypeAccess     = "access"
	tokenTypeMFAPending = "mfa_pending"

	refreshSecretBytes = 32
)

// Claims is the verified payload of an access token. RoleFingerprint pins the
// role set the token was minted against so stale tokens can be detected after
// an assignment change.
type Claims struct {
	UserID          string
	OrganizationID  string
	TokenType       string
	TokenID         string
	RoleFingerprint string
	ExpiresAt       time.Time
	IssuedAt        time.Time
}

type jwtClaims struct {
	OrganizationID  string `json:"org,omitempty"`
	TokenType       string `json:"token_type"`
	RoleFingerprint string `json:"role_fp,omitempty"`
	jwt.RegisteredClaims
}

type tokenSigner struct {
	secret []byte
	issuer string
}

func newTokenSigner(secret []byte, issuer string) *tokenSigner {
	return &tokenSigner{secret: secret, issuer: issuer}
}

func (s *tokenSigner) signAccess(userID, orgID, jti, roleFP string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	return s.sign(userID, orgID, jti, roleFP, tokenTypeAccess, now, ttl)
}

func (s *tokenSigner) signMFAPending(userID, jti string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	return s.sign(userID, "", jti, "", tokenTypeMFAPending, now, ttl)
}

func (s *tokenSigner) sign(userID, orgID, jti, roleFP, tokenType string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	expiresAt := now.Add(ttl)
	claims := jwtClaims{
		OrganizationID:  orgID,
		TokenType:       tokenType,
		RoleFingerprint: roleFP,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// verify parses and validates a token of the expected type. Expiry maps to
// ErrTokenExpired, everything else to ErrTokenMalformed.
func (s *tokenSigner) verify(raw, wantType string) (*Claims, error) {
	var claims jwtClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}
	if !token.Valid || claims.TokenType != wantType || claims.Subject == "" {
		return nil, ErrTokenMalformed
	}

	out := &Claims{
		UserID:          claims.Subject,
		OrganizationID:  claims.OrganizationID,
		TokenType:       claims.TokenType,
		TokenID:         claims.ID,
		RoleFingerprint: claims.RoleFingerprint,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}

// newRefreshSecret returns a fresh opaque secret and its storage hash.
func newRefreshSecret() (secret, hash string, err error) {
	raw := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	secret = base64.RawURLEncoding.EncodeToString(raw)
	return secret, hashRefreshSecret(secret), nil
}

func hashRefreshSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// encodeRefreshToken packs the session id together with the secret so the
// server can locate the row without a table scan.
func encodeRefreshToken(sessionID, secret string) string {
	return sessionID + "." + secret
}

func splitRefreshToken(token string) (sessionID, secret string, err error) {
	sessionID, secret, ok := strings.Cut(token, ".")
	if !ok || sessionID == "" || secret == "" {
		return "", "", ErrTokenMalformed
	}
	return sessionID, secret, nil
}

// SplitSessionToken exposes the session id embedded in an opaque refresh
// token without validating the secret.
func SplitSessionToken(token string) (sessionID, secret string, err error) {
	return splitRefreshToken(token)
}

// roleFingerprint is a stable digest of a role-id set, independent of order.
func roleFingerprint(roleIDs []string) string {
	if len(roleIDs) == 0 {
		return ""
	}
	sorted := make([]string, len(roleIDs))
	copy(sorted, roleIDs)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:16])
}

// newRecoveryCode produces a human-enterable code and its storage hash.
func newRecoveryCode() (code, hash string, err error) {
	raw := make([]byte, 5)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	code = strings.ToUpper(hex.EncodeToString(raw))
	return code, hashRecoveryCode(code), nil
}

func hashRecoveryCode(code string) string {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// constantTimeEqual avoids leaking hash prefixes through comparison timing.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
