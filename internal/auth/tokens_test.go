package auth

import (
	"errors"
	"testing"
	"time"
)

func testSigner() *tokenSigner {
	return newTokenSigner([]byte("0123456789abcdef0123456789abcdef"), "horizon-test")
}

func TestSignAndVerifyAccess(t *testing.T) {
	s := testSigner()
	now := time.Now()

	raw, expiresAt, err := s.signAccess("user-1", "org-1", "jti-1", "fp", now, 15*time.Minute)
	if err != nil {
		t.Fatalf("signAccess: %v", err)
	}
	if !expiresAt.After(now) {
		t.Fatalf("expected future expiry, got %v", expiresAt)
	}

	claims, err := s.verify(raw, tokenTypeAccess)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.OrganizationID != "org-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.TokenID != "jti-1" || claims.RoleFingerprint != "fp" {
		t.Fatalf("unexpected token id or fingerprint: %+v", claims)
	}
}

func TestVerifyRejectsWrongType(t *testing.T) {
	s := testSigner()
	raw, _, err := s.signMFAPending("user-1", "challenge-1", time.Now(), 5*time.Minute)
	if err != nil {
		t.Fatalf("signMFAPending: %v", err)
	}
	if _, err := s.verify(raw, tokenTypeAccess); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
	if _, err := s.verify(raw, tokenTypeMFAPending); err != nil {
		t.Fatalf("verify pending: %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	s := testSigner()
	raw, _, err := s.signAccess("user-1", "org-1", "jti-1", "", time.Now().Add(-time.Hour), time.Minute)
	if err != nil {
		t.Fatalf("signAccess: %v", err)
	}
	if _, err := s.verify(raw, tokenTypeAccess); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	s := testSigner()
	raw, _, err := s.signAccess("user-1", "org-1", "jti-1", "", time.Now(), time.Minute)
	if err != nil {
		t.Fatalf("signAccess: %v", err)
	}
	other := newTokenSigner([]byte("another-secret-another-secret-xx"), "horizon-test")
	if _, err := other.verify(raw, tokenTypeAccess); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	secret, hash, err := newRefreshSecret()
	if err != nil {
		t.Fatalf("newRefreshSecret: %v", err)
	}
	if hash != hashRefreshSecret(secret) {
		t.Fatal("hash does not match secret")
	}

	token := encodeRefreshToken("sess-1", secret)
	id, got, err := splitRefreshToken(token)
	if err != nil {
		t.Fatalf("splitRefreshToken: %v", err)
	}
	if id != "sess-1" || got != secret {
		t.Fatalf("round trip mismatch: %q %q", id, got)
	}

	for _, bad := range []string{"", "noseparator", ".leading", "trailing."} {
		if _, _, err := splitRefreshToken(bad); !errors.Is(err, ErrTokenMalformed) {
			t.Fatalf("expected ErrTokenMalformed for %q, got %v", bad, err)
		}
	}
}

func TestRoleFingerprintOrderIndependent(t *testing.T) {
	a := roleFingerprint([]string{"r1", "r2", "r3"})
	b := roleFingerprint([]string{"r3", "r1", "r2"})
	if a == "" || a != b {
		t.Fatalf("fingerprint should not depend on order: %q vs %q", a, b)
	}
	if roleFingerprint(nil) != "" {
		t.Fatal("empty role set should produce empty fingerprint")
	}
	if roleFingerprint([]string{"r1"}) == a {
		t.Fatal("different role sets should produce different fingerprints")
	}
}

func TestRecoveryCodeHashNormalizes(t *testing.T) {
	code, hash, err := newRecoveryCode()
	if err != nil {
		t.Fatalf("newRecoveryCode: %v", err)
	}
	if hashRecoveryCode(code) != hash {
		t.Fatal("hash mismatch for generated code")
	}
	// Users paste codes with stray case and dashes.
	if hashRecoveryCode(" "+code+" ") != hash {
		t.Fatal("whitespace should not change the hash")
	}
}
