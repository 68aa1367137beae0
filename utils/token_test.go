package utils

import (
	"encoding/base64"
	"testing"
)

func TestNewMagicToken_ShapeAndDigest(t *testing.T) {
	token, digest, err := NewMagicToken()
	if err != nil {
		t.Fatalf("NewMagicToken error: %v", err)
	}
	if len(token) != 43 {
		t.Fatalf("token expected 43 chars, got %d (%q)", len(token), token)
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("token is not url-safe base64: %v", err)
	}
	if len(raw) != 32 {
		t.Fatalf("token expected 32 bytes of entropy, got %d", len(raw))
	}
	if len(digest) != 64 {
		t.Fatalf("digest expected 64 hex chars, got %d", len(digest))
	}
	if digest != HashMagicToken(token) {
		t.Fatalf("returned digest does not match HashMagicToken of the token")
	}

	second, _, err := NewMagicToken()
	if err != nil {
		t.Fatalf("NewMagicToken error: %v", err)
	}
	if second == token {
		t.Fatalf("two freshly minted tokens must differ")
	}
}

func TestJwtGenerateAndValidate_RoundTrip(t *testing.T) {
	token, err := JwtGenerate(42, "BA")
	if err != nil {
		t.Fatalf("JwtGenerate error: %v", err)
	}
	parsed, err := JwtValidate(token)
	if err != nil || !parsed.Valid {
		t.Fatalf("JwtValidate rejected a fresh token: %v", err)
	}
	claim, ok := parsed.Claims.(*JwtCustomClaim)
	if !ok {
		t.Fatalf("claims have unexpected type %T", parsed.Claims)
	}
	if claim.ID != 42 || claim.Role != "BA" {
		t.Fatalf("claims round-tripped wrong: id=%d role=%q", claim.ID, claim.Role)
	}

	if _, err := JwtValidate(token + "x"); err == nil {
		t.Fatalf("a tampered token must not validate")
	}
}

func TestGetTokenLifespan_Defaults(t *testing.T) {
	t.Setenv("TOKEN_HOUR_LIFESPAN", "")
	if got := getTokenLifespan(); got != 72 {
		t.Fatalf("unset lifespan: expected 72, got %d", got)
	}
	t.Setenv("TOKEN_HOUR_LIFESPAN", "garbage")
	if got := getTokenLifespan(); got != 72 {
		t.Fatalf("unparsable lifespan: expected 72, got %d", got)
	}
	t.Setenv("TOKEN_HOUR_LIFESPAN", "-3")
	if got := getTokenLifespan(); got != 72 {
		t.Fatalf("negative lifespan: expected 72, got %d", got)
	}
	t.Setenv("TOKEN_HOUR_LIFESPAN", "24")
	if got := getTokenLifespan(); got != 24 {
		t.Fatalf("explicit lifespan: expected 24, got %d", got)
	}
}

func TestMagicTokenDigestEqual(t *testing.T) {
	token, digest, err := NewMagicToken()
	if err != nil {
		t.Fatalf("NewMagicToken error: %v", err)
	}
	if !MagicTokenDigestEqual(digest, HashMagicToken(token)) {
		t.Fatalf("identical digests must compare equal")
	}
	if MagicTokenDigestEqual(digest, HashMagicToken(token+"x")) {
		t.Fatalf("digests of different tokens must not compare equal")
	}
	if MagicTokenDigestEqual(digest, digest[:32]) {
		t.Fatalf("digests of different lengths must not compare equal")
	}
}
