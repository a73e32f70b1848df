package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"AmoraGateway/tools/errs"
)

var testOpts = DefaultOptions([]byte("token-test-secret"))

func TestGenerateVerifyRoundTrip(t *testing.T) {
	want := Identity{ExternalID: "u-100", InternalID: "acct-100"}
	tok, err := Generate(testOpts, want)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	got, err := Verify(testOpts, tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestVerifyEmptyToken(t *testing.T) {
	_, err := Verify(testOpts, "")
	var ce *errs.CodeError
	if !errors.As(err, &ce) || ce.Code != errs.CodeTokenMissing {
		t.Fatalf("got %v, want token missing", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	opts := testOpts
	opts.TTL = time.Millisecond
	tok, err := Generate(opts, Identity{ExternalID: "u", InternalID: "a"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	_, err = Verify(opts, tok)
	var ce *errs.CodeError
	if !errors.As(err, &ce) || ce.Code != errs.CodeTokenExpired {
		t.Fatalf("got %v, want expired", err)
	}
}

func TestVerifyNotYetValid(t *testing.T) {
	// Generate always stamps nbf=now, so sign the future-dated claims
	// directly.
	now := time.Now()
	claims := jwtlib.MapClaims{
		"sub": "u",
		"uid": "a",
		"iat": now.Unix(),
		"nbf": now.Add(time.Hour).Unix(),
		"exp": now.Add(2 * time.Hour).Unix(),
	}
	tok, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(testOpts.Secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	_, err = Verify(testOpts, tok)
	var ce *errs.CodeError
	if !errors.As(err, &ce) || ce.Code != errs.CodeTokenNotYetValid {
		t.Fatalf("got %v, want not yet valid", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	tok, err := Generate(testOpts, Identity{ExternalID: "u", InternalID: "a"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	other := testOpts
	other.Secret = []byte("different")
	_, err = Verify(other, tok)
	var ce *errs.CodeError
	if !errors.As(err, &ce) || ce.Code != errs.CodeTokenBadSignature {
		t.Fatalf("got %v, want bad signature", err)
	}
}

func TestVerifyRejectsNonHMAC(t *testing.T) {
	// alg=none with an empty signature must never verify.
	forged := `eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.` +
		`eyJzdWIiOiJ1LTEwMCIsInVpZCI6ImFjY3QtMTAwIn0.`
	if _, err := Verify(testOpts, forged); err == nil {
		t.Fatal("alg=none token verified")
	}
}

func TestMaskID(t *testing.T) {
	m := MaskID("u-100")
	if len(m) != 8 {
		t.Fatalf("mask length = %d, want 8", len(m))
	}
	if strings.Contains(m, "u-100") {
		t.Fatal("mask leaks the identifier")
	}
	if m != MaskID("u-100") {
		t.Fatal("mask not deterministic")
	}
	if m == MaskID("u-101") {
		t.Fatal("distinct ids share a mask")
	}
}
