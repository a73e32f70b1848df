package security

import (
	"crypto/sha256"
	"encoding/hex"
	stderr "errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"AmoraGateway/tools/errs"
)

// Identity is the pair resolved from a verified session token. External
// is the client-facing user id, Internal the storage-layer id; other
// subsystems address the same user by either one.
type Identity struct {
	ExternalID string
	InternalID string
}

// Options controls signing and verification.
type Options struct {
	Secret []byte        // HMAC key (from ENV/KMS in production)
	Alg    string        // HS256/HS384/HS512, default HS256
	TTL    time.Duration // token validity, default 2h
}

func DefaultOptions(secret []byte) Options {
	return Options{Secret: secret, Alg: "HS256", TTL: 2 * time.Hour}
}

// Generate mints a session token for the given identity. The gateway
// itself never issues tokens; this exists for the login service and for
// tests.
func Generate(opts Options, id Identity) (string, error) {
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return "", err
	}
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Hour
	}
	now := time.Now()
	claims := jwtlib.MapClaims{
		"sub": id.ExternalID,
		"uid": id.InternalID,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(opts.TTL).Unix(),
	}
	return jwtlib.NewWithClaims(method, claims).SignedString(opts.Secret)
}

// Verify checks signature and time claims and resolves the identity
// pair. Failures are distinguishable per class: bad signature, expired,
// not yet valid, and a generic verification failure for everything else.
func Verify(opts Options, token string) (Identity, error) {
	if strings.TrimSpace(token) == "" {
		return Identity{}, errs.ErrTokenMissing
	}
	if _, err := signingMethod(opts.Alg); err != nil {
		return Identity{}, errs.ErrTokenVerify.WithDetail(err.Error())
	}

	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		// HMAC family only; asymmetric algs are not used for sessions.
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return opts.Secret, nil
	})
	if err != nil {
		return Identity{}, classifyVerifyError(err)
	}
	if !parsed.Valid {
		return Identity{}, errs.ErrTokenVerify
	}

	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return Identity{}, errs.ErrTokenVerify.WithDetail("claims type mismatch")
	}
	ext, _ := claims["sub"].(string)
	internal, _ := claims["uid"].(string)
	if ext == "" || internal == "" {
		return Identity{}, errs.ErrTokenVerify.WithDetail("identity claims missing")
	}
	return Identity{ExternalID: ext, InternalID: internal}, nil
}

func classifyVerifyError(err error) error {
	switch {
	case stderr.Is(err, jwtlib.ErrTokenExpired):
		return errs.ErrTokenExpired
	case stderr.Is(err, jwtlib.ErrTokenNotValidYet):
		return errs.ErrTokenNotYetValid
	case stderr.Is(err, jwtlib.ErrTokenSignatureInvalid):
		return errs.ErrTokenBadSignature
	default:
		return errs.ErrTokenVerify.WithDetail(err.Error())
	}
}

func signingMethod(alg string) (jwtlib.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwtlib.SigningMethodHS256, nil
	case "HS384":
		return jwtlib.SigningMethodHS384, nil
	case "HS512":
		return jwtlib.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported alg: %s (use HS256/HS384/HS512)", alg)
	}
}

// MaskID reduces an identifier (or raw token) to a short non-reversible
// prefix for logging. Full identifiers must never hit the logs.
func MaskID(id string) string {
	if id == "" {
		return "-"
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])[:8]
}
