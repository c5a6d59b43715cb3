package httpapi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned by Authenticator.Authenticate when the
// bearer credential is missing, malformed, or matches neither the
// shared API key nor a validly signed admin token.
var ErrUnauthorized = errors.New("unauthorized")

// argon2idParams defines OWASP minimum parameters for Argon2id.
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024, // 47 MiB (OWASP minimum: 46 MiB)
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashAPIKey returns an Argon2id PHC-format hash of rawKey, suitable
// for the config's auth.admin_api_key_hash field.
func HashAPIKey(rawKey string) (string, error) {
	return argon2id.CreateHash(rawKey, argon2idParams)
}

// adminClaims is the JWT claim set issued by POST /admin/login.
type adminClaims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// Authenticator implements the gateway's dual admin-credential scheme:
// a shared API key compared against an Argon2id (or legacy
// sha256:-prefixed) hash, and a short-lived HS256 token issued by
// Login. Either credential alone is sufficient.
type Authenticator struct {
	apiKeyHash string
	tokenKey   []byte
	tokenTTL   time.Duration
}

// NewAuthenticator returns an Authenticator. apiKeyHash and tokenSecret
// may each be empty, but config.Validate requires at least one to be
// set before the server starts.
func NewAuthenticator(apiKeyHash, tokenSecret string, tokenTTL time.Duration) *Authenticator {
	return &Authenticator{
		apiKeyHash: apiKeyHash,
		tokenKey:   []byte(tokenSecret),
		tokenTTL:   tokenTTL,
	}
}

// Authenticate checks an "Authorization: Bearer <credential>" header
// against the configured API key hash first, then as a signed token.
func (a *Authenticator) Authenticate(authHeader string) error {
	credential, ok := bearerCredential(authHeader)
	if !ok {
		return ErrUnauthorized
	}

	if a.apiKeyHash != "" {
		if match, _ := verifyAPIKey(credential, a.apiKeyHash); match {
			return nil
		}
	}
	if len(a.tokenKey) > 0 {
		if _, err := a.verifyToken(credential); err == nil {
			return nil
		}
	}
	return ErrUnauthorized
}

// IssueToken signs a short-lived admin token for subject, valid for
// a.tokenTTL. Returns an error if no token secret is configured.
func (a *Authenticator) IssueToken(subject string) (string, error) {
	if len(a.tokenKey) == 0 {
		return "", fmt.Errorf("admin token issuance is not configured")
	}
	now := time.Now()
	claims := &adminClaims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.tokenKey)
}

func (a *Authenticator) verifyToken(tokenString string) (*adminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &adminClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.tokenKey, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*adminClaims)
	if !ok || !token.Valid {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

// bearerCredential extracts the token from an "Authorization: Bearer
// <credential>" header.
func bearerCredential(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	cred := strings.TrimPrefix(header, prefix)
	if cred == "" {
		return "", false
	}
	return cred, true
}

// verifyAPIKey compares rawKey against storedHash, which may be an
// Argon2id PHC-format hash or a "sha256:"-prefixed hex digest.
func verifyAPIKey(rawKey, storedHash string) (bool, error) {
	if strings.HasPrefix(storedHash, "$argon2id$") {
		match, err := safeArgon2idCompare(rawKey, storedHash)
		if err != nil {
			return false, err
		}
		return match, nil
	}
	if expected, ok := strings.CutPrefix(storedHash, "sha256:"); ok {
		return subtle.ConstantTimeCompare([]byte(hashHex(rawKey)), []byte(expected)) == 1, nil
	}
	return subtle.ConstantTimeCompare([]byte(rawKey), []byte(storedHash)) == 1, nil
}

// hashHex returns the hex-encoded SHA-256 digest of s.
func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// safeArgon2idCompare recovers from the argon2id library's panic on
// malformed hash parameters and converts it to an error.
func safeArgon2idCompare(rawKey, storedHash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(rawKey, storedHash)
}
