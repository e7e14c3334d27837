package admin

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/argon2"
)

// HashToken generates a salted Argon2id hash of an admin token. Used by
// operators to produce ADMIN_TOKEN_HASH / ADMIN_TOKEN_SALT values.
func HashToken(token string) (hash, salt string, err error) {
	rawSalt := make([]byte, 16)
	if _, err := rand.Read(rawSalt); err != nil {
		return "", "", err
	}

	rawHash := argon2.IDKey([]byte(token), rawSalt, 1, 64*1024, 4, 32)

	return base64.StdEncoding.EncodeToString(rawHash),
		base64.StdEncoding.EncodeToString(rawSalt), nil
}

// verifyToken compares a presented token against the stored salted hash.
func verifyToken(token, salt, hash string) (bool, error) {
	rawSalt, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return false, fmt.Errorf("decode salt: %w", err)
	}
	rawHash, err := base64.StdEncoding.DecodeString(hash)
	if err != nil {
		return false, fmt.Errorf("decode hash: %w", err)
	}

	comparison := argon2.IDKey([]byte(token), rawSalt, 1, 64*1024, 4, 32)
	return subtle.ConstantTimeCompare(rawHash, comparison) == 1, nil
}

// authenticate guards the API with a bearer token verified against the
// configured hash. With no hash configured every request is rejected.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.tokenHash == "" || h.tokenSalt == "" {
			http.Error(w, "admin API disabled: no token configured", http.StatusForbidden)
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || token == r.Header.Get("Authorization") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		ok, err := verifyToken(token, h.tokenSalt, h.tokenHash)
		if err != nil || !ok {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
