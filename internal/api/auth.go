package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const apiKeyHeader = "X-API-Key"

// KeyAuth checks the X-API-Key header against a bcrypt hash. The digest
// of the last accepted key is remembered so bcrypt runs once per key
// rotation rather than once per request.
type KeyAuth struct {
	hash []byte

	mu       sync.RWMutex
	accepted [sha256.Size]byte
	cached   bool
}

func NewKeyAuth(hash string) (*KeyAuth, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, errors.Wrap(err, "api key hash")
	}
	return &KeyAuth{hash: []byte(hash)}, nil
}

// HashKey returns the bcrypt hash to configure for key.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (a *KeyAuth) Verify(key string) bool {
	if key == "" {
		return false
	}
	digest := sha256.Sum256([]byte(key))

	a.mu.RLock()
	hit := a.cached && subtle.ConstantTimeCompare(digest[:], a.accepted[:]) == 1
	a.mu.RUnlock()
	if hit {
		return true
	}

	if bcrypt.CompareHashAndPassword(a.hash, []byte(key)) != nil {
		return false
	}
	a.mu.Lock()
	a.accepted, a.cached = digest, true
	a.mu.Unlock()
	return true
}

func (a *KeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Verify(r.Header.Get(apiKeyHeader)) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
