package middleware

import (
	"net/http"
	"strings"

	"github.com/hellof20/mihoyo-cs-tickets/internal/api/response"
	"golang.org/x/crypto/bcrypt"
)

// WorkerAuth guards the endpoints clustering workers use to report
// progress. Workers present a shared key as a Bearer token which is
// checked against a bcrypt hash.
type WorkerAuth struct {
	keyHash []byte
}

// NewWorkerAuth creates a WorkerAuth. An empty hash disables the guarded
// endpoints entirely.
func NewWorkerAuth(keyHash string) *WorkerAuth {
	return &WorkerAuth{keyHash: []byte(keyHash)}
}

func (a *WorkerAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a == nil || len(a.keyHash) == 0 {
			response.Error(w, http.StatusForbidden,
				"WORKER_API_DISABLED", "Worker endpoints are disabled", nil)
			return
		}

		rawKey := extractBearerToken(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if bcrypt.CompareHashAndPassword(a.keyHash, []byte(rawKey)) != nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid worker key", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(setWorker(r.Context())))
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
