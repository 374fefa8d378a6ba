package identity

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Middleware returns middleware that verifies the caller's identity and
// injects it into the request context. Unverified callers get a 401 JSON
// response; provider failures get a 500.
func Middleware(v Verifier, onResult ...func(ok bool)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := v.Verify(r.Context(), r.Header)
			if err != nil {
				for _, fn := range onResult {
					fn(false)
				}
				if errors.Is(err, ErrUnverified) {
					writeError(w, http.StatusUnauthorized, "User not authenticated")
					return
				}
				slog.Error("identity verification failed", "error", err)
				writeError(w, http.StatusInternalServerError, "Internal server error")
				return
			}

			for _, fn := range onResult {
				fn(true)
			}
			ctx := ContextWithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
