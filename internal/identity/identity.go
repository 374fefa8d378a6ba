package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Identity is a verified caller as reported by the identity provider.
// An unverified caller is expressed by ErrUnverified, never by a partially
// filled Identity.
type Identity struct {
	UserID    string
	Username  string
	Name      string
	AvatarURL string
	Roles     []string
}

// ErrUnverified is returned when the provider does not vouch for the caller.
var ErrUnverified = errors.New("identity not verified")

// Verifier resolves request headers to a verified identity.
type Verifier interface {
	Verify(ctx context.Context, header http.Header) (*Identity, error)
}

type contextKey int

const identityContextKey contextKey = iota

// ContextWithIdentity returns a new context carrying the given identity.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// FromContext extracts the identity from the context, or nil if not present.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey).(*Identity)
	return id
}

// BearerToken extracts the token from an Authorization: Bearer header.
// Returns "" when the header is missing or malformed.
func BearerToken(header http.Header) string {
	auth := header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
