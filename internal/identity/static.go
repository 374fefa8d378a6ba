package identity

import (
	"context"
	"net/http"

	"github.com/alecgard/tally/internal/config"
	"golang.org/x/crypto/bcrypt"
)

// StaticVerifier checks bearer tokens against a fixed set of bcrypt hashes
// provisioned in the config file. It is intended for self-hosted
// deployments and local development, where no external identity provider
// is available.
type StaticVerifier struct {
	tokens []config.StaticToken
}

// NewStaticVerifier creates a verifier over the given provisioned tokens.
func NewStaticVerifier(tokens []config.StaticToken) *StaticVerifier {
	return &StaticVerifier{tokens: tokens}
}

// Verify compares the bearer token against every provisioned hash. The
// full set is always scanned so a miss costs the same as a hit.
func (v *StaticVerifier) Verify(_ context.Context, header http.Header) (*Identity, error) {
	token := BearerToken(header)
	if token == "" {
		return nil, ErrUnverified
	}

	var match *config.StaticToken
	for i := range v.tokens {
		if bcrypt.CompareHashAndPassword([]byte(v.tokens[i].TokenHash), []byte(token)) == nil {
			match = &v.tokens[i]
		}
	}
	if match == nil {
		return nil, ErrUnverified
	}

	return &Identity{
		UserID:    match.UserID,
		Username:  match.Username,
		Name:      match.Name,
		AvatarURL: match.AvatarURL,
		Roles:     match.Roles,
	}, nil
}

// HashToken produces a bcrypt hash suitable for the static_tokens config
// section. Used by the `tally token` command.
func HashToken(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
