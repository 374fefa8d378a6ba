package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RemoteVerifier verifies bearer tokens against the identity provider's
// verify endpoint. The provider responds with the user the token belongs
// to, or an empty userId when the token is invalid.
type RemoteVerifier struct {
	verifyURL string
	apiKey    string
	client    *http.Client
}

// NewRemoteVerifier creates a verifier that calls the given verify URL.
// Requests are bounded by the given timeout.
func NewRemoteVerifier(verifyURL, apiKey string, timeout time.Duration) *RemoteVerifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteVerifier{
		verifyURL: verifyURL,
		apiKey:    apiKey,
		client:    &http.Client{Timeout: timeout},
	}
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	UserID    string   `json:"userId"`
	Username  string   `json:"username"`
	Name      string   `json:"name"`
	AvatarURL string   `json:"avatarUrl"`
	Roles     []string `json:"roles"`
}

// Verify posts the caller's token to the provider and maps the response
// to a verified identity. Any non-200 response or empty userId means the
// provider does not vouch for the caller.
func (v *RemoteVerifier) Verify(ctx context.Context, header http.Header) (*Identity, error) {
	token := BearerToken(header)
	if token == "" {
		return nil, ErrUnverified
	}

	body, err := json.Marshal(verifyRequest{Token: token})
	if err != nil {
		return nil, fmt.Errorf("encoding verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+v.apiKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling identity provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrUnverified
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity provider returned status %d", resp.StatusCode)
	}

	var vr verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("decoding verify response: %w", err)
	}
	if vr.UserID == "" {
		return nil, ErrUnverified
	}

	return &Identity{
		UserID:    vr.UserID,
		Username:  vr.Username,
		Name:      vr.Name,
		AvatarURL: vr.AvatarURL,
		Roles:     vr.Roles,
	}, nil
}
