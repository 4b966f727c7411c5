package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go-auth-service/internal/model"
)

// FederatedIdentity is what an external identity provider vouches for.
type FederatedIdentity struct {
	Email string
}

// FederatedVerifier checks a provider-issued id token. Verification itself
// is an external collaborator; this service only consumes the result.
type FederatedVerifier interface {
	Verify(ctx context.Context, provider string, idToken string) (FederatedIdentity, error)
}

// TokenInfoVerifier delegates verification to a token-info endpoint
// (Google-style: GET <url>?id_token=...). Any non-200 answer or missing
// email is treated as invalid credentials.
type TokenInfoVerifier struct {
	endpoint string
	client   *http.Client
}

func NewTokenInfoVerifier(endpoint string) *TokenInfoVerifier {
	return &TokenInfoVerifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (v *TokenInfoVerifier) Verify(ctx context.Context, provider string, idToken string) (FederatedIdentity, error) {
	if strings.TrimSpace(idToken) == "" {
		return FederatedIdentity{}, model.ErrInvalidCredentials
	}

	reqURL := fmt.Sprintf("%s?id_token=%s", v.endpoint, url.QueryEscape(idToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return FederatedIdentity{}, fmt.Errorf("build tokeninfo request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return FederatedIdentity{}, fmt.Errorf("%w: tokeninfo request failed", model.ErrStoreUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return FederatedIdentity{}, model.ErrInvalidCredentials
	}

	var payload struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.Email == "" {
		return FederatedIdentity{}, model.ErrInvalidCredentials
	}

	return FederatedIdentity{Email: strings.ToLower(payload.Email)}, nil
}

// DisabledVerifier rejects every federated login. Wired when no provider
// is configured so the endpoint degrades to a clean 401.
type DisabledVerifier struct{}

func (DisabledVerifier) Verify(context.Context, string, string) (FederatedIdentity, error) {
	return FederatedIdentity{}, model.ErrInvalidCredentials
}
