package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tendant/tenantctx/pkg/domain"
)

const userEndpoint = "/auth/v1/user"

// RemoteConfig holds identity service configuration.
type RemoteConfig struct {
	BaseURL string
	AnonKey string
	Timeout time.Duration
}

// RemoteResolver resolves credentials by asking the hosted identity service
// for the user that owns them.
type RemoteResolver struct {
	config     RemoteConfig
	httpClient *http.Client
}

// NewRemoteResolver creates a resolver backed by the identity service.
func NewRemoteResolver(config RemoteConfig) *RemoteResolver {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	return &RemoteResolver{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// WithHTTPClient replaces the HTTP client used for identity lookups.
func (r *RemoteResolver) WithHTTPClient(c *http.Client) *RemoteResolver {
	r.httpClient = c
	return r
}

// remoteUser is the subset of the identity service user payload we read.
type remoteUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// ResolveUser validates the credential with the identity service.
func (r *RemoteResolver) ResolveUser(ctx context.Context, credential string) (*domain.Identity, error) {
	if credential == "" {
		return nil, domain.ErrMissingAuthorization
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.config.BaseURL+userEndpoint, nil)
	if err != nil {
		return nil, domain.NewBackendError("resolve user", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("apikey", r.config.AnonKey)
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewBackendError("resolve user", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, domain.NewBackendError("resolve user", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusBadRequest:
		return nil, domain.ErrInvalidCredential
	case resp.StatusCode != http.StatusOK:
		return nil, domain.NewBackendError("resolve user", fmt.Errorf("identity service returned status %d", resp.StatusCode))
	}

	var user remoteUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, domain.NewBackendError("resolve user", fmt.Errorf("decode user: %w", err))
	}
	if user.ID == "" {
		return nil, domain.ErrInvalidCredential
	}

	return &domain.Identity{
		ID:       user.ID,
		Email:    user.Email,
		Metadata: user.UserMetadata,
	}, nil
}
