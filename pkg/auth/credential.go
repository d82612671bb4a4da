package auth

import (
	"context"
	"strings"

	"github.com/tendant/tenantctx/pkg/domain"
)

// IdentityResolver resolves a bearer credential to a user identity.
type IdentityResolver interface {
	ResolveUser(ctx context.Context, credential string) (*domain.Identity, error)
}

// ExtractCredential returns the credential carried by an Authorization
// header value. A "Bearer " prefix is stripped; any other value is passed
// through as an opaque credential.
func ExtractCredential(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", domain.ErrMissingAuthorization
	}

	if strings.EqualFold(header, "Bearer") {
		return "", domain.ErrMissingAuthorization
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		token := strings.TrimSpace(parts[1])
		if token == "" {
			return "", domain.ErrMissingAuthorization
		}
		return token, nil
	}

	return header, nil
}
