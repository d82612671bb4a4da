package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tendant/tenantctx/pkg/domain"
)

// JWTConfig holds local token validation settings.
type JWTConfig struct {
	Secret []byte
	// Issuer is checked when non-empty.
	Issuer string
}

// UserClaims are the claims carried by identity service access tokens.
type UserClaims struct {
	jwt.RegisteredClaims
	Email        string         `json:"email,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// JWTResolver validates HS256 access tokens locally instead of calling the
// identity service.
type JWTResolver struct {
	config JWTConfig
}

// NewJWTResolver creates a resolver that verifies tokens with the shared secret.
func NewJWTResolver(config JWTConfig) *JWTResolver {
	return &JWTResolver{config: config}
}

// ResolveUser parses and verifies the token and returns its subject.
func (r *JWTResolver) ResolveUser(_ context.Context, credential string) (*domain.Identity, error) {
	if credential == "" {
		return nil, domain.ErrMissingAuthorization
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if r.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.config.Issuer))
	}

	claims := &UserClaims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(token *jwt.Token) (interface{}, error) {
		return r.config.Secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, domain.ErrInvalidCredential
	}
	if claims.Subject == "" {
		return nil, domain.ErrInvalidCredential
	}

	return &domain.Identity{
		ID:       claims.Subject,
		Email:    claims.Email,
		Metadata: claims.UserMetadata,
	}, nil
}
