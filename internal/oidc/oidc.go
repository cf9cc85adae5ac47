package oidc

import (
	"context"
	"errors"
	"fmt"

	"github.com/coderev/coderev/backend/go-services/internal/config"
	"github.com/coderev/coderev/backend/go-services/pkg/logger"
	"github.com/coderev/coderev/backend/go-services/pkg/middleware"
	"github.com/coreos/go-oidc/v3/oidc"
)

// Verifier wraps the OIDC provider and token verifier
type Verifier struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

// NewVerifier creates a new OIDC verifier for the given issuer and client ID
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})
	return &Verifier{provider: provider, verifier: verifier}, nil
}

// Verify verifies the provided raw ID token using the provided context and returns a middleware.Token
func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}

// FromConfig returns the Keycloak verifier, the insecure verifier when
// explicitly allowed, or nil when the identity provider is not configured.
func FromConfig(ctx context.Context, kc config.KeycloakConfig) (middleware.Verifier, error) {
	if kc.URL == "" || kc.ClientID == "" {
		if kc.AllowInsecure {
			logger.Warnf("enabling insecure OIDC verifier (integration mode)")
			return NewInsecureVerifier(), nil
		}
		return nil, nil
	}
	ver, err := NewVerifier(ctx, kc.Issuer(), kc.ClientID)
	if err != nil {
		if kc.AllowInsecure {
			logger.Warnf("OIDC discovery failed (%v); enabling insecure verifier", err)
			return NewInsecureVerifier(), nil
		}
		return nil, err
	}
	return ver, nil
}

// VerifyClaims verifies raw with ver and decodes its claims.
func VerifyClaims(ctx context.Context, ver middleware.Verifier, raw string) (map[string]interface{}, error) {
	if ver == nil {
		return nil, errors.New("identity provider not configured")
	}
	tok, err := ver.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	var claims map[string]interface{}
	if err := tok.Claims(&claims); err != nil {
		return nil, err
	}
	return claims, nil
}
