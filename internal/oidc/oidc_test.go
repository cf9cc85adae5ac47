package oidc

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/coderev/coderev/backend/go-services/internal/config"
	"github.com/stretchr/testify/require"
)

func unsigned(payload string) string {
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(`{"alg":"none"}`)) + "." + enc.EncodeToString([]byte(payload)) + "."
}

func TestInsecureVerifier(t *testing.T) {
	claims, err := VerifyClaims(context.Background(), NewInsecureVerifier(), unsigned(`{"sub":"u1","email":"u1@example.com"}`))
	require.NoError(t, err)
	require.Equal(t, "u1", claims["sub"])

	_, err = VerifyClaims(context.Background(), NewInsecureVerifier(), "garbage")
	require.Error(t, err)
}

func TestVerifyClaims_NoVerifier(t *testing.T) {
	_, err := VerifyClaims(context.Background(), nil, "x.y.z")
	require.Error(t, err)
}

func TestFromConfig_Unconfigured(t *testing.T) {
	ver, err := FromConfig(context.Background(), config.KeycloakConfig{})
	require.NoError(t, err)
	require.Nil(t, ver)

	ver, err = FromConfig(context.Background(), config.KeycloakConfig{AllowInsecure: true})
	require.NoError(t, err)
	require.IsType(t, &InsecureVerifier{}, ver)
}
