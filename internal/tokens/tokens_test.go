package tokens

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/coderev/coderev/backend/go-services/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func testConfig(secret string) *config.Config {
	cfg := &config.Config{}
	cfg.JWT.Secret = secret
	return cfg
}

func TestGenerateAccessToken_ValidAndClaims(t *testing.T) {
	cfg := testConfig("test-secret-32-bytes-should-be-long-enough")
	s := Subject{
		UID:       "user-123",
		Name:      "Test User",
		Email:     "test@example.com",
		SessionID: "sid-1",
		Claims:    map[string]string{"assigned_workspace_uid": "w1", "sub": "ignored"},
	}
	tokenStr, err := GenerateAccessToken(cfg, s, 2*time.Minute)
	require.NoError(t, err)

	tok, err := NewVerifier(cfg.JWT.Secret).Verify(context.Background(), tokenStr)
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "user-123", claims["sub"])
	require.Equal(t, "sid-1", claims["sid"])
	require.Equal(t, "w1", claims["assigned_workspace_uid"])
}

func TestGenerateAccessToken_RequiresSubject(t *testing.T) {
	_, err := GenerateAccessToken(testConfig("x"), Subject{}, time.Minute)
	require.Error(t, err)
}

func TestVerify_Expired(t *testing.T) {
	cfg := testConfig("another-secret-32-bytes-longgggg")
	tokenStr, err := GenerateAccessToken(cfg, Subject{UID: "u2"}, -time.Minute)
	require.NoError(t, err)
	_, err = NewVerifier(cfg.JWT.Secret).Verify(context.Background(), tokenStr)
	require.Error(t, err)
}

func TestVerify_WrongSecretFails(t *testing.T) {
	cfg := testConfig("secret-one-32-bytes-xxxxxxxxxxxxxxxx")
	tokenStr, err := GenerateAccessToken(cfg, Subject{UID: "u3"}, 2*time.Minute)
	require.NoError(t, err)
	_, err = NewVerifier("different-secret-xxxxxxxxxxxxxxxx").Verify(context.Background(), tokenStr)
	require.Error(t, err)
}

func TestVerify_NoSecret(t *testing.T) {
	_, err := NewVerifier("").Verify(context.Background(), "a.b.c")
	require.Error(t, err)
}

func TestVerify_Malformed(t *testing.T) {
	_, err := NewVerifier("x").Verify(context.Background(), "not.a.jwt")
	require.Error(t, err)
}

// Rejected when alg=none (unsigned token)
func TestVerify_AlgNoneRejected(t *testing.T) {
	headerEnc := (&jwt.Token{}).EncodeSegment([]byte(`{"alg":"none"}`))
	payloadEnc := (&jwt.Token{}).EncodeSegment([]byte(`{"sub":"u-none","exp":9999999999}`))
	_, err := NewVerifier("x").Verify(context.Background(), headerEnc+"."+payloadEnc+".")
	require.Error(t, err)
}

// Tampering with payload must fail signature verification
func TestVerify_TamperedPayload(t *testing.T) {
	cfg := testConfig("tamper-test-secret-32-bytes-xxxxxxx")
	tokenStr, err := GenerateAccessToken(cfg, Subject{UID: "user-t"}, 5*time.Minute)
	require.NoError(t, err)
	parts := strings.Split(tokenStr, ".")
	require.Len(t, parts, 3)
	payloadBytes, _ := jwt.NewParser().DecodeSegment(parts[1])
	parts[1] = (&jwt.Token{}).EncodeSegment([]byte(strings.Replace(string(payloadBytes), "user-t", "attacker", 1)))
	_, err = NewVerifier(cfg.JWT.Secret).Verify(context.Background(), strings.Join(parts, "."))
	require.Error(t, err)
}
