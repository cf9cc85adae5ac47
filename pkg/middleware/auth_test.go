package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/coderev/coderev/backend/go-services/internal/auth"
	"github.com/coderev/coderev/backend/go-services/internal/sessions"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// fakeToken implements Token
type fakeToken struct {
	data map[string]interface{}
}

func (t *fakeToken) Claims(v interface{}) error {
	if mm, ok := v.(*map[string]interface{}); ok {
		*mm = t.data
		return nil
	}
	return fmt.Errorf("unsupported claims type")
}

// fakeVerifier accepts a single token
type fakeVerifier struct {
	accept string
	claims map[string]interface{}
}

func (f *fakeVerifier) Verify(ctx context.Context, raw string) (Token, error) {
	if raw == f.accept {
		return &fakeToken{data: f.claims}, nil
	}
	return nil, fmt.Errorf("invalid token")
}

var good = &fakeVerifier{
	accept: "goodtoken",
	claims: map[string]interface{}{"sub": "user1", "email": "test@example.com", "preferred_username": "tester"},
}

func call(t *testing.T, ver Verifier, header string, h gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	g := gin.New()
	if h == nil {
		h = func(c *gin.Context) { c.Status(http.StatusOK) }
	}
	g.GET("/", AuthMiddleware(ver), h)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	return rw
}

func TestAuthMiddleware_NoHeader(t *testing.T) {
	require.Equal(t, http.StatusUnauthorized, call(t, good, "", nil).Code)
}

func TestAuthMiddleware_InvalidHeader(t *testing.T) {
	require.Equal(t, http.StatusUnauthorized, call(t, good, "BadHeader", nil).Code)
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	rw := call(t, good, "Bearer goodtoken", func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		require.True(t, ok)
		fromCtx, ok := auth.ActorFromContext(c.Request.Context())
		require.True(t, ok)
		require.Equal(t, actor, fromCtx)
		raw, _ := c.Get(TokenKey)
		c.JSON(http.StatusOK, gin.H{"uid": actor.UID, "name": actor.Name, "token": raw})
	})
	require.Equal(t, http.StatusOK, rw.Code)
	var got map[string]string
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
	require.Equal(t, map[string]string{"uid": "user1", "name": "tester", "token": "goodtoken"}, got)
}

func TestAuthMiddleware_RequiresSubject(t *testing.T) {
	ver := &fakeVerifier{accept: "nosub", claims: map[string]interface{}{"email": "x@example.com"}}
	require.Equal(t, http.StatusUnauthorized, call(t, ver, "Bearer nosub", nil).Code)
}

func TestAuthMiddleware_RejectsBlacklistedToken(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	sessions.SetBlacklistClient(client)
	defer sessions.SetBlacklistClient(nil)

	require.Equal(t, http.StatusOK, call(t, good, "Bearer goodtoken", nil).Code)
	require.NoError(t, sessions.BlacklistAccessToken(context.Background(), "goodtoken", 5*time.Second))
	require.Equal(t, http.StatusUnauthorized, call(t, good, "Bearer goodtoken", nil).Code)
}

func TestVerifiers_FirstSuccessWins(t *testing.T) {
	other := &fakeVerifier{accept: "othertoken", claims: map[string]interface{}{"sub": "user2"}}
	chain := Verifiers{nil, good, other}

	tok, err := chain.Verify(context.Background(), "othertoken")
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "user2", claims["sub"])

	_, err = chain.Verify(context.Background(), "nope")
	require.Error(t, err)
	_, err = Verifiers{}.Verify(context.Background(), "goodtoken")
	require.EqualError(t, err, "no token verifier configured")
}
