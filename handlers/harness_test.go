package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coderev/coderev/backend/go-services/internal/accounts"
	"github.com/coderev/coderev/backend/go-services/internal/config"
	"github.com/coderev/coderev/backend/go-services/internal/docstore"
	"github.com/coderev/coderev/backend/go-services/internal/live"
	"github.com/coderev/coderev/backend/go-services/internal/oidc"
	"github.com/coderev/coderev/backend/go-services/internal/repository"
	"github.com/coderev/coderev/backend/go-services/internal/sessions"
	"github.com/coderev/coderev/backend/go-services/internal/storage"
	"github.com/coderev/coderev/backend/go-services/internal/tokens"
	"github.com/coderev/coderev/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

type testServer struct {
	cfg      *config.Config
	engine   *gin.Engine
	live     *live.Manager
	accounts *accounts.Service
	sessions *sessions.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{}
	cfg.JWT.Secret = "handler-test-secret-32-bytes-xxxxxx"

	backend := docstore.NewMemoryBackend()
	mgr := live.NewManager(backend, storage.NewSourceStorage(storage.NewMemoryObjectStore("mem:")))
	t.Cleanup(mgr.Shutdown)
	acc := accounts.NewService(accounts.NewMemoryRepository(), repository.NewWorkspaces(backend))
	sess := sessions.NewService(sessions.NewMemoryRepository())

	r := gin.New()
	authn := middleware.AuthMiddleware(tokens.NewVerifier(cfg.JWT.Secret))
	NewAuthHandler(cfg, acc, sess, mgr, oidc.NewInsecureVerifier()).Register(r.Group("/"))
	NewFunctionsHandler(acc, time.Minute).Register(r.Group("/functions", OptionalAuth(authn)))
	NewAPIHandler(mgr, 20*time.Millisecond).Register(r.Group("/api/v1", authn))

	return &testServer{cfg: cfg, engine: r, live: mgr, accounts: acc, sessions: sess}
}

// token mints an access token for uid with its own live session.
func (s *testServer) token(t *testing.T, uid, name, email string) string {
	t.Helper()
	tok, err := tokens.GenerateAccessToken(s.cfg, tokens.Subject{UID: uid, Name: name, Email: email, SessionID: "sid-" + uid}, time.Minute)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func requireStatus(t *testing.T, want int, w *httptest.ResponseRecorder) {
	t.Helper()
	require.Equal(t, want, w.Code, w.Body.String())
}
