package handlers

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// nextEvent reads SSE lines until an "event:" line named one of want.
func nextEvent(t *testing.T, lines <-chan string, want ...string) string {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case l, ok := <-lines:
			require.True(t, ok, "stream ended while waiting for %v", want)
			if !strings.HasPrefix(l, "event:") {
				continue
			}
			name := strings.TrimSpace(strings.TrimPrefix(l, "event:"))
			for _, w := range want {
				if name == w {
					return name
				}
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %v", want)
		}
	}
}

func TestStream_PushesStoreEvents(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.engine)
	defer srv.Close()
	ada := s.token(t, "ada", "Ada", "ada@example.com")

	// subscribe to the workspace list before streaming
	requireStatus(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/workspaces", ada, nil))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/live/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+ada)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	nextEvent(t, lines, "open")
	nextEvent(t, lines, "heartbeat")

	requireStatus(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/workspaces", ada, obj{"name": "Live"}))
	nextEvent(t, lines, "workspaces")

	requireStatus(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/live/pagehide", ada, nil))
	nextEvent(t, lines, "closed")
}

func TestStream_DisconnectClosesSession(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.engine)
	defer srv.Close()
	ada := s.token(t, "ada", "Ada", "ada@example.com")

	requireStatus(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/workspaces", ada, nil))
	sess, ok := s.live.Get("sid-ada")
	require.True(t, ok)
	require.True(t, sess.Registry.Has("workspaces.ada"))

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/live/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+ada)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	nextEvent(t, lines, "open")
	require.Equal(t, 1, sess.Listeners())

	cancel()
	require.Eventually(t, func() bool {
		_, open := s.live.Get("sid-ada")
		return !open
	}, 5*time.Second, 10*time.Millisecond)
	require.Zero(t, sess.Registry.Len())
}
