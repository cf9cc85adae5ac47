package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coderev/coderev/backend/go-services/internal/models"
	"github.com/stretchr/testify/require"
)

func (s *testServer) upload(t *testing.T, path, token, name string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func TestAPI_RequiresAuth(t *testing.T) {
	s := newTestServer(t)
	requireStatus(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/workspaces", "", nil))
	requireStatus(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/profile", "not-a-token", nil))
}

func TestAPI_ProfileCreatedOnOpen(t *testing.T) {
	s := newTestServer(t)
	ada := s.token(t, "ada", "Ada", "ada@example.com")

	w := s.do(t, http.MethodPost, "/api/v1/live/open", ada, nil)
	requireStatus(t, http.StatusOK, w)
	require.Equal(t, "sid-ada", decode[map[string]interface{}](t, w)["sessionId"])

	w = s.do(t, http.MethodGet, "/api/v1/profile", ada, nil)
	requireStatus(t, http.StatusOK, w)
	p := decode[models.Profile](t, w)
	require.Equal(t, "ada", p.UID)
	require.Equal(t, "ada@example.com", p.Email)

	w = s.do(t, http.MethodPatch, "/api/v1/profile/notifications", ada, obj{"receiveEmails": true})
	requireStatus(t, http.StatusOK, w)
	p = decode[models.Profile](t, w)
	require.NotNil(t, p.ReceiveEmails)
	require.True(t, p.ReceiveEmails.Active)
	require.False(t, p.ReceiveFeedbackRequests.Active)
}

func TestAPI_WorkspaceReviewFlow(t *testing.T) {
	s := newTestServer(t)
	ada := s.token(t, "ada", "Ada", "ada@example.com")
	cand := s.token(t, "gen-1", "Candidate", "cand@example.com")
	bob := s.token(t, "bob", "Bob", "bob@example.com")

	requireStatus(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/workspaces", ada, obj{}))
	w := s.do(t, http.MethodPost, "/api/v1/workspaces", ada, obj{"name": "Interview"})
	requireStatus(t, http.StatusCreated, w)
	ws := decode[models.Workspace](t, w)
	require.NotEmpty(t, ws.UID)
	base := "/api/v1/workspaces/" + ws.UID

	w = s.do(t, http.MethodGet, "/api/v1/workspaces", ada, nil)
	requireStatus(t, http.StatusOK, w)
	require.Len(t, decode[[]models.Workspace](t, w), 1)

	requireStatus(t, http.StatusBadRequest, s.upload(t, base+"/sources", ada, "notes.exe", []byte("MZ")))
	w = s.upload(t, base+"/sources", ada, "solution.ts", []byte("export const x = 1"))
	requireStatus(t, http.StatusCreated, w)
	src := decode[models.MediaRef](t, w)
	require.Equal(t, "ts", src.Ext)

	w = s.do(t, http.MethodPost, base+"/candidates", ada, obj{"email": "cand@example.com", "label": "Round 1"})
	requireStatus(t, http.StatusCreated, w)
	c := decode[models.CandidateReview](t, w)
	require.Equal(t, ws.UID, c.WorkspaceUID)
	require.Contains(t, c.Sources, src.UID)

	// strangers see neither the workspace nor the review
	requireStatus(t, http.StatusForbidden, s.do(t, http.MethodGet, base, bob, nil))
	requireStatus(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/v1/candidates/"+c.UID, bob, nil))
	requireStatus(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/candidates/missing", bob, nil))

	w = s.do(t, http.MethodGet, "/api/v1/candidates/mine", cand, nil)
	requireStatus(t, http.StatusOK, w)
	require.Len(t, decode[[]models.CandidateReview](t, w), 1)

	w = s.do(t, http.MethodPost, "/api/v1/candidates/"+c.UID+"/comments", cand, obj{
		"text": "Off by one", "contextType": models.ContextSource, "contextUid": src.UID, "sourceRange": []int{1, 4},
	})
	requireStatus(t, http.StatusCreated, w)
	root := decode[models.ReviewComment](t, w)
	require.Equal(t, "gen-1", root.Author.UID)

	requireStatus(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/candidates/"+c.UID+"/comments", cand, obj{
		"text": "dangling", "contextType": models.ContextComment, "contextUid": "nope",
	}))

	w = s.do(t, http.MethodGet, base+"/candidates", ada, nil)
	requireStatus(t, http.StatusOK, w)
	list := decode[[]models.CandidateReview](t, w)
	require.Len(t, list, 1)
	require.Contains(t, list[0].Comments, root.UID)

	w = s.do(t, http.MethodPut, base+"/ratings/"+c.UID, ada, obj{"overall": 4, "comments": "solid"})
	requireStatus(t, http.StatusOK, w)
	require.Equal(t, 4, decode[models.Rating](t, w).Overall)

	requireStatus(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/v1/candidates/"+c.UID+"/comments/"+root.UID, cand, nil))
	requireStatus(t, http.StatusNoContent, s.do(t, http.MethodDelete, base+"/sources/"+src.UID, ada, nil))
	w = s.do(t, http.MethodGet, base, ada, nil)
	requireStatus(t, http.StatusOK, w)
	require.Empty(t, decode[models.Workspace](t, w).Sources)

	requireStatus(t, http.StatusForbidden, s.do(t, http.MethodDelete, base, bob, nil))
	requireStatus(t, http.StatusNoContent, s.do(t, http.MethodDelete, base, ada, nil))
	requireStatus(t, http.StatusNotFound, s.do(t, http.MethodGet, base, ada, nil))
}

func TestAPI_PageHideClosesSession(t *testing.T) {
	s := newTestServer(t)
	ada := s.token(t, "ada", "Ada", "ada@example.com")

	requireStatus(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/workspaces", ada, nil))
	require.Equal(t, 1, s.live.Len())

	w := s.do(t, http.MethodPost, "/api/v1/live/pagehide", ada, nil)
	requireStatus(t, http.StatusOK, w)
	require.Equal(t, true, decode[map[string]interface{}](t, w)["closed"])
	require.Equal(t, 0, s.live.Len())

	w = s.do(t, http.MethodPost, "/api/v1/live/pagehide", ada, nil)
	require.Equal(t, false, decode[map[string]interface{}](t, w)["closed"])
}

func TestAPI_SourceTextReadsThroughMembership(t *testing.T) {
	s := newTestServer(t)
	ada := s.token(t, "ada", "Ada", "ada@example.com")
	cand := s.token(t, "gen-1", "Candidate", "cand@example.com")
	bob := s.token(t, "bob", "Bob", "bob@example.com")

	w := s.do(t, http.MethodPost, "/api/v1/workspaces", ada, obj{"name": "Interview"})
	requireStatus(t, http.StatusCreated, w)
	base := "/api/v1/workspaces/" + decode[models.Workspace](t, w).UID
	w = s.upload(t, base+"/sources", ada, "main.go", []byte("package main"))
	requireStatus(t, http.StatusCreated, w)
	src := decode[models.MediaRef](t, w)
	w = s.do(t, http.MethodPost, base+"/candidates", ada, obj{"email": "cand@example.com"})
	requireStatus(t, http.StatusCreated, w)
	review := "/api/v1/candidates/" + decode[models.CandidateReview](t, w).UID

	type sourceText struct {
		Source models.MediaRef `json:"source"`
		Text   string          `json:"text"`
	}

	w = s.do(t, http.MethodGet, base+"/sources/"+src.UID, ada, nil)
	requireStatus(t, http.StatusOK, w)
	got := decode[sourceText](t, w)
	require.Equal(t, "package main", got.Text)
	require.Equal(t, src.UID, got.Source.UID)
	requireStatus(t, http.StatusNotFound, s.do(t, http.MethodGet, base+"/sources/missing", ada, nil))
	requireStatus(t, http.StatusForbidden, s.do(t, http.MethodGet, base+"/sources/"+src.UID, bob, nil))

	w = s.do(t, http.MethodGet, review+"/sources/"+src.UID, cand, nil)
	requireStatus(t, http.StatusOK, w)
	require.Equal(t, "package main", decode[sourceText](t, w).Text)
	requireStatus(t, http.StatusForbidden, s.do(t, http.MethodGet, review+"/sources/"+src.UID, bob, nil))
}
