package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/coderev/coderev/backend/go-services/internal/live"
	"github.com/coderev/coderev/backend/go-services/internal/repository"
	"github.com/coderev/coderev/backend/go-services/internal/storage"
	"github.com/coderev/coderev/backend/go-services/internal/stores"
	"github.com/coderev/coderev/backend/go-services/pkg/logger"
	"github.com/coderev/coderev/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// maxSourceSize bounds uploaded source files.
const maxSourceSize = 5 << 20

// APIHandler serves the live session API. Every request runs against the
// caller's live session, which is opened on first use.
type APIHandler struct {
	live      *live.Manager
	heartbeat time.Duration
}

func NewAPIHandler(m *live.Manager, heartbeat time.Duration) *APIHandler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &APIHandler{live: m, heartbeat: heartbeat}
}

// Register mounts the routes on rg, which must already run AuthMiddleware.
func (h *APIHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/live/open", h.OpenSession)
	rg.POST("/live/pagehide", h.PageHide)
	rg.GET("/live/stream", h.Stream)

	rg.GET("/profile", h.GetProfile)
	rg.PATCH("/profile/notifications", h.UpdateNotifications)

	rg.GET("/workspaces", h.ListWorkspaces)
	rg.POST("/workspaces", h.CreateWorkspace)
	rg.GET("/workspaces/:uid", h.GetWorkspace)
	rg.DELETE("/workspaces/:uid", h.DeleteWorkspace)
	rg.POST("/workspaces/:uid/sources", h.AddSource)
	rg.GET("/workspaces/:uid/sources/:sourceUid", h.GetWorkspaceSource)
	rg.DELETE("/workspaces/:uid/sources/:sourceUid", h.RemoveSource)
	rg.POST("/workspaces/:uid/collaborators", h.AddCollaborator)
	rg.PUT("/workspaces/:uid/ratings/:candidateUid", h.RateCandidate)
	rg.GET("/workspaces/:uid/candidates", h.ListCandidates)
	rg.POST("/workspaces/:uid/candidates", h.CreateCandidate)

	rg.GET("/candidates/mine", h.MyCandidateWorkspaces)
	rg.GET("/candidates/:uid", h.GetCandidate)
	rg.GET("/candidates/:uid/sources/:sourceUid", h.GetCandidateSource)
	rg.POST("/candidates/:uid/comments", h.AddComment)
	rg.DELETE("/candidates/:uid/comments/:commentUid", h.RemoveComment)
}

// sessionID is the "sid" claim of the access token. Tokens without one
// (identity provider tokens used directly) share a session per user.
func sessionID(c *gin.Context) (string, bool) {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		return "", false
	}
	if sid := a.Claim("sid"); sid != "" {
		return sid, true
	}
	return "user:" + a.UID, true
}

// session returns the caller's live session, opening it when needed. On
// failure the response has been written.
func (h *APIHandler) session(c *gin.Context) (*live.Session, bool) {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return nil, false
	}
	sid, _ := sessionID(c)
	s, err := h.live.Open(c.Request.Context(), sid, a)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return s, true
}

// respondError maps store and storage errors to HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, stores.ErrLoginRequired), errors.Is(err, repository.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, stores.ErrForbidden), errors.Is(err, live.ErrSessionOwner):
		status = http.StatusForbidden
	case errors.Is(err, stores.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, stores.ErrInvalidInput), errors.Is(err, stores.ErrNoWorkspace), errors.Is(err, storage.ErrUnsupportedFile):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
