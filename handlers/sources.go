package handlers

import (
	"fmt"
	"net/http"

	"github.com/coderev/coderev/backend/go-services/internal/models"
	"github.com/coderev/coderev/backend/go-services/internal/stores"
	"github.com/gin-gonic/gin"
)

// GetWorkspaceSource returns the text of one workspace source. Presigned
// source URLs expire; this route reads through the API instead.
func (h *APIHandler) GetWorkspaceSource(c *gin.Context) {
	s, ok := h.openWorkspace(c)
	if !ok {
		return
	}
	var sources map[string]models.MediaRef
	if w := s.Workspaces.Workspace(); w != nil {
		sources = w.Sources
	}
	h.writeSource(c, sources)
}

// GetCandidateSource returns the text of a source copied onto a review.
func (h *APIHandler) GetCandidateSource(c *gin.Context) {
	s, ok := h.openCandidate(c)
	if !ok {
		return
	}
	var sources map[string]models.MediaRef
	if r := s.Candidates.Candidate(); r != nil {
		sources = r.Sources
	}
	h.writeSource(c, sources)
}

func (h *APIHandler) writeSource(c *gin.Context, sources map[string]models.MediaRef) {
	uid := c.Param("sourceUid")
	ref, ok := sources[uid]
	if !ok || ref.Path == "" {
		respondError(c, fmt.Errorf("source %s: %w", uid, stores.ErrNotFound))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"source": ref,
		"text":   h.live.Files().ReadText(c.Request.Context(), ref.Path),
	})
}
