package handlers

import (
	"net/http"

	"github.com/coderev/coderev/backend/go-services/internal/live"
	"github.com/coderev/coderev/backend/go-services/internal/models"
	"github.com/gin-gonic/gin"
)

// MyCandidateWorkspaces lists the reviews assigned to the caller's email.
func (h *APIHandler) MyCandidateWorkspaces(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	email := s.User.Email
	if p := s.App.Profile(); p != nil && email == "" {
		email = p.Email
	}
	if err := s.Candidates.LoadCandidateWorkspaces(s.Context(c.Request.Context()), email); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Candidates.CandidateWorkspaces())
}

// openCandidate makes the :uid review the session's open review.
func (h *APIHandler) openCandidate(c *gin.Context) (*live.Session, bool) {
	s, ok := h.session(c)
	if !ok {
		return nil, false
	}
	if err := s.Candidates.EnsureCandidate(s.Context(c.Request.Context()), c.Param("uid")); err != nil {
		respondError(c, err)
		return nil, false
	}
	return s, true
}

func (h *APIHandler) GetCandidate(c *gin.Context) {
	s, ok := h.openCandidate(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Candidates.Candidate())
}

func (h *APIHandler) AddComment(c *gin.Context) {
	var req models.ReviewComment
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, ok := h.openCandidate(c)
	if !ok {
		return
	}
	cm, err := s.Candidates.AddComment(s.Context(c.Request.Context()), c.Param("uid"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cm)
}

func (h *APIHandler) RemoveComment(c *gin.Context) {
	s, ok := h.openCandidate(c)
	if !ok {
		return
	}
	if err := s.Candidates.RemoveComment(s.Context(c.Request.Context()), c.Param("uid"), c.Param("commentUid")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
