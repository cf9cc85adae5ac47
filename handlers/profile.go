package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *APIHandler) GetProfile(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	p := s.App.Profile()
	if p == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "login required"})
		return
	}
	c.JSON(http.StatusOK, p)
}

type notificationOptions struct {
	ReceiveEmails           bool `json:"receiveEmails"`
	ReceiveFeedbackRequests bool `json:"receiveFeedbackRequests"`
}

func (h *APIHandler) UpdateNotifications(c *gin.Context) {
	var req notificationOptions
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.App.UpdateNotificationOptions(s.Context(c.Request.Context()), req.ReceiveEmails, req.ReceiveFeedbackRequests); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.App.Profile())
}
