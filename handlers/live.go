package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/coderev/coderev/backend/go-services/pkg/logger"
	"github.com/gin-gonic/gin"
)

// OpenSession signs the caller into their live session.
func (h *APIHandler) OpenSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": s.ID, "profile": s.App.Profile()})
}

// PageHide disposes every live subscription of the caller's session.
func (h *APIHandler) PageHide(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": h.live.Close(sid)})
}

// Stream pushes store events to the client as Server-Sent Events until the
// client goes away or the session is closed. When the last stream of a
// session disconnects the session is closed too.
func (h *APIHandler) Stream(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	events, detach := s.Events()
	defer func() {
		detach()
		if h.live.Release(s.ID) {
			logger.Debugf("last stream of session %s disconnected", s.ID)
		}
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("open", gin.H{"sessionId": s.ID})
	c.Stream(func(w io.Writer) bool {
		select {
		case e, ok := <-events:
			if !ok {
				c.SSEvent("closed", gin.H{"sessionId": s.ID})
				return false
			}
			c.SSEvent(e.Topic, e)
			return true
		case t := <-ticker.C:
			c.SSEvent("heartbeat", t.UTC().Format(time.RFC3339))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
