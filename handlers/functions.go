package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coderev/coderev/backend/go-services/internal/accounts"
	"github.com/coderev/coderev/backend/go-services/pkg/metrics"
	"github.com/gin-gonic/gin"
)

// FunctionsHandler serves callable functions. Requests carry their payload
// in a "data" envelope and responses return theirs in "result".
type FunctionsHandler struct {
	accounts *accounts.Service
	timeout  time.Duration
}

func NewFunctionsHandler(a *accounts.Service, timeout time.Duration) *FunctionsHandler {
	return &FunctionsHandler{accounts: a, timeout: timeout}
}

// Register mounts the functions on rg. Authentication is optional: the
// functions decide how to answer unauthenticated callers.
func (h *FunctionsHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/"+accounts.FunctionGenerateAccount, h.GenerateAccount)
}

type callableRequest[T any] struct {
	Data T `json:"data"`
}

func (h *FunctionsHandler) GenerateAccount(c *gin.Context) {
	var req callableRequest[accounts.GenerateAccountRequest]
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.FunctionCalls.WithLabelValues(accounts.FunctionGenerateAccount, "bad_request").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"status": "INVALID_ARGUMENT", "message": err.Error()}})
		return
	}
	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	c.JSON(http.StatusOK, gin.H{"result": h.accounts.GenerateAccount(ctx, req.Data)})
}

// OptionalAuth runs auth when an Authorization header is present so callable
// functions can fail closed on their own terms instead of with a 401.
func OptionalAuth(authn gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		authn(c)
	}
}
