package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coderev/coderev/backend/go-services/internal/auth"
	"github.com/coderev/coderev/backend/go-services/internal/sessions"
	"github.com/coderev/coderev/backend/go-services/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Context keys set by AuthMiddleware.
const (
	ClaimsKey = "claims"
	ActorKey  = "actor"
	TokenKey  = "accessToken"
)

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// Verifiers tries each verifier in order and accepts the first success.
type Verifiers []Verifier

func (vs Verifiers) Verify(ctx context.Context, raw string) (Token, error) {
	var errs []error
	for _, v := range vs {
		if v == nil {
			continue
		}
		tok, err := v.Verify(ctx, raw)
		if err == nil {
			return tok, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, errors.New("no token verifier configured")
	}
	return nil, errors.Join(errs...)
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	var token string
	if n, _ := fmt.Sscanf(h, "Bearer %s", &token); n != 1 {
		return "", false
	}
	return token, true
}

// AuthMiddleware returns a Gin middleware that verifies Bearer tokens using
// the provided verifier. The claims, the actor and the raw token are set on
// the gin context and the actor is attached to the request context.
func AuthMiddleware(ver Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}
		token, ok := BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
			return
		}

		blocked, err := sessions.IsAccessTokenBlacklisted(c.Request.Context(), token)
		if err != nil {
			logger.Warnf("blacklist check failed: %v", err)
		}
		if blocked {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
			return
		}

		verified, err := ver.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "details": err.Error()})
			return
		}

		var claims map[string]interface{}
		if err := verified.Claims(&claims); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "failed to parse claims"})
			return
		}
		actor, ok := auth.FromClaims(claims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token has no subject"})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(ActorKey, actor)
		c.Set(TokenKey, token)
		c.Request = c.Request.WithContext(auth.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

// ActorFrom returns the actor set by AuthMiddleware.
func ActorFrom(c *gin.Context) (auth.Actor, bool) {
	v, ok := c.Get(ActorKey)
	if !ok {
		return auth.Actor{}, false
	}
	a, ok := v.(auth.Actor)
	return a, ok && a.UID != ""
}

// limiterKey prefers the authenticated actor and falls back to the client IP.
func limiterKey(c *gin.Context) string {
	if a, ok := ActorFrom(c); ok {
		return "sub:" + a.UID
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}
