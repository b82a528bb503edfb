package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/ptahnest/ptahnest/internal/middleware"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentUserID returns the authenticated user's id, or "" for anonymous
// requests.
func currentUserID(c *gin.Context) string {
	v, ok := c.Get(middleware.CtxUserIDKey)
	if !ok {
		return ""
	}
	id, _ := v.(string)
	return id
}

// currentSessionToken returns the resolved session token, or "".
func currentSessionToken(c *gin.Context) string {
	v, ok := c.Get(middleware.CtxSessionTokenKey)
	if !ok {
		return ""
	}
	token, _ := v.(string)
	return token
}
