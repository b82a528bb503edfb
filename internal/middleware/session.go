package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/ptahnest/ptahnest/internal/auth"
	appErrors "github.com/ptahnest/ptahnest/pkg/errors"
	"github.com/ptahnest/ptahnest/pkg/logger"
	"github.com/ptahnest/ptahnest/pkg/metrics"
	"github.com/ptahnest/ptahnest/pkg/response"
)

const (
	// SessionCookieName carries the opaque session token.
	SessionCookieName = "ptahnest_session"

	CtxUserIDKey       = "userID"
	CtxSessionTokenKey = "sessionToken"
	CtxSessionKey      = "session"
)

const maxLoggedUALen = 120

// SessionIntegrity resolves the session cookie and verifies the request's
// fingerprint against the one stamped at issue time. Requests without a
// cookie, or with a token that no longer resolves, proceed anonymously;
// a resolvable session with a missing or mismatched fingerprint is
// destroyed and the request rejected.
func SessionIntegrity(sessions *iauth.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(SessionCookieName)
		if err != nil || token == "" {
			c.Next()
			return
		}

		session, err := sessions.Resolve(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, iauth.ErrSessionNotFound) || errors.Is(err, iauth.ErrSessionExpired) {
				clearSessionCookie(c)
				c.Next()
				return
			}
			response.Error(c, appErrors.Wrap(err, "Internal server error"))
			c.Abort()
			return
		}

		// A session without a stamped fingerprint cannot be verified;
		// fail safe rather than open.
		if !session.Fingerprinted() {
			destroySession(c, sessions, token)
			clearSessionCookie(c)
			response.Error(c, appErrors.ErrInvalidSession)
			c.Abort()
			return
		}

		current := iauth.Fingerprint{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		stamped := iauth.Fingerprint{
			IPAddress: session.IPAddress,
			UserAgent: session.UserAgent,
		}
		if !stamped.Matches(current) {
			logger.WithModule("session").Warn("fingerprint mismatch",
				zap.String("user_id", session.UserID),
				zap.String("stamped_ip", session.IPAddress),
				zap.String("request_ip", current.IPAddress),
				zap.String("stamped_ua", truncate(session.UserAgent, maxLoggedUALen)),
				zap.String("request_ua", truncate(current.UserAgent, maxLoggedUALen)),
			)
			metrics.HijackDetections.Inc()
			destroySession(c, sessions, token)
			clearSessionCookie(c)
			response.Error(c, appErrors.ErrSessionHijack)
			c.Abort()
			return
		}

		c.Set(CtxUserIDKey, session.UserID)
		c.Set(CtxSessionTokenKey, token)
		c.Set(CtxSessionKey, session)

		_ = sessions.Touch(c.Request.Context(), token)

		c.Next()
	}
}

// RequireAuth rejects requests that did not resolve to a verified session.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(CtxUserIDKey); !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Next()
	}
}

// destroySession revokes the session but never blocks the rejection: a
// failed destroy is logged and the 401 still goes out.
func destroySession(c *gin.Context, sessions *iauth.SessionService, token string) {
	if err := sessions.Destroy(c.Request.Context(), token); err != nil {
		logger.WithModule("session").Error("session destroy failed",
			zap.Error(err),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func clearSessionCookie(c *gin.Context) {
	c.SetCookie(SessionCookieName, "", -1, "/", "", false, true)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
