package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/ptahnest/ptahnest/internal/auth"
	"github.com/ptahnest/ptahnest/internal/middleware"
	"github.com/ptahnest/ptahnest/pkg/response"
)

// AuthHandler manages the register/login/logout/me flows. Session tokens
// travel in an HTTP-only cookie; every successful login or registration
// rotates the token.
type AuthHandler struct {
	auth          *iauth.AuthService
	secureCookies bool
}

func NewAuthHandler(auth *iauth.AuthService, secureCookies bool) *AuthHandler {
	return &AuthHandler{auth: auth, secureCookies: secureCookies}
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,username"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
	Remember   bool   `json:"remember"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	fp := requestFingerprint(c)
	user, session, err := h.auth.Register(requestContext(c), iauth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}, fp, presentedToken(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setSessionCookie(c, session.Token, false)
	response.Success(c, http.StatusCreated, gin.H{"user": user.Public()})
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	fp := requestFingerprint(c)
	user, session, err := h.auth.Login(requestContext(c), iauth.LoginInput{
		Identifier: req.Identifier,
		Password:   req.Password,
		Remember:   req.Remember,
	}, fp, presentedToken(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setSessionCookie(c, session.Token, req.Remember)
	response.Success(c, http.StatusOK, gin.H{"user": user.Public()})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	token := currentSessionToken(c)
	if token == "" {
		token = presentedToken(c)
	}
	if token != "" {
		if err := h.auth.Logout(requestContext(c), token); err != nil {
			response.Error(c, err)
			return
		}
	}

	h.clearSessionCookie(c)
	response.Success(c, http.StatusOK, gin.H{"message": "Logged out"})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.auth.Me(requestContext(c), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"user": user.Public()})
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, token string, remember bool) {
	maxAge := 0
	if remember {
		maxAge = int(iauth.DefaultRememberTTL.Seconds())
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookieName, token, maxAge, "/", "", h.secureCookies, true)
}

func (h *AuthHandler) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookieName, "", -1, "/", "", h.secureCookies, true)
}

// presentedToken returns the raw cookie token even when the integrity
// middleware did not resolve it, so login can rotate a stale token away.
func presentedToken(c *gin.Context) string {
	token, err := c.Cookie(middleware.SessionCookieName)
	if err != nil {
		return ""
	}
	return token
}

func requestFingerprint(c *gin.Context) iauth.Fingerprint {
	return iauth.Fingerprint{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}
