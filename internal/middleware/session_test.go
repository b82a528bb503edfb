package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/ptahnest/ptahnest/internal/auth"
	"github.com/ptahnest/ptahnest/internal/database/testutil"
	"github.com/ptahnest/ptahnest/internal/models"
	appErrors "github.com/ptahnest/ptahnest/pkg/errors"
	"github.com/ptahnest/ptahnest/pkg/response"
)

const testUserAgent = "Mozilla/5.0 (X11; Linux x86_64)"

func newSessionRouter(t *testing.T) (*gin.Engine, *iauth.SessionService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	require.NoError(t, db.Create(&models.User{
		ID:       "user-1",
		Username: "user-1",
		Email:    "user-1@example.com",
		Password: "not-a-real-hash",
	}).Error)

	sessions, err := iauth.NewSessionService(db, iauth.SessionConfig{})
	require.NoError(t, err)

	r := gin.New()
	r.Use(SessionIntegrity(sessions))
	r.GET("/whoami", func(c *gin.Context) {
		v, ok := c.Get(CtxUserIDKey)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"user_id": ""})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": v})
	})
	return r, sessions
}

func issueTestSession(t *testing.T, sessions *iauth.SessionService, ip, ua string) *models.Session {
	t.Helper()

	session, err := sessions.Issue(context.Background(), "user-1", iauth.Fingerprint{
		IPAddress: ip,
		UserAgent: ua,
	}, false, "")
	require.NoError(t, err)
	return session
}

func doRequest(r *gin.Engine, token, ip, ua string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/whoami", nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	}
	if ip != "" {
		req.Header.Set("X-Forwarded-For", ip)
		req.RemoteAddr = ip + ":443"
	}
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestSessionIntegrityNoCookiePassesThrough(t *testing.T) {
	r, _ := newSessionRouter(t)

	w := doRequest(r, "", "198.51.100.7", testUserAgent)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "", decodeBody(t, w)["user_id"])
}

func TestSessionIntegrityUnknownTokenClearsCookie(t *testing.T) {
	r, _ := newSessionRouter(t)

	w := doRequest(r, "stale-token", "198.51.100.7", testUserAgent)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "", decodeBody(t, w)["user_id"])

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, SessionCookieName, cookies[0].Name)
	require.Empty(t, cookies[0].Value)
}

func TestSessionIntegrityMatchSetsPrincipal(t *testing.T) {
	r, sessions := newSessionRouter(t)
	session := issueTestSession(t, sessions, "198.51.100.7", testUserAgent)

	w := doRequest(r, session.Token, "198.51.100.7", testUserAgent)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "user-1", decodeBody(t, w)["user_id"])
}

func TestSessionIntegrityAddressChangeDetected(t *testing.T) {
	r, sessions := newSessionRouter(t)
	session := issueTestSession(t, sessions, "198.51.100.7", testUserAgent)

	w := doRequest(r, session.Token, "203.0.113.99", testUserAgent)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, false, body["success"])
	require.Equal(t, "SESSION_HIJACKING_DETECTED", body["code"])

	// The session is destroyed, so even the original fingerprint misses now.
	w = doRequest(r, session.Token, "198.51.100.7", testUserAgent)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "", decodeBody(t, w)["user_id"])
}

func TestSessionIntegrityUserAgentChangeDetected(t *testing.T) {
	r, sessions := newSessionRouter(t)
	session := issueTestSession(t, sessions, "198.51.100.7", testUserAgent)

	w := doRequest(r, session.Token, "198.51.100.7", "curl/8.5.0")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "SESSION_HIJACKING_DETECTED", decodeBody(t, w)["code"])
}

func TestSessionIntegrityUnfingerprintedSessionRejected(t *testing.T) {
	r, sessions := newSessionRouter(t)

	session, err := sessions.Issue(context.Background(), "user-1", iauth.Fingerprint{}, false, "")
	require.NoError(t, err)

	w := doRequest(r, session.Token, "198.51.100.7", testUserAgent)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "INVALID_SESSION", decodeBody(t, w)["code"])
}

func TestSessionDestroyFailureStillRejects(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	sessions, err := iauth.NewSessionService(db, iauth.SessionConfig{})
	require.NoError(t, err)

	// Kill the store so the destroy fails mid-enforcement.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/whoami", nil)

	destroySession(c, sessions, "doomed-token")
	response.Error(c, appErrors.ErrSessionHijack)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "SESSION_HIJACKING_DETECTED", body["code"])
}

func TestRequireAuthBlocksAnonymous(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/private", RequireAuth(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/private", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
