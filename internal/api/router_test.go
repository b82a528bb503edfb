package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ptahnest/ptahnest/internal/app"
	iauth "github.com/ptahnest/ptahnest/internal/auth"
	"github.com/ptahnest/ptahnest/internal/database/testutil"
	"github.com/ptahnest/ptahnest/internal/services"
	"github.com/ptahnest/ptahnest/pkg/metrics"
)

const testUserAgent = "Mozilla/5.0 (X11; Linux x86_64)"

type apiClient struct {
	t      *testing.T
	router *gin.Engine
	cookie string
	ip     string
	agent  string
}

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	users, err := services.NewUserService(db)
	require.NoError(t, err)
	guard, err := iauth.NewLoginGuard(db, iauth.GuardConfig{})
	require.NoError(t, err)
	sessions, err := iauth.NewSessionService(db, iauth.SessionConfig{})
	require.NoError(t, err)
	authSvc, err := iauth.NewAuthService(users, guard, sessions)
	require.NoError(t, err)
	projectSvc, err := services.NewProjectService(db, nil)
	require.NoError(t, err)

	cfg := &app.Config{}
	cfg.Server.Port = 0

	router, err := NewRouter(db, cfg, authSvc, projectSvc)
	require.NoError(t, err)
	return router, db
}

func newClient(t *testing.T, router *gin.Engine, ip string) *apiClient {
	return &apiClient{t: t, router: router, ip: ip, agent: testUserAgent}
}

func (c *apiClient) do(method, path string, payload any) *httptest.ResponseRecorder {
	c.t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(c.t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, body)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.agent)
	req.Header.Set("X-Forwarded-For", c.ip)
	req.RemoteAddr = c.ip + ":443"
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)

	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == "ptahnest_session" {
			if cookie.Value == "" {
				c.cookie = ""
			} else {
				c.cookie = fmt.Sprintf("%s=%s", cookie.Name, cookie.Value)
			}
		}
	}
	return w
}

func (c *apiClient) body(w *httptest.ResponseRecorder) map[string]any {
	c.t.Helper()

	var decoded map[string]any
	require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), &decoded))
	return decoded
}

func (c *apiClient) register(username, email string) {
	c.t.Helper()

	w := c.do(http.MethodPost, "/api/auth/register", gin.H{
		"username": username,
		"email":    email,
		"password": "a long password",
	})
	require.Equal(c.t, http.StatusCreated, w.Code)
	require.NotEmpty(c.t, c.cookie, "registration must set the session cookie")
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)
	client := newClient(t, router, "198.51.100.7")

	w := client.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, client.body(w)["success"])

	w = client.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestUnknownRouteReturnsJSON(t *testing.T) {
	router, _ := newTestRouter(t)
	client := newClient(t, router, "198.51.100.7")

	w := client.do(http.MethodGet, "/api/nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, false, client.body(w)["success"])
}

func TestAuthFlowOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)
	client := newClient(t, router, "198.51.100.7")

	client.register("Imhotep", "imhotep@example.com")

	w := client.do(http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusOK, w.Code)
	user := client.body(w)["user"].(map[string]any)
	require.Equal(t, "Imhotep", user["username"])

	w = client.do(http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, client.cookie, "logout must clear the cookie")

	w = client.do(http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginRemembersWithPersistentCookie(t *testing.T) {
	router, _ := newTestRouter(t)
	client := newClient(t, router, "198.51.100.7")
	client.register("Imhotep", "imhotep@example.com")

	w := client.do(http.MethodPost, "/api/auth/login", gin.H{
		"identifier": "imhotep@example.com",
		"password":   "a long password",
		"remember":   true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var sessionCookie *http.Cookie
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == "ptahnest_session" {
			sessionCookie = cookie
		}
	}
	require.NotNil(t, sessionCookie)
	require.Equal(t, 30*24*60*60, sessionCookie.MaxAge)
	require.True(t, sessionCookie.HttpOnly)
}

func TestLoginCountsOneSuccessPerAttempt(t *testing.T) {
	router, _ := newTestRouter(t)
	client := newClient(t, router, "198.51.100.7")
	client.register("Imhotep", "imhotep@example.com")

	successes := metrics.AuthAttempts.WithLabelValues("success")
	before := promtest.ToFloat64(successes)

	w := client.do(http.MethodPost, "/api/auth/login", gin.H{
		"identifier": "imhotep@example.com",
		"password":   "a long password",
	})
	require.Equal(t, http.StatusOK, w.Code)

	require.Equal(t, before+1, promtest.ToFloat64(successes))
}

func TestHijackedCookieRejectedOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)
	victim := newClient(t, router, "198.51.100.7")
	victim.register("Imhotep", "imhotep@example.com")

	attacker := newClient(t, router, "203.0.113.99")
	attacker.cookie = victim.cookie

	w := attacker.do(http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "SESSION_HIJACKING_DETECTED", attacker.body(w)["code"])

	// The stolen session is dead for the victim too.
	w = victim.do(http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)

	creator := newClient(t, router, "198.51.100.7")
	creator.register("Senenmut", "senenmut@example.com")

	joiner := newClient(t, router, "198.51.100.8")
	joiner.register("Khaemwaset", "khaemwaset@example.com")

	w := creator.do(http.MethodPost, "/api/projects", gin.H{
		"name":        "Obelisk Tracker",
		"description": "Keeps track of quarry output",
		"tags":        []string{"go"},
		"looking_for": []string{"backend dev"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	project := creator.body(w)["project"].(map[string]any)
	projectID := project["id"].(string)
	require.Equal(t, true, project["recruitment_open"])

	w = joiner.do(http.MethodGet, "/api/projects/discover", nil)
	require.Equal(t, http.StatusOK, w.Code)
	projects := joiner.body(w)["projects"].([]any)
	require.Len(t, projects, 1)

	w = joiner.do(http.MethodPost, "/api/projects/"+projectID+"/join", gin.H{
		"message": "I know GORM",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	request := joiner.body(w)["request"].(map[string]any)
	requestID := request["id"].(string)

	w = creator.do(http.MethodGet, "/api/projects/"+projectID+"/requests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	requests := creator.body(w)["requests"].([]any)
	require.Len(t, requests, 1)

	w = creator.do(http.MethodPatch, "/api/projects/"+projectID+"/requests/"+requestID, gin.H{
		"action": "accept",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = joiner.do(http.MethodGet, "/api/projects/"+projectID+"/members", nil)
	require.Equal(t, http.StatusOK, w.Code)
	members := joiner.body(w)["members"].([]any)
	require.Len(t, members, 2)
	require.NotEmpty(t, joiner.body(w)["current_user_id"])

	w = joiner.do(http.MethodDelete, "/api/projects/"+projectID+"/leave", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = joiner.do(http.MethodPost, "/api/projects/"+projectID+"/join", gin.H{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, joiner.body(w)["message"], "left this project")

	w = creator.do(http.MethodDelete, "/api/projects/"+projectID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = joiner.do(http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listed := joiner.body(w)["projects"].([]any)
	require.Len(t, listed, 1)
	require.Equal(t, "deleted", listed[0].(map[string]any)["display_status"])
}

func TestProjectRoutesRequireAuth(t *testing.T) {
	router, _ := newTestRouter(t)
	client := newClient(t, router, "198.51.100.7")

	w := client.do(http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = client.do(http.MethodPost, "/api/projects/some-id/join", gin.H{})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPublicProjectReads(t *testing.T) {
	router, _ := newTestRouter(t)

	creator := newClient(t, router, "198.51.100.7")
	creator.register("Senenmut", "senenmut@example.com")

	w := creator.do(http.MethodPost, "/api/projects", gin.H{
		"name":        "Obelisk Tracker",
		"description": "Keeps track of quarry output",
		"looking_for": []string{"backend dev"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	projectID := creator.body(w)["project"].(map[string]any)["id"].(string)

	// No session at all: discovery and single-project reads still answer.
	anon := newClient(t, router, "203.0.113.77")

	w = anon.do(http.MethodGet, "/api/projects/discover", nil)
	require.Equal(t, http.StatusOK, w.Code)
	projects := anon.body(w)["projects"].([]any)
	require.Len(t, projects, 1)

	w = anon.do(http.MethodGet, "/api/projects/"+projectID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	project := anon.body(w)["project"].(map[string]any)
	require.Equal(t, "Senenmut", project["creator_username"])

	w = anon.do(http.MethodGet, "/api/projects/no-such-id", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, false, anon.body(w)["success"])
}
