package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"deskbridge/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newAuth(t *testing.T) *services.AuthService {
	t.Helper()
	auth, err := services.NewAuthService(services.AuthOptions{
		Secret:      "0123456789abcdef0123456789abcdef",
		TokenExpiry: time.Hour,
	}, zap.NewNop())
	assert.NilError(t, err)
	return auth
}

func viewEngine(auth *services.AuthService, required bool) *gin.Engine {
	r := gin.New()
	r.Use(ViewMiddleware(auth, required, NewSecurityLogger(zap.NewNop())))
	r.GET("/view", func(c *gin.Context) {
		c.String(http.StatusOK, ViewFromContext(c))
	})
	return r
}

func get(r http.Handler, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestViewMiddlewareOptionalAuth(t *testing.T) {
	auth := newAuth(t)
	r := viewEngine(auth, false)

	w := get(r, "/view", nil)
	assert.Check(t, is.Equal(w.Code, http.StatusOK))
	assert.Check(t, is.Equal(w.Body.String(), "main"))

	w = get(r, "/view", http.Header{ViewHeader: {"settings"}})
	assert.Check(t, is.Equal(w.Body.String(), "settings"))

	w = get(r, "/view?view=about", nil)
	assert.Check(t, is.Equal(w.Body.String(), "about"))

	w = get(r, "/view?view=../../etc", nil)
	assert.Check(t, is.Equal(w.Code, http.StatusBadRequest))

	// a presented token wins over the header and must be valid
	token, _, err := auth.GenerateToken("tray")
	assert.NilError(t, err)
	w = get(r, "/view", http.Header{"Authorization": {"Bearer " + token}, ViewHeader: {"settings"}})
	assert.Check(t, is.Equal(w.Body.String(), "tray"))

	w = get(r, "/view?token=garbage", nil)
	assert.Check(t, is.Equal(w.Code, http.StatusUnauthorized))
}

func TestViewMiddlewareRequiredAuth(t *testing.T) {
	auth := newAuth(t)
	r := viewEngine(auth, true)

	w := get(r, "/view", http.Header{ViewHeader: {"settings"}})
	assert.Check(t, is.Equal(w.Code, http.StatusUnauthorized))

	token, _, err := auth.GenerateToken("settings")
	assert.NilError(t, err)
	w = get(r, "/view?token="+token, nil)
	assert.Check(t, is.Equal(w.Code, http.StatusOK))
	assert.Check(t, is.Equal(w.Body.String(), "settings"))
}

func TestRateLimitMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(NewRateLimiter(rate.Every(time.Hour), 1), NewSecurityLogger(zap.NewNop())))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Check(t, is.Equal(get(r, "/", nil).Code, http.StatusNoContent))
	assert.Check(t, is.Equal(get(r, "/", nil).Code, http.StatusTooManyRequests))
}

func TestRateLimitRetryAfterFollowsRate(t *testing.T) {
	tests := []struct {
		name  string
		limit rate.Limit
		want  int
	}{
		{name: "one per two seconds", limit: rate.Every(2 * time.Second), want: 2},
		{name: "one per hour", limit: rate.Every(time.Hour), want: 3600},
		{name: "twice a second", limit: 2, want: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(RateLimitMiddleware(NewRateLimiter(tc.limit, 1), NewSecurityLogger(zap.NewNop())))
			r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

			assert.Check(t, is.Equal(get(r, "/", nil).Code, http.StatusNoContent))
			w := get(r, "/", nil)
			assert.Assert(t, is.Equal(w.Code, http.StatusTooManyRequests))

			var body struct {
				RetryAfter int `json:"retry_after"`
			}
			assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Check(t, is.Equal(body.RetryAfter, tc.want))
			assert.Check(t, is.Equal(w.Header().Get("Retry-After"), strconv.Itoa(tc.want)))
		})
	}
}

func TestIPWhitelist(t *testing.T) {
	open := NewIPWhitelist(nil)
	assert.Check(t, open.IsAllowed("203.0.113.9"))

	wl := NewIPWhitelist([]string{"10.0.0.5", " "})
	assert.Check(t, wl.IsAllowed("10.0.0.5"))
	assert.Check(t, wl.IsAllowed("10.0.0.5:51234"))
	assert.Check(t, wl.IsAllowed("127.0.0.1"))
	assert.Check(t, wl.IsAllowed("::1"))
	assert.Check(t, !wl.IsAllowed("10.0.0.6"))
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware([]string{"tauri://localhost", "http://localhost:3000/"}, false))
	r.POST("/invoke/greet", func(c *gin.Context) { c.Status(http.StatusOK) })

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/invoke/greet", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := preflight("tauri://localhost")
	assert.Check(t, is.Equal(w.Header().Get("Access-Control-Allow-Origin"), "tauri://localhost"))

	w = preflight("http://localhost:3000")
	assert.Check(t, is.Equal(w.Header().Get("Access-Control-Allow-Origin"), "http://localhost:3000"))

	w = preflight("https://evil.example")
	assert.Check(t, is.Equal(w.Code, http.StatusForbidden))
	assert.Check(t, is.Equal(w.Header().Get("Access-Control-Allow-Origin"), ""))
}

func preflightCode(r http.Handler, origin string) int {
	req := httptest.NewRequest(http.MethodOptions, "/invoke/greet", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestCORSDefaultsToLoopbackOrigins(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware(nil, false))
	r.POST("/invoke/greet", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Check(t, is.Equal(preflightCode(r, "http://localhost:1420"), http.StatusNoContent))
	assert.Check(t, is.Equal(preflightCode(r, "http://127.0.0.1:5173"), http.StatusNoContent))
	assert.Check(t, is.Equal(preflightCode(r, "tauri://localhost"), http.StatusNoContent))
	assert.Check(t, is.Equal(preflightCode(r, "https://evil.example"), http.StatusForbidden))

	req := httptest.NewRequest(http.MethodPost, "/invoke/greet", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Check(t, is.Equal(w.Code, http.StatusForbidden))
}

func TestCORSOpensWhenTokensRequired(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware(nil, true))
	r.POST("/invoke/greet", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Check(t, is.Equal(preflightCode(r, "https://app.example"), http.StatusNoContent))
}

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name         string
		allowed      []string
		authRequired bool
		origin       string
		want         bool
	}{
		{name: "default loopback name", origin: "http://localhost:3000", want: true},
		{name: "default loopback ip", origin: "http://127.0.0.1", want: true},
		{name: "default loopback ipv6", origin: "http://[::1]:8080", want: true},
		{name: "default tauri windows host", origin: "http://tauri.localhost", want: true},
		{name: "default remote", origin: "https://evil.example", want: false},
		{name: "default lookalike", origin: "http://localhost.evil.example", want: false},
		{name: "default null", origin: "null", want: false},
		{name: "default remote with auth", authRequired: true, origin: "https://evil.example", want: true},
		{name: "listed", allowed: []string{"https://app.example/"}, origin: "https://APP.example", want: true},
		{name: "list excludes loopback", allowed: []string{"https://app.example"}, origin: "http://localhost", want: false},
		{name: "star", allowed: []string{"*"}, origin: "https://evil.example", want: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			allowed := OriginPolicy(tc.allowed, tc.authRequired)
			assert.Check(t, is.Equal(allowed(tc.origin), tc.want))
		})
	}
}

func TestCustomSchemas(t *testing.T) {
	got := customSchemas([]string{"tauri://localhost", "http://localhost:3000", "tauri://other", "app://x"})
	assert.Check(t, is.DeepEqual(got, []string{"tauri://", "app://"}))
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeadersMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := get(r, "/", nil)
	assert.Check(t, is.Equal(w.Header().Get("X-Content-Type-Options"), "nosniff"))
	assert.Check(t, is.Equal(w.Header().Get("X-Frame-Options"), "DENY"))
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(zap.NewNop()))
	r.GET("/", func(c *gin.Context) { panic("boom") })

	assert.Check(t, is.Equal(get(r, "/", nil).Code, http.StatusInternalServerError))
}
