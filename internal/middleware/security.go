package middleware

import (
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client IP
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
}

// NewRateLimiter creates a limiter allowing limit events per second per IP with the given burst
func NewRateLimiter(limit rate.Limit, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// GetLimiter returns the bucket for ip, creating it on first use
func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, exists := rl.limiters[ip]; exists {
		return limiter
	}

	limiter := rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters[ip] = limiter
	return limiter
}

// RateLimitMiddleware answers 429 once a client IP runs out of tokens
func RateLimitMiddleware(limiter *RateLimiter, sl *SecurityLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		lim := limiter.GetLimiter(ip)
		if !lim.Allow() {
			sl.LogRateLimited(ip, c.FullPath())
			retryAfter := retryAfterSeconds(lim)
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}
		c.Next()
	}
}

// retryAfterSeconds is how long until lim has a token again, rounded up to
// whole seconds and at least 1
func retryAfterSeconds(lim *rate.Limiter) int {
	r := lim.Reserve()
	if !r.OK() {
		return 1
	}
	delay := r.Delay()
	r.Cancel()

	seconds := int(math.Ceil(delay.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

// NewUpgradeRateLimiter is the stricter limiter put in front of websocket
// upgrades: 5 per minute per IP, burst of 10
func NewUpgradeRateLimiter() *RateLimiter {
	return NewRateLimiter(rate.Every(12*time.Second), 10)
}

// SecurityHeadersMiddleware sets the hardening headers on every response
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		c.Next()
	}
}

// CORSMiddleware allows the listed origins, including custom desktop schemes
// such as tauri://localhost. "*" allows any origin. With an empty list only
// loopback origins are allowed, unless authRequired makes tokens the gate.
func CORSMiddleware(allowedOrigins []string, authRequired bool) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", ViewHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		AllowWildcard:    true,
		AllowWebSockets:  true,
		MaxAge:           24 * time.Hour,
	}

	origins := normalizeOrigins(allowedOrigins)
	if len(origins) == 0 || containsOrigin(origins, "*") {
		cfg.AllowOriginFunc = OriginPolicy(allowedOrigins, authRequired)
	} else {
		cfg.AllowOrigins = origins
		cfg.CustomSchemas = customSchemas(origins)
	}

	return cors.New(cfg)
}

// OriginPolicy reports whether a non-empty Origin may call the bridge. It is
// shared by CORS and the websocket upgrader.
func OriginPolicy(allowedOrigins []string, authRequired bool) func(origin string) bool {
	origins := normalizeOrigins(allowedOrigins)
	return func(origin string) bool {
		origin = strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
		if len(origins) == 0 {
			return authRequired || IsLoopbackOrigin(origin)
		}
		return containsOrigin(origins, "*") || containsOrigin(origins, origin)
	}
}

// IsLoopbackOrigin reports whether origin points at this machine:
// localhost, *.localhost or a loopback IP, on any scheme and port
func IsLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func normalizeOrigins(allowedOrigins []string) []string {
	origins := make([]string, 0, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if trimmed := strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/")); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func containsOrigin(origins []string, origin string) bool {
	for _, o := range origins {
		if o == origin {
			return true
		}
	}
	return false
}

// customSchemas collects the non-web schemes used by origins, e.g. "tauri://"
func customSchemas(origins []string) []string {
	var schemas []string
	seen := make(map[string]bool)
	for _, o := range origins {
		i := strings.Index(o, "://")
		if i <= 0 {
			continue
		}
		schema := o[:i+3]
		switch schema {
		case "http://", "https://", "ws://", "wss://":
			continue
		}
		if !seen[schema] {
			seen[schema] = true
			schemas = append(schemas, schema)
		}
	}
	return schemas
}

// IPWhitelist restricts access to listed IPs. Loopback is always allowed.
type IPWhitelist struct {
	ips map[string]bool
	mu  sync.RWMutex
}

// NewIPWhitelist builds the allow-list from ips; blank entries are ignored
func NewIPWhitelist(ips []string) *IPWhitelist {
	wl := &IPWhitelist{
		ips: make(map[string]bool),
	}
	for _, ip := range ips {
		if ip = strings.TrimSpace(ip); ip != "" {
			wl.ips[ip] = true
		}
	}
	return wl
}

// IsAllowed reports whether ip (optionally with a port) may connect
func (wl *IPWhitelist) IsAllowed(ip string) bool {
	wl.mu.RLock()
	defer wl.mu.RUnlock()

	ipOnly, _, err := net.SplitHostPort(ip)
	if err != nil {
		ipOnly = ip
	}

	if parsed := net.ParseIP(ipOnly); parsed != nil && parsed.IsLoopback() {
		return true
	}

	// empty list means open
	if len(wl.ips) == 0 {
		return true
	}

	return wl.ips[ipOnly]
}

// IPWhitelistMiddleware answers 403 to clients outside the allow-list
func IPWhitelistMiddleware(whitelist *IPWhitelist, sl *SecurityLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !whitelist.IsAllowed(ip) {
			sl.LogAccessDenied(ip)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		c.Next()
	}
}

// SecurityLogger writes security relevant events to a named zap logger
type SecurityLogger struct {
	logger *zap.Logger
}

func NewSecurityLogger(logger *zap.Logger) *SecurityLogger {
	return &SecurityLogger{logger: logger.Named("security")}
}

// LogFailedAuth records a rejected token
func (sl *SecurityLogger) LogFailedAuth(ip string, reason string) {
	sl.logger.Warn("failed authentication", zap.String("ip", ip), zap.String("reason", reason))
}

// LogRateLimited logs a rejected request
func (sl *SecurityLogger) LogRateLimited(ip string, path string) {
	sl.logger.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("path", path))
}

// LogAccessDenied logs a request from an IP outside the whitelist
func (sl *SecurityLogger) LogAccessDenied(ip string) {
	sl.logger.Warn("access denied for non-whitelisted IP", zap.String("ip", ip))
}

// LogWebSocketConnected records a view attaching to the event channel
func (sl *SecurityLogger) LogWebSocketConnected(ip string, view string) {
	sl.logger.Info("websocket connected", zap.String("ip", ip), zap.String("view", view))
}

// LogWebSocketDisconnected records a connection going away
func (sl *SecurityLogger) LogWebSocketDisconnected(ip string, clientID string) {
	sl.logger.Info("websocket disconnected", zap.String("ip", ip), zap.String("client", clientID))
}
