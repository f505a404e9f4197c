package routes

import (
	"deskbridge/internal/config"
	"deskbridge/internal/middleware"
	"deskbridge/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Dependencies are the services the HTTP surface is built from
type Dependencies struct {
	Config     *config.Config
	Dispatcher *services.Dispatcher
	Hub        *services.WebSocketHub
	Monitor    *services.ProcessMonitor
	Auth       *services.AuthService
	Logger     *zap.Logger
}

// NewRouter builds the gin engine with middleware and every route registered
func NewRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	security := middleware.NewSecurityLogger(deps.Logger)

	r := gin.New()
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.Auth.Required))
	r.Use(middleware.IPWhitelistMiddleware(middleware.NewIPWhitelist(cfg.Server.AllowedIPs), security))

	limiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
	view := middleware.ViewMiddleware(deps.Auth, cfg.Auth.Required, security)

	RegisterStatusRoutes(r, deps)
	RegisterCommandRoutes(r, deps, middleware.RateLimitMiddleware(limiter, security), view)
	RegisterEventRoutes(r, deps, security,
		middleware.RateLimitMiddleware(middleware.NewUpgradeRateLimiter(), security), view)

	if cfg.Server.StaticDir != "" {
		r.Static("/app", cfg.Server.StaticDir)
	}

	return r
}
