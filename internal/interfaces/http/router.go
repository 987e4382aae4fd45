package http

import (
	"net"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/verida/notification-server/config"
	"github.com/verida/notification-server/internal/interfaces/http/handlers"
	"github.com/verida/notification-server/internal/interfaces/http/middleware"
	"github.com/verida/notification-server/pkg/logger"
)

// Router wraps the Gin engine with application dependencies.
type Router struct {
	engine      *gin.Engine
	cfg         *config.Config
	rateLimiter *middleware.RateLimiter
}

// RouterDeps contains dependencies needed by the router.
type RouterDeps struct {
	Registry      handlers.DeviceRegistry
	Relay         handlers.Pinger
	Authorizer    middleware.Authorizer
	StoreHealther handlers.HealthChecker
	RedisHealther handlers.HealthChecker // nil when the cache is disabled
	Logger        logger.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg *config.Config, deps *RouterDeps) *Router {
	gin.SetMode(gin.ReleaseMode)

	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}

	engine := gin.New()
	// ClientIP only honours forwarding headers sent by these peers.
	if err := engine.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		log.Warn("Ignoring invalid trusted proxies",
			logger.Component("http"),
			logger.Error(err),
		)
		_ = engine.SetTrustedProxies(nil)
	}
	engine.Use(gin.Recovery())
	engine.Use(middleware.NewRequestLoggerMiddleware(log).Handler())

	deviceHandler := handlers.NewDeviceHandler(deps.Registry)
	pingHandler := handlers.NewPingHandler(deps.Relay)
	healthHandler := handlers.NewHealthHandler(deps.StoreHealther, deps.RedisHealther)

	authMiddleware := middleware.NewAuthMiddleware(deps.Authorizer)

	// Health endpoints (no rate limiting)
	engine.GET("/health", healthHandler.Health)
	engine.GET("/ready", healthHandler.Ready)
	engine.GET("/live", healthHandler.Live)

	var rateLimiter *middleware.RateLimiter
	if cfg.Security.RateLimitEnabled {
		rateLimiter = middleware.NewRateLimiter(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst)
		engine.Use(rateLimiter.Middleware())
	}

	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))

	// Anyone may ping; the response does not reveal whether devices exist.
	engine.POST("/ping", pingHandler.Ping)

	protected := engine.Group("")
	protected.Use(authMiddleware.RequireAuth())
	{
		protected.GET("/ping", pingHandler.Ping)
		protected.POST("/register", deviceHandler.Register)
		protected.POST("/unregister", deviceHandler.Unregister)
	}

	return &Router{
		engine:      engine,
		cfg:         cfg,
		rateLimiter: rateLimiter,
	}
}

// Engine returns the underlying Gin engine.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// Close releases background resources held by middleware.
func (r *Router) Close() {
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}
}

// corsMiddleware creates a CORS middleware. A "*" entry allows any origin
// without credentials; listed origins are echoed back with credentials.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	wildcard := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			wildcard = true
			continue
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		if origin != "" && (allowed[origin] || wildcard) {
			if allowed[origin] {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Credentials", "true")
				c.Header("Vary", "Origin")
			} else {
				c.Header("Access-Control-Allow-Origin", "*")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, "+middleware.HeaderContextName)
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// NewServer creates an HTTP server with the router.
func NewServer(cfg *config.Config, router *Router) *Server {
	return &Server{
		router: router,
		cfg:    cfg,
	}
}

// Server wraps the HTTP server.
type Server struct {
	router *Router
	cfg    *config.Config
}

// ListenAddr returns the server listen address.
func (s *Server) ListenAddr() string {
	return net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
}

// ReadTimeout returns the server read timeout.
func (s *Server) ReadTimeout() time.Duration {
	return s.cfg.Server.ReadTimeout
}

// WriteTimeout returns the server write timeout.
func (s *Server) WriteTimeout() time.Duration {
	return s.cfg.Server.WriteTimeout
}

// IdleTimeout returns the server idle timeout.
func (s *Server) IdleTimeout() time.Duration {
	return s.cfg.Server.IdleTimeout
}

// Handler returns the HTTP handler.
func (s *Server) Handler() *gin.Engine {
	return s.router.Engine()
}
