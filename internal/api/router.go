package api

import (
	"strings"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/reachend/auth-service/docs"
	"github.com/reachend/auth-service/internal/api/handler"
	"github.com/reachend/auth-service/internal/api/middleware"
	"github.com/reachend/auth-service/internal/core/domain"
	"github.com/reachend/auth-service/internal/core/ports"
)

// Deps carries everything the router needs. Limiter may be nil, which turns
// rate limiting off. Registerer defaults to the global Prometheus registry.
type Deps struct {
	Auth           ports.AuthService
	Users          ports.UserService
	Reset          ports.ResetService
	Limiter        middleware.Limiter
	Health         map[string]handler.PingFunc
	ConcealUnknown bool
	Registerer     prometheus.Registerer
	Log            zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "auth",
		Subsystem:  "http",
		Registerer: d.Registerer,
		Skipper: func(c echo.Context) bool {
			p := c.Path()
			return p == "/metrics" || strings.HasPrefix(p, "/swagger")
		},
	}))

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(d.Auth)
	resetHandler := handler.NewResetHandler(d.Reset, d.ConcealUnknown)
	userHandler := handler.NewUserHandler(d.Users, d.Auth)

	requireSession := middleware.Auth(d.Auth)
	requireAdmin := middleware.RBAC(d.Auth, domain.RoleAdmin)

	// --- Auth routes ---
	auth := e.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login, limit(d, "login", middleware.ResetOnSuccess())...)
	auth.POST("/forgot-password", resetHandler.ForgotPassword, limit(d, "forgot_password")...)
	auth.POST("/reset-password", resetHandler.ResetPassword)
	auth.POST("/forgot-password-otp", resetHandler.ForgotPasswordOTP, limit(d, "forgot_password_otp")...)
	auth.POST("/reset-password-otp", resetHandler.ResetPasswordOTP)

	// --- User routes (session required) ---
	users := e.Group("/users", requireSession)
	users.GET("/me", userHandler.Me)
	users.GET("", userHandler.List)

	// --- Admin routes ---
	admin := e.Group("/admin", requireSession, requireAdmin)
	admin.GET("/users", userHandler.AdminList)
	admin.POST("/users", userHandler.AdminCreate)
	admin.DELETE("/users/:id/soft", userHandler.SoftDelete)
	admin.DELETE("/users/:id/hard", userHandler.HardDelete)

	// --- Health probes (no auth required) ---
	e.GET("/health", handler.NewHealthHandler().Liveness)                            // liveness  – is the process alive?
	e.GET("/health/ready", handler.NewHealthDependenciesHandler(d.Health).Readiness) // readiness – are dependencies up?

	// --- Ops ---
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

func limit(d Deps, route string, opts ...middleware.RateLimitOption) []echo.MiddlewareFunc {
	if d.Limiter == nil {
		return nil
	}
	return []echo.MiddlewareFunc{middleware.RateLimit(route, d.Limiter, d.Log, opts...)}
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= 500 {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
