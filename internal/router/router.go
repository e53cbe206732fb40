package router

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"
	"github.com/unrolled/secure"

	"github.com/vissharm/ecommerce-app-user-service/docs"
	"github.com/vissharm/ecommerce-app-user-service/internal/auth"
	"github.com/vissharm/ecommerce-app-user-service/internal/config"
	apperrors "github.com/vissharm/ecommerce-app-user-service/internal/errors"
	"github.com/vissharm/ecommerce-app-user-service/internal/handler"
	"github.com/vissharm/ecommerce-app-user-service/internal/logging"
	"github.com/vissharm/ecommerce-app-user-service/internal/observability"
	"github.com/vissharm/ecommerce-app-user-service/internal/realtime"
)

// Dependencies are the components the routes are served by.
type Dependencies struct {
	Accounts   *handler.AccountHandler
	Health     *handler.HealthHandler
	Tokens     *auth.JWTService
	TokenStore auth.TokenStoreInterface
	Metrics    *observability.Metrics
	Realtime   *realtime.Hub
	Logger     logging.Logger
}

// Register wires routes and middleware.
func Register(e *echo.Echo, cfg *config.Config, deps Dependencies) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(echo.WrapMiddleware(secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		IsDevelopment:      !cfg.IsProduction(),
	}).Handler))
	e.Use(deps.Metrics.Middleware())

	// Add validator
	e.Validator = &CustomValidator{validator: validator.New()}

	if deps.Health != nil {
		e.GET("/healthz", deps.Health.Health)
	} else {
		e.GET("/healthz", func(c echo.Context) error {
			return c.String(http.StatusOK, "ok")
		})
	}
	e.GET("/metrics", echo.WrapHandler(deps.Metrics.Handler()))
	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = strings.TrimPrefix(strings.TrimPrefix(cfg.SwaggerHost, "https://"), "http://")
	}
	e.GET("/swagger/*", echoSwagger.WrapHandler)
	if deps.Realtime != nil {
		e.GET("/ws", deps.Realtime.Handler)
	}

	users := e.Group("/api/users")

	// Public routes, throttled per client IP
	limiter := authRateLimiter(cfg.AuthRateLimit)
	users.POST("/register", deps.Accounts.Register, limiter)
	users.POST("/login", deps.Accounts.Login, limiter)

	// Secured routes (require JWT authentication)
	secured := users.Group("", echojwt.WithConfig(echojwt.Config{
		ContextKey:     handler.ClaimsContextKey,
		TokenLookup:    "header:" + echo.HeaderAuthorization + ":Bearer ",
		ParseTokenFunc: parseToken(deps.Tokens, deps.TokenStore),
		ErrorHandler:   authErrorHandler,
	}))
	secured.GET("/profile", deps.Accounts.GetProfile)
	secured.PUT("/profile", deps.Accounts.UpdateProfile)
	secured.POST("/logout", deps.Accounts.Logout)
}

// parseToken verifies the signature and expiry, then rejects revoked tokens.
func parseToken(tokens *auth.JWTService, store auth.TokenStoreInterface) func(c echo.Context, token string) (interface{}, error) {
	return func(c echo.Context, token string) (interface{}, error) {
		claims, err := tokens.ValidateToken(token)
		if err != nil {
			return nil, err
		}
		if store != nil {
			revoked, err := store.IsTokenRevoked(c.Request().Context(), claims.ID)
			if err != nil {
				return nil, err
			}
			if revoked {
				return nil, auth.ErrTokenRevoked
			}
		}
		return claims, nil
	}
}

func authErrorHandler(c echo.Context, err error) error {
	var extractErr *echojwt.TokenExtractionError
	if errors.As(err, &extractErr) {
		return echo.NewHTTPError(http.StatusUnauthorized, apperrors.ErrorResponse{
			Error: "missing bearer token",
			Code:  "TOKEN_MISSING",
		})
	}
	httpErr := apperrors.MapErrorToHTTP(err)
	if httpErr.StatusCode != http.StatusUnauthorized {
		httpErr = apperrors.MapErrorToHTTP(auth.ErrTokenInvalid)
	}
	return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
}

func authRateLimiter(perMinute int) echo.MiddlewareFunc {
	if perMinute <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return echo.WrapMiddleware(httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(apperrors.ErrorResponse{
				Error: "too many requests",
				Code:  "RATE_LIMITED",
			})
		}),
	))
}

func requestLogger(logger logging.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			args := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				args = append(args, "error", v.Error)
				logger.Warn(c.Request().Context(), "request", args...)
				return nil
			}
			logger.Info(c.Request().Context(), "request", args...)
			return nil
		},
	})
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
