package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joshua-takyi/homex/internal/helpers"
	"github.com/joshua-takyi/homex/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	RequestIDKey = "request_id"
	ClaimsKey    = "user"
)

// RequestID middleware adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// StructuredLogger provides structured logging middleware
func StructuredLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		requestID, _ := c.Get(RequestIDKey)
		status := c.Writer.Status()

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "HTTP Request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// ErrorHandler provides centralized error handling
func ErrorHandler(logger *slog.Logger, production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last()
		requestID, _ := c.Get(RequestIDKey)
		logger.Error("Request error",
			"request_id", requestID,
			"error", err.Error(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)

		msg := "Internal server error"
		if !production {
			msg = err.Error()
		}
		c.JSON(http.StatusInternalServerError, models.ApiResponse{
			Success:   false,
			Message:   "Internal server error",
			Error:     msg,
			RequestID: fmt.Sprint(requestID),
		})
	}
}

// CORS allows the configured origins with credentials.
func CORS(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Request-ID", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

type TokenValidator interface {
	ValidateToken(token string) (*helpers.CustomClaims, error)
}

// Auth reads a bearer token from the Authorization header, or the
// access_token cookie, and stores the verified claims under ClaimsKey.
func Auth(validator TokenValidator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ApiResponse{
				Success: false,
				Message: "Unauthorized access",
				Error:   "missing bearer token",
			})
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			logger.Debug("token rejected", "error", err, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ApiResponse{
				Success: false,
				Message: "Unauthorized access",
				Error:   "invalid or expired token",
			})
			return
		}

		c.Set(ClaimsKey, helpers.Enhance(claims))
		c.Next()
	}
}

// OptionalAuth attaches claims when the request carries a token and lets
// anonymous requests through. A token that fails validation is still rejected.
func OptionalAuth(validator TokenValidator, logger *slog.Logger) gin.HandlerFunc {
	required := Auth(validator, logger)
	return func(c *gin.Context) {
		if bearerToken(c) == "" {
			c.Next()
			return
		}
		required(c)
	}
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	token, err := c.Cookie("access_token")
	if err != nil {
		return ""
	}
	return token
}

// Claims returns the caller's verified claims set by Auth.
func Claims(c *gin.Context) (*helpers.EnhancedClaims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*helpers.EnhancedClaims)
	return claims, ok
}

// RequireRole lets through callers holding one of roles. It must run after Auth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ApiResponse{
				Success: false,
				Message: "Unauthorized access",
			})
			return
		}
		for _, r := range roles {
			if claims.HasRole(r) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, models.ApiResponse{
			Success: false,
			Message: "Forbidden",
			Error:   "requires role " + strings.Join(roles, " or "),
		})
	}
}

// RateLimiter counts requests per client IP in fixed windows. Counts live in
// this process only.
type RateLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	now     func() time.Time
	clients map[string]*rateWindow
}

type rateWindow struct {
	count int
	reset time.Time
}

func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		max:     max,
		window:  window,
		now:     time.Now,
		clients: make(map[string]*rateWindow),
	}
}

// Allow records a request from key and reports whether it fits the window,
// with the requests left and the window reset time.
func (rl *RateLimiter) Allow(key string) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.clients[key]
	if !ok || !now.Before(w.reset) {
		w = &rateWindow{reset: now.Add(rl.window)}
		rl.clients[key] = w
		rl.sweep(now)
	}
	if w.count >= rl.max {
		return false, 0, w.reset
	}
	w.count++
	return true, rl.max - w.count, w.reset
}

// sweep drops expired windows once the table grows large.
func (rl *RateLimiter) sweep(now time.Time) {
	if len(rl.clients) < 10000 {
		return
	}
	for k, w := range rl.clients {
		if !now.Before(w.reset) {
			delete(rl.clients, k)
		}
	}
}

func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, remaining, reset := rl.Allow(c.ClientIP())
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.max))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(time.Until(reset).Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ApiResponse{
				Success: false,
				Message: "Too many requests",
				Error:   "rate limit exceeded, try again later",
			})
			return
		}
		c.Next()
	}
}

// Tracing starts a server span per request, continuing any W3C trace context
// sent by the caller.
func Tracing(service string) gin.HandlerFunc {
	tracer := otel.Tracer("github.com/joshua-takyi/homex/internal/middleware")
	propagator := propagation.TraceContext{}
	return func(c *gin.Context) {
		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("service.name", service),
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("http.route", route),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= 500 {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
