package api

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"pulsehub/internal/config"
	"pulsehub/internal/errors"
	"pulsehub/internal/logger"
)

const callerModulesKey = "caller_modules"

// callerModules reads the module grants resolved by moduleAuthMiddleware
func callerModules(c *gin.Context) []string {
	if v, ok := c.Get(callerModulesKey); ok {
		if modules, ok := v.([]string); ok {
			return modules
		}
	}
	return nil
}

// moduleAuthMiddleware resolves the caller's module grants. A bearer token
// with a "modules" claim wins; otherwise the X-Modules header is honored.
// Callers without either see only unrestricted data.
func moduleAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if modules, ok := modulesFromToken(c, secret); ok {
			c.Set(callerModulesKey, modules)
			c.Next()
			return
		}
		if header := c.GetHeader("X-Modules"); header != "" {
			var modules []string
			for _, m := range strings.Split(header, ",") {
				if m = strings.TrimSpace(m); m != "" {
					modules = append(modules, m)
				}
			}
			c.Set(callerModulesKey, modules)
		}
		c.Next()
	}
}

func modulesFromToken(c *gin.Context, secret string) ([]string, bool) {
	if secret == "" {
		return nil, false
	}
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, false
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, false
	}

	raw, ok := claims["modules"].([]interface{})
	if !ok {
		return nil, false
	}
	modules := make([]string, 0, len(raw))
	for _, m := range raw {
		if s, ok := m.(string); ok {
			modules = append(modules, s)
		}
	}
	return modules, true
}

// corsMiddleware adds CORS headers
func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	origins := "*"
	if len(cfg.AllowedOrigins) > 0 {
		origins = strings.Join(cfg.AllowedOrigins, ", ")
	}
	methods := "GET, POST, PUT, DELETE, OPTIONS"
	if len(cfg.AllowedMethods) > 0 {
		methods = strings.Join(cfg.AllowedMethods, ", ")
	}
	headers := "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Modules"
	if len(cfg.AllowedHeaders) > 0 {
		headers = strings.Join(cfg.AllowedHeaders, ", ")
	}

	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", origins)
		c.Header("Access-Control-Allow-Methods", methods)
		c.Header("Access-Control-Allow-Headers", headers)
		if cfg.AllowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// rateLimitMiddleware applies a global token-bucket limit
func rateLimitMiddleware(cfg config.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			writeError(c, errors.NewAppError(errors.ErrCodeRateLimit, "rate limit exceeded", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}

// recoveryMiddleware converts panics into the typed error envelope
func recoveryMiddleware(log logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Error("panic recovered",
			"panic", fmt.Sprint(recovered),
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"stack", string(debug.Stack()),
		)
		writeError(c, errors.NewAppError(errors.ErrCodeInternal, "internal server error", nil))
	})
}

// requestLogMiddleware logs each request through the structured logger
func requestLogMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		status := c.Writer.Status()
		entry := []interface{}{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
		}
		if status >= http.StatusInternalServerError {
			log.Error("request failed", entry...)
		} else {
			log.Debug("request handled", entry...)
		}
	}
}

// writeError renders any error as the typed JSON envelope
func writeError(c *gin.Context, err error) {
	appErr := errors.AsAppError(err)
	c.JSON(appErr.HTTPStatus(), gin.H{"error": appErr})
}
