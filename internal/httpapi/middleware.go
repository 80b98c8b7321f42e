package httpapi

import (
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/jobboard/internal/board"
	"github.com/spigell/jobboard/internal/intake"
)

const requestIDHeader = "X-Request-ID"

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(requestIDKey)),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("request failed", fields...)
			return
		}
		logger.Debug("request served", fields...)
	}
}

func corsMiddleware(frontendURL string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	if frontendURL == "" || frontendURL == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = []string{frontendURL}
		cfg.AllowCredentials = true
	}
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", requestIDHeader)
	cfg.ExposeHeaders = []string{requestIDHeader}
	return cors.New(cfg)
}

// errorHandler renders the last error attached to the context. Internal
// details are logged and never sent to the client.
func errorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		code, message := classify(err)
		if code >= http.StatusInternalServerError {
			logger.Error("request error",
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", c.GetString(requestIDKey)),
				zap.Error(err),
			)
		}
		failure(c, code, message, nil)
	}
}

func classify(err error) (int, string) {
	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		return appErr.Code, appErr.Message
	case errors.Is(err, board.ErrNotFound):
		return http.StatusNotFound, "Resource not found"
	case errors.Is(err, board.ErrInvalidStatus):
		return http.StatusBadRequest, "Invalid status"
	case errors.Is(err, board.ErrInvalidTransition):
		return http.StatusConflict, "Status change is not allowed from the current status"
	case errors.Is(err, board.ErrStale):
		return http.StatusConflict, "Application was updated concurrently, reload and retry"
	case errors.Is(err, intake.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, intake.ErrTooLarge.Error()
	case errors.Is(err, intake.ErrUnsupportedType),
		errors.Is(err, intake.ErrContentMismatch),
		errors.Is(err, intake.ErrEmpty):
		return http.StatusBadRequest, errors.UnwrapAll(err).Error()
	default:
		return http.StatusInternalServerError, "An unexpected error occurred. Please try again later."
	}
}
