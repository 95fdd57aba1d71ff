package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/healthbridge/booking-api/internal/handler"
	apperrors "github.com/healthbridge/booking-api/pkg/errors"
	"github.com/healthbridge/booking-api/pkg/logger"
)

// ErrorHandler converts errors attached to the gin context into a uniform
// JSON body. Handlers that write their own responses are left alone.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err

		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			c.JSON(statusFor(appErr.Code), handler.NewErrorResponse(appErr.Message))
			return
		}

		log.ZL.Error().Err(err).Str("path", c.Request.URL.Path).Msg("unhandled error")
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("internal server error"))
	}
}

func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrBadRequest:
		return http.StatusBadRequest
	case apperrors.ErrUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrForbidden:
		return http.StatusForbidden
	case apperrors.ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
