package middleware

import (
	"github.com/cenamoradol/crm-autolote-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RequestIDMiddleware tags every request with an id and a request-scoped
// logger carrying the id and the inbound host. The logger is attached to
// the echo context and to the request's context.Context, so code below the
// HTTP layer recovers it with logger.FromContext.
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			reqLogger := logger.GetLogger().With(
				zap.String("request_id", requestID),
				zap.String("host", req.Host),
			)
			c.Set("logger", reqLogger)
			c.SetRequest(req.WithContext(logger.WithContext(req.Context(), reqLogger)))

			return next(c)
		}
	}
}
