package brokererr

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/streamspace-dev/inspector-broker/internal/logger"
)

// ErrorHandler renders the last gin error as a *Error response, falling
// back to a generic internal error for anything not already typed.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last()
		if brokerErr, ok := err.Err.(*Error); ok {
			if brokerErr.HTTPStatus >= 500 {
				logger.Server().Error().Str("code", brokerErr.Code).Str("details", brokerErr.Details).Msg(brokerErr.Message)
			} else {
				logger.Server().Warn().Str("code", brokerErr.Code).Msg(brokerErr.Message)
			}
			c.JSON(brokerErr.HTTPStatus, brokerErr.ToResponse())
			return
		}

		logger.Server().Error().Err(err.Err).Msg("unhandled error")
		c.JSON(http.StatusInternalServerError, Response{Error: "INTERNAL", Message: "an unexpected error occurred"})
	}
}

// Recovery recovers panics in handlers and renders them as an internal
// error instead of crashing the process.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Server().Error().Interface("panic", r).Msg("recovered from panic")
				c.JSON(http.StatusInternalServerError, Response{Error: "INTERNAL", Message: "an unexpected error occurred"})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// Respond writes err (typed or not) as a JSON response and aborts.
func Respond(c *gin.Context, err error) {
	if brokerErr, ok := err.(*Error); ok {
		c.AbortWithStatusJSON(brokerErr.HTTPStatus, brokerErr.ToResponse())
		return
	}
	internal := New("INTERNAL", err.Error())
	c.AbortWithStatusJSON(internal.HTTPStatus, internal.ToResponse())
}
