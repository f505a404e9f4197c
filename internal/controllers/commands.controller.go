package controllers

import (
	"errors"
	"io"
	"net/http"

	"deskbridge/internal/middleware"
	"deskbridge/internal/services"

	"github.com/gin-gonic/gin"
)

const maxArgsBytes = 1 << 20

// InvokeCommand runs the command named in the path with the JSON request body
// as its arguments. Failures are answered with {"error": "<message>"}.
func InvokeCommand(d *services.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("command")

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxArgsBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
			return
		}

		result, err := d.Invoke(c.Request.Context(), name, services.Invocation{
			View: middleware.ViewFromContext(c),
			Args: body,
		})
		if err != nil {
			c.JSON(commandErrorStatus(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func commandErrorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrUnknownCommand), errors.Is(err, services.ErrMonitorNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrMonitorShutdown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// ListCommands returns the names of every invocable command
func ListCommands(d *services.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"commands": d.Names()})
	}
}
