package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rulecluster/internal/cluster"
	"rulecluster/internal/rpc"
)

// statusFor maps a remote call failure to an HTTP status.
func statusFor(err error) int {
	switch {
	case rpc.IsTimeout(err):
		return http.StatusGatewayTimeout
	case errors.Is(err, rpc.ErrDisposed), errors.Is(err, rpc.ErrServiceNotFound), errors.Is(err, cluster.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func notFound(c *gin.Context, what string) {
	c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
