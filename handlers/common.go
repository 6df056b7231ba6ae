package handlers

import (
	"context"
	"errors"
	"net/http"

	"facerec/pipeline"
	"facerec/utils"

	"github.com/gin-gonic/gin"
)

type Response struct {
	Error string `json:"error"`
}

var (
	ErrMissingFile = errors.New("missing upload")
	ErrTooLarge    = errors.New("upload too large")
)

const UploadedMessage = "uploaded model successfully"

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, utils.ErrUnsupportedImage), errors.Is(err, ErrMissingFile):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWith(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("http: %s %s: %s", c.Request.Method, c.Request.URL.Path, err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, Response{Error: err.Error()})
}
