package utils

import (
	"time"

	"facerec/event"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestID keeps the caller's request id or assigns a new one.
func RequestID(c *gin.Context) {
	id := c.GetHeader(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(requestIDKey, id)
	c.Header(RequestIDHeader, id)
	c.Next()
}

// RequestLogger logs one line per request once it has been served.
func RequestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()

	entry := event.Log.WithFields(logrus.Fields{
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"status":     c.Writer.Status(),
		"latency":    time.Since(start).String(),
		"request_id": c.GetString(requestIDKey),
	})
	if len(c.Errors) > 0 {
		entry = entry.WithField("errors", c.Errors.String())
	}
	if c.Writer.Status() >= 500 {
		entry.Warn("http: request failed")
	} else {
		entry.Debug("http: request served")
	}
}

// NoCache marks every response as not cacheable.
func NoCache(c *gin.Context) {
	c.Header("Cache-Control", "no-cache")
	c.Next()
}

type bodyLogWriter struct {
	gin.ResponseWriter
	c *gin.Context
}

func (w bodyLogWriter) Write(b []byte) (int, error) {
	if status := w.Status(); status >= 400 {
		event.Log.WithField("request_id", w.c.GetString(requestIDKey)).
			Debugf("http: status %d, body: %s", status, b)
	}
	return w.ResponseWriter.Write(b)
}

// ErrorBodyLogger logs the body of every error response. Register it before gzip,
// otherwise the compressed body is logged.
func ErrorBodyLogger(c *gin.Context) {
	c.Writer = bodyLogWriter{ResponseWriter: c.Writer, c: c}
	c.Next()
}
