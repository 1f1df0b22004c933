package middleware

import (
	"time" // Request latency

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/rs/xid"          // Sortable request ids
	"github.com/sirupsen/logrus" // Logging library
)

const HeaderRequestID = "X-Request-Id"

// RequestLogger tags every request with an id and logs its outcome
func RequestLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID) // Keep the caller's id when present
		if id == "" {
			id = xid.New().String()
		}
		c.Header(HeaderRequestID, id)
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"request_id": id,                         // Correlation id
			"method":     c.Request.Method,           // HTTP method
			"path":       c.FullPath(),               // Route pattern
			"status":     c.Writer.Status(),          // Response status
			"latency":    time.Since(start).String(), // Handling time
		})
		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Error("Request failed")
			return
		}
		entry.Info("Request handled")
	}
}
