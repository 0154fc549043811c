package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware recording every request under server.
// A nil Metrics yields a pass-through middleware.
func Middleware(metrics *Metrics, server string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		metrics.RecordHTTPRequest(server, c.Request.Method, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
