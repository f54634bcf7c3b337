package requestid

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Header carries the request id in both directions.
const Header = "X-Request-ID"

// ctxKey is the Gin context key used to store the request id.
const ctxKey = "request_id"

// maxLen caps ids accepted from clients.
const maxLen = 128

// Middleware tags every request with an id: the client's X-Request-ID when
// present and sane, a fresh UUID otherwise. The id is echoed in the response.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(Header))
		if id == "" || len(id) > maxLen {
			id = uuid.NewString()
		}
		c.Set(ctxKey, id)
		c.Header(Header, id)
		c.Next()
	}
}

// Get returns the request id from the request context.
func Get(c *gin.Context) string {
	v, _ := c.Get(ctxKey)
	s, _ := v.(string)
	return s
}

// AccessLog writes one line per request once the handler chain is done.
func AccessLog(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Info().
			Str("request_id", Get(c)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Int("bytes", c.Writer.Size()).
			Msg("request")
	}
}
