package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"
	ContextKeyReqID = "requestId"
)

// RequestID stamps every request with an id for log correlation, honoring
// one supplied by an upstream proxy.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ContextKeyReqID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}
