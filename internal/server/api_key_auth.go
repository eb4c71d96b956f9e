package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
)

const HeaderAPIKey = "X-Api-Key"

// APIKeyRequired rejects requests whose X-Api-Key header does not match the
// configured shared secret. With no secret configured every request passes.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := s.auth.APIKey()
		if expected == "" {
			c.Next()
			return
		}

		provided := strings.TrimSpace(c.GetHeader(HeaderAPIKey))
		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}
