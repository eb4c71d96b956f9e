package server

import (
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

// serveUI answers browser requests with the static UI page. Other requests
// continue down the chain.
func (s *Server) serveUI() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !acceptsHTML(c) || s.cfg.UIFile == "" {
			c.Next()
			return
		}
		info, err := os.Stat(s.cfg.UIFile)
		if err != nil || info.IsDir() {
			c.Next()
			return
		}
		c.File(s.cfg.UIFile)
		c.Abort()
	}
}

func acceptsHTML(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/html")
}
