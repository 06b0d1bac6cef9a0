package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/stockmeta/internal/config"
)

// Headers the browser UI sends and reads. X-Request-ID is echoed by
// RequestLogger and Content-Disposition names export downloads.
var (
	corsRequestHeaders = strings.Join([]string{"Content-Type", "Content-Length", "Accept", "Authorization", "Cache-Control", "X-Requested-With", "X-Request-ID"}, ", ")
	corsMethods        = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}, ", ")
	corsExposedHeaders = strings.Join([]string{"Content-Length", "Content-Disposition", "X-Request-ID"}, ", ")
)

// CORS lets the browser UI call the API from another origin, using the
// server.cors settings. Requests without an Origin header, or from an origin
// outside server.cors.allowed_origins, pass through untouched.
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" || !OriginAllowed(cfg, origin) {
			c.Next()
			return
		}

		writeCORSHeaders(c.Writer.Header(), cfg, origin)

		if isPreflight(c.Request) {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// OriginAllowed reports whether origin may call the API. An empty
// allowed_origins list admits any origin.
func OriginAllowed(cfg config.CORSConfig, origin string) bool {
	if cfg.AllowAllOrigins || len(cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// writeCORSHeaders sets the response headers for an admitted origin.
// A wildcard origin cannot carry credentials.
func writeCORSHeaders(h http.Header, cfg config.CORSConfig, origin string) {
	if cfg.AllowAllOrigins {
		h.Set("Access-Control-Allow-Origin", "*")
	} else {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Add("Vary", "Origin")
	}
	h.Set("Access-Control-Allow-Headers", corsRequestHeaders)
	h.Set("Access-Control-Allow-Methods", corsMethods)
	h.Set("Access-Control-Expose-Headers", corsExposedHeaders)
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
}
