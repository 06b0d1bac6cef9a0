package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/timmy/stockmeta/internal/config"
)

func corsRouter(cfg config.CORSConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(cfg))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.CORSConfig
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantOrigin string
		wantCreds  string
	}{
		{
			name:       "allow all uses wildcard without credentials",
			cfg:        config.CORSConfig{AllowAllOrigins: true},
			method:     http.MethodGet,
			origin:     "http://localhost:5173",
			wantStatus: http.StatusOK,
			wantOrigin: "*",
		},
		{
			name:       "listed origin is echoed with credentials",
			cfg:        config.CORSConfig{AllowedOrigins: []string{"http://app.example.com"}},
			method:     http.MethodGet,
			origin:     "HTTP://APP.example.com",
			wantStatus: http.StatusOK,
			wantOrigin: "HTTP://APP.example.com",
			wantCreds:  "true",
		},
		{
			name:       "unlisted origin gets no headers",
			cfg:        config.CORSConfig{AllowedOrigins: []string{"http://app.example.com"}},
			method:     http.MethodGet,
			origin:     "http://evil.example.com",
			wantStatus: http.StatusOK,
		},
		{
			name:       "no origin header gets no headers",
			cfg:        config.CORSConfig{AllowAllOrigins: true},
			method:     http.MethodGet,
			wantStatus: http.StatusOK,
		},
		{
			name:       "preflight is answered without reaching routes",
			cfg:        config.CORSConfig{AllowedOrigins: []string{"http://app.example.com"}},
			method:     http.MethodOptions,
			origin:     "http://app.example.com",
			preflight:  true,
			wantStatus: http.StatusNoContent,
			wantOrigin: "http://app.example.com",
			wantCreds:  "true",
		},
		{
			name:       "preflight from unlisted origin is not answered",
			cfg:        config.CORSConfig{AllowedOrigins: []string{"http://app.example.com"}},
			method:     http.MethodOptions,
			origin:     "http://evil.example.com",
			preflight:  true,
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/ping", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if tc.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
			}
			w := httptest.NewRecorder()
			corsRouter(tc.cfg).ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tc.wantOrigin)
			}
			if got := w.Header().Get("Access-Control-Allow-Credentials"); got != tc.wantCreds {
				t.Errorf("Allow-Credentials = %q, want %q", got, tc.wantCreds)
			}
			if tc.wantOrigin != "" && w.Header().Get("Access-Control-Expose-Headers") == "" {
				t.Error("Expose-Headers not set")
			}
		})
	}
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		name   string
		cfg    config.CORSConfig
		origin string
		want   bool
	}{
		{"empty list admits any origin", config.CORSConfig{}, "http://a.test", true},
		{"wildcard entry", config.CORSConfig{AllowedOrigins: []string{"*"}}, "http://a.test", true},
		{"case insensitive match", config.CORSConfig{AllowedOrigins: []string{"http://A.test"}}, "http://a.test", true},
		{"not listed", config.CORSConfig{AllowedOrigins: []string{"http://a.test"}}, "http://b.test", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := OriginAllowed(tc.cfg, tc.origin); got != tc.want {
				t.Errorf("OriginAllowed(%q) = %v, want %v", tc.origin, got, tc.want)
			}
		})
	}
}
