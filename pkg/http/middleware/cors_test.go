package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestCORS(t *testing.T) {
	e := echo.New()
	e.Use(CORS(CORSConfig{
		AllowOrigins: []string{"https://dash.example"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderContentType},
		MaxAge:       600,
	}))
	e.GET("/q", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantOrigin string
		wantMaxAge string
	}{
		{"allowed get", http.MethodGet, "https://dash.example", http.StatusOK, "https://dash.example", ""},
		{"foreign origin", http.MethodGet, "https://evil.example", http.StatusOK, "", ""},
		{"no origin", http.MethodGet, "", http.StatusOK, "", ""},
		{"preflight", http.MethodOptions, "https://dash.example", http.StatusNoContent, "https://dash.example", "600"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/q", nil)
			if tt.origin != "" {
				req.Header.Set(echo.HeaderOrigin, tt.origin)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != tt.wantOrigin {
				t.Fatalf("allow origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := rec.Header().Get(echo.HeaderAccessControlMaxAge); got != tt.wantMaxAge {
				t.Fatalf("max age = %q, want %q", got, tt.wantMaxAge)
			}
		})
	}
}
