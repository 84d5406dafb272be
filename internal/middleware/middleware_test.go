package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTokens() *service.TokenService {
	return service.NewTokenService(&config.Config{
		AttemptTokenSecret: "middleware-secret",
		AttemptTokenExpiry: time.Hour,
	}, nil)
}

func TestRequireAttemptToken(t *testing.T) {
	tokens := newTokens()
	tok, err := tokens.Issue(context.Background(), "a-1", "s-1")
	if err != nil {
		t.Fatal(err)
	}

	r := gin.New()
	r.GET("/attempts/:attempt_id", RequireAttemptToken(tokens), RequireActiveToken(tokens), func(c *gin.Context) {
		c.String(http.StatusOK, GetClaims(c).AttemptID)
	})

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"bearer header", "/attempts/a-1", "Bearer " + tok, http.StatusOK},
		{"query token", "/attempts/a-1?token=" + tok, "", http.StatusOK},
		{"missing", "/attempts/a-1", "", http.StatusUnauthorized},
		{"garbage", "/attempts/a-1", "Bearer nope", http.StatusUnauthorized},
		{"other attempt", "/attempts/a-2", "Bearer " + tok, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i, want := range []bool{true, true, false} {
		if got := rl.allow("10.0.0.1"); got != want {
			t.Errorf("request %d allowed = %v, want %v", i, got, want)
		}
	}
	if !rl.allow("10.0.0.2") {
		t.Error("separate IPs must have separate buckets")
	}

	now = now.Add(time.Minute)
	if !rl.allow("10.0.0.1") {
		t.Error("bucket not refilled after an interval")
	}

	now = now.Add(10 * time.Minute)
	rl.cleanup()
	if len(rl.visitors) != 0 {
		t.Errorf("visitors after cleanup = %d", len(rl.visitors))
	}
}

func TestBrotli(t *testing.T) {
	long := strings.Repeat("soal ", 500)
	r := gin.New()
	r.Use(BrotliWithConfig(BrotliConfig{MinLength: 64}))
	r.GET("/long", func(c *gin.Context) { c.String(http.StatusOK, long) })
	r.GET("/short", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/long", nil)
	req.Header.Set("Accept-Encoding", "gzip, br;q=1.0")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Header().Get("Content-Encoding") != "br" {
		t.Fatalf("long body not compressed, headers = %v", w.Header())
	}
	body, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != long {
		t.Error("decompressed body mismatch")
	}

	req = httptest.NewRequest(http.MethodGet, "/short", nil)
	req.Header.Set("Accept-Encoding", "br")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("Content-Encoding") != "" || w.Body.String() != "ok" {
		t.Errorf("short body = %q encoding %q", w.Body.String(), w.Header().Get("Content-Encoding"))
	}
}

func TestNoStore(t *testing.T) {
	r := gin.New()
	r.GET("/", NoStore(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q", got)
	}
}
