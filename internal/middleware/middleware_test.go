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
	"github.com/stemsi/lessonflow/internal/config"
	"github.com/stemsi/lessonflow/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testAuth() *service.AuthService {
	return service.NewAuthService(&config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour})
}

func TestRequireLearnerJWT(t *testing.T) {
	auth := testAuth()
	token, err := auth.IssueToken("learner-7", service.TierPremium)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", RequireLearnerJWT(auth), func(c *gin.Context) {
		claims := GetClaims(c)
		c.String(http.StatusOK, "%s:%v", claims.LearnerID, claims.Learner().Premium)
	})

	tests := []struct {
		name   string
		header string
		query  string
		status int
		body   string
	}{
		{name: "bearer header", header: "Bearer " + token, status: http.StatusOK, body: "learner-7:true"},
		{name: "query fallback", query: "?token=" + token, status: http.StatusOK, body: "learner-7:true"},
		{name: "missing", status: http.StatusUnauthorized, body: "TOKEN_REQUIRED"},
		{name: "garbage", header: "Bearer nope", status: http.StatusUnauthorized, body: "TOKEN_INVALID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, 2, time.Minute)
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("ip:1"))
	assert.True(t, rl.allow("ip:1"))
	assert.False(t, rl.allow("ip:1"))
	assert.True(t, rl.allow("ip:2"), "buckets are per visitor")

	now = now.Add(time.Minute)
	assert.True(t, rl.allow("ip:1"))

	now = now.Add(10 * time.Minute)
	rl.cleanup()
	assert.Empty(t, rl.visitors)
}

func TestRateLimiter_Middleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := gin.New()
	r.GET("/x", NewRateLimiter(ctx, 1, time.Minute).Middleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	codes := make([]int, 2)
	for i := range codes {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		codes[i] = w.Code
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestBrotli(t *testing.T) {
	large := strings.Repeat("lesson ", 500)

	r := gin.New()
	r.Use(Brotli())
	r.GET("/large", func(c *gin.Context) { c.String(http.StatusOK, large) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	t.Run("compresses large bodies", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/large", nil)
		req.Header.Set("Accept-Encoding", "gzip, br")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "br", w.Header().Get("Content-Encoding"))
		plain, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
		require.NoError(t, err)
		assert.Equal(t, large, string(plain))
	})

	t.Run("passes small bodies through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/small", nil)
		req.Header.Set("Accept-Encoding", "br")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Content-Encoding"))
		assert.Equal(t, "ok", w.Body.String())
	})

	t.Run("respects Accept-Encoding", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/large", nil))
		assert.Empty(t, w.Header().Get("Content-Encoding"))
		assert.Equal(t, large, w.Body.String())
	})
}

func TestCacheHeaders(t *testing.T) {
	r := gin.New()
	r.GET("/pub", CacheControl(60), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/priv", NoStore(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pub", nil))
	assert.Equal(t, "public, max-age=60", w.Header().Get("Cache-Control"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/priv", nil))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
