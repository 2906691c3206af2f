package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/tradepilot/pilot_service/pkg/auth"
	"github.com/tradepilot/pilot_service/pkg/logger"
)

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.Use(mw...)
	router.POST("/tick", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.Value("user_id")})
	})
	return router
}

func TestSchedulerSecret(t *testing.T) {
	router := newRouter(SchedulerSecret("tick-secret", logger.NewNop()))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "tick-secreT", http.StatusUnauthorized},
		{"prefix", "tick", http.StatusUnauthorized},
		{"valid", "tick-secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/tick", nil)
			if tt.header != "" {
				req.Header.Set(HeaderSchedulerSecret, tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestSchedulerSecret_EmptyConfigRejectsAll(t *testing.T) {
	router := newRouter(SchedulerSecret("", logger.NewNop()))

	req := httptest.NewRequest(http.MethodPost, "/tick", nil)
	req.Header.Set(HeaderSchedulerSecret, "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthentication(t *testing.T) {
	router := newRouter(Authentication("jwt-secret", logger.NewNop()))
	userID := uuid.New()
	token, _, err := auth.GenerateToken(userID, "user", "jwt-secret", "", time.Hour)
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/tick", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), userID.String())

	for _, header := range []string{"", "Token " + token, "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodPost, "/tick", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}

func TestRateLimit_BlocksExcessRequests(t *testing.T) {
	router := newRouter(RateLimit(3))

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodPost, "/tick", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{200, 200, 200, 429}, codes)

	req := httptest.NewRequest(http.MethodPost, "/tick", nil)
	req.RemoteAddr = "10.0.0.2:1"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), Recovery(logger.NewNop()))
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
