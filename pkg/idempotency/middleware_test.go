package idempotency

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	getErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]*Record)}
}

func (s *memoryStore) Get(_ context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.records[key], nil
}

func (s *memoryStore) Create(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Key] = record
	return nil
}

func setupRouter(store Store, userID uuid.UUID, calls *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Next()
	})
	r.Use(Middleware(store, zap.NewNop()))
	r.POST("/proposals/:id/execute", func(c *gin.Context) {
		*calls++
		c.JSON(http.StatusOK, gin.H{"status": "SUBMITTED", "call": *calls})
	})
	r.GET("/proposals", func(c *gin.Context) {
		*calls++
		c.JSON(http.StatusOK, gin.H{"call": *calls})
	})
	return r
}

func do(r http.Handler, method, path, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware_ReplaysStoredResponse(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	r := setupRouter(store, uuid.New(), &calls)

	first := do(r, http.MethodPost, "/proposals/p1/execute", "exec-key-0001", `{}`)
	require.Equal(t, http.StatusOK, first.Code)

	second := do(r, http.MethodPost, "/proposals/p1/execute", "exec-key-0001", `{}`)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)
}

func TestMiddleware_DifferentBodyConflicts(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	r := setupRouter(store, uuid.New(), &calls)

	do(r, http.MethodPost, "/proposals/p1/execute", "exec-key-0002", `{"a":1}`)
	w := do(r, http.MethodPost, "/proposals/p1/execute", "exec-key-0002", `{"a":2}`)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "IDEMPOTENCY_CONFLICT")
	assert.Equal(t, 1, calls)
}

func TestMiddleware_KeysAreScopedPerUser(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	do(setupRouter(store, uuid.New(), &calls), http.MethodPost, "/proposals/p1/execute", "shared-key-01", `{}`)
	do(setupRouter(store, uuid.New(), &calls), http.MethodPost, "/proposals/p1/execute", "shared-key-01", `{}`)

	assert.Equal(t, 2, calls)
	assert.Len(t, store.records, 2)
}

func TestMiddleware_PassThrough(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	r := setupRouter(store, uuid.New(), &calls)

	do(r, http.MethodGet, "/proposals", "read-key-0001", "")
	do(r, http.MethodPost, "/proposals/p1/execute", "", `{}`)
	do(r, http.MethodPost, "/proposals/p1/execute", "", `{}`)

	assert.Equal(t, 3, calls)
	assert.Empty(t, store.records)
}

func TestMiddleware_InvalidKey(t *testing.T) {
	calls := 0
	r := setupRouter(newMemoryStore(), uuid.New(), &calls)

	w := do(r, http.MethodPost, "/proposals/p1/execute", "bad key", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_IDEMPOTENCY_KEY")
	assert.Zero(t, calls)
}

func TestMiddleware_StoreFailureFailsOpen(t *testing.T) {
	store := newMemoryStore()
	store.getErr = errors.New("db down")
	calls := 0
	r := setupRouter(store, uuid.New(), &calls)

	w := do(r, http.MethodPost, "/proposals/p1/execute", "exec-key-0003", `{}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, calls)
}

func TestShouldReturnCached(t *testing.T) {
	ok, _ := ShouldReturnCached(&Response{Status: 200}, "h1", "h1")
	assert.True(t, ok)

	ok, reason := ShouldReturnCached(&Response{Status: 200}, "h1", "h2")
	assert.False(t, ok)
	assert.NotEmpty(t, reason)

	ok, _ = ShouldReturnCached(nil, "h1", "h1")
	assert.False(t, ok)
}
