package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long a stored response is replayed
const DefaultTTL = 24 * time.Hour

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_\-:.]{8,255}$`)

// Record is a stored response for one key
type Record struct {
	ID             uuid.UUID       `db:"id"`
	Key            string          `db:"idempotency_key"`
	RequestPath    string          `db:"request_path"`
	RequestMethod  string          `db:"request_method"`
	RequestHash    string          `db:"request_hash"`
	UserID         *uuid.UUID      `db:"user_id"`
	ResponseStatus int             `db:"response_status"`
	ResponseBody   json.RawMessage `db:"response_body"`
	CreatedAt      time.Time       `db:"created_at"`
	ExpiresAt      time.Time       `db:"expires_at"`
}

// Store persists idempotency records
type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	Create(ctx context.Context, record *Record) error
}

// Response is the cached part of a record
type Response struct {
	Status int
	Body   []byte
}

// ValidateKey checks the header value format
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return errors.New("key must be 8-255 characters of letters, digits, '-', '_', ':' or '.'")
	}
	return nil
}

// ReadBody reads at most max bytes and fails if the body is larger
func ReadBody(body io.Reader, max int64) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(body, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("request body exceeds %d bytes", max)
	}
	return data, nil
}

// HashRequest fingerprints the request body
func HashRequest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// ScopedKey binds a client key to the caller so two users cannot collide
func ScopedKey(userID *uuid.UUID, key string) string {
	if userID == nil {
		return key
	}
	return userID.String() + ":" + key
}

// ShouldReturnCached decides whether a stored response can be replayed
func ShouldReturnCached(cached *Response, requestHash, storedHash string) (bool, string) {
	if cached == nil {
		return false, "no cached response"
	}
	if requestHash != storedHash {
		return false, "idempotency key reused with a different request body"
	}
	return true, ""
}

// Cacheable reports whether a response status should be stored
func Cacheable(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
