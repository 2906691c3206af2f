package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "a***@example.com", MaskEmail("alice@example.com"))
	assert.Equal(t, "***", MaskEmail("not-an-email"))
	assert.Equal(t, "***", MaskEmail("@example.com"))
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "abcd********wxyz", MaskAPIKey("abcd12345678wxyz"))
	assert.Equal(t, "*****", MaskAPIKey("short"))
	assert.Equal(t, "", MaskAPIKey(""))
}

func TestMaskString(t *testing.T) {
	in := `order rejected for bob@example.com: api_key="ABCDEFGHIJKLMNOPQRST" token eyJhbGciOi.eyJzdWIiOi.c2ln`
	out := MaskString(in)

	assert.NotContains(t, out, "bob@example.com")
	assert.Contains(t, out, "b***@example.com")
	assert.NotContains(t, out, "ABCDEFGHIJKLMNOPQRST")
	assert.NotContains(t, out, "eyJzdWIiOi")
	assert.Contains(t, out, "order rejected")
}

func TestRedactHeaders(t *testing.T) {
	out := RedactHeaders(map[string][]string{
		"Authorization":      {"Bearer abc"},
		"X-Scheduler-Secret": {"s3cret"},
		"Accept":             {"application/json", "text/plain"},
	})
	assert.Equal(t, "***REDACTED***", out["Authorization"])
	assert.Equal(t, "***REDACTED***", out["X-Scheduler-Secret"])
	assert.Equal(t, "application/json,text/plain", out["Accept"])
}
