package security

import (
	"regexp"
	"strings"
)

var (
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	jwtPattern    = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`)
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret|secret|token|signature)["\s:=]+["']?([a-zA-Z0-9_\-+/=]{16,})["']?`)

	sensitiveHeaders = map[string]bool{
		"authorization":      true,
		"x-api-key":          true,
		"x-api-sign":         true,
		"x-scheduler-secret": true,
		"cookie":             true,
	}
)

// MaskString masks emails, bearer tokens and credentials embedded in free text,
// such as an upstream error body
func MaskString(s string) string {
	s = emailPattern.ReplaceAllStringFunc(s, MaskEmail)
	s = jwtPattern.ReplaceAllString(s, "eyJ***REDACTED***")
	s = apiKeyPattern.ReplaceAllString(s, "$1: ***REDACTED***")
	return s
}

// MaskEmail keeps the first character of the local part and the domain
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

// MaskAPIKey keeps the first and last four characters of a key
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// RedactHeaders flattens headers for logging with credentials removed
func RedactHeaders(headers map[string][]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if sensitiveHeaders[strings.ToLower(k)] {
			out[k] = "***REDACTED***"
			continue
		}
		out[k] = strings.Join(v, ",")
	}
	return out
}
