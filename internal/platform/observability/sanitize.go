package observability

import "unicode"

const (
	maxLoggedValueLength = 256
	maxRouteLength       = 200
	maxMethodLength      = 16
	maxUserIDLength      = 64
)

// scrub drops control characters and caps the length so caller-supplied
// values cannot inject newlines or flood a log line.
func scrub(value string, limit int) string {
	if limit <= 0 {
		limit = maxLoggedValueLength
	}

	cleaned := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		cleaned = append(cleaned, r)
		if len(cleaned) == limit {
			break
		}
	}
	return string(cleaned)
}

// SanitizeRoute prepares a request route pattern for logging and tracing.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return scrub(route, maxRouteLength)
}

// SanitizeMethod prepares an HTTP method for logging.
func SanitizeMethod(method string) string {
	return scrub(method, maxMethodLength)
}

// SanitizeUserID caps account identifiers before they reach log output.
func SanitizeUserID(uid string) string {
	if uid == "" {
		return ""
	}
	return scrub(uid, maxUserIDLength)
}
