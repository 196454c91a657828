package logging

import (
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// Keys whose values never reach a log sink in clear. Addresses, pool ids and
// amounts are public ledger data and stay readable.
var sensitiveKeys = map[string]struct{}{
	"authorization": {},
	"jwt":           {},
	"jwt_secret":    {},
	"secret":        {},
	"password":      {},
	"dsn":           {},
	"journal_dsn":   {},
}

var kvPassword = regexp.MustCompile(`(?i)(password\s*=\s*)('[^']*'|\S+)`)

// IsSensitive reports whether values logged under key are masked.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskValue returns the canonical redacted placeholder for non-empty values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskAuthorization keeps the scheme of an Authorization header so operators
// can tell a malformed header from a rejected token.
func MaskAuthorization(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return header
	}
	scheme, _, found := strings.Cut(header, " ")
	if !found {
		return RedactedValue
	}
	return scheme + " " + RedactedValue
}

// MaskDSN strips the password from a journal DSN. URL and key=value postgres
// forms are handled; sqlite paths pass through.
func MaskDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		return u.Redacted()
	}
	return kvPassword.ReplaceAllString(dsn, "${1}"+RedactedValue)
}

func redactAttr(_ []string, attr slog.Attr) slog.Attr {
	if !IsSensitive(attr.Key) || attr.Value.Kind() != slog.KindString {
		return attr
	}
	value := attr.Value.String()
	switch strings.ToLower(attr.Key) {
	case "authorization":
		return slog.String(attr.Key, MaskAuthorization(value))
	case "dsn", "journal_dsn":
		return slog.String(attr.Key, MaskDSN(value))
	default:
		return slog.String(attr.Key, MaskValue(value))
	}
}
