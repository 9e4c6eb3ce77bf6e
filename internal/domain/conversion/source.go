package conversion

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeSourceURL validates a playlist reference and returns its trimmed form.
// Only absolute http(s) URLs with a host are accepted.
func NormalizeSourceURL(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSource)
	}

	parsed, err := url.Parse(value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidSource, parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidSource)
	}

	return value, nil
}
