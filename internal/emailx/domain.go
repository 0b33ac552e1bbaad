package emailx

import (
	"net/url"
	"strings"
)

// NormalizeDomain canonicalizes a raw website string into the lowercase host
// used as the company deduplication key. The scheme, a leading "www.", any
// path/query/fragment and trailing dots are stripped. Empty or unparseable
// input yields an empty string; the function never fails and is idempotent.
func NormalizeDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	lowered := strings.ToLower(raw)
	if !strings.Contains(lowered, "://") {
		lowered = "https://" + lowered
	}

	parsed, err := url.Parse(lowered)
	if err != nil {
		return ""
	}

	host := strings.ToLower(strings.TrimSpace(parsed.Hostname()))
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimRight(host, ".")
	return host
}
