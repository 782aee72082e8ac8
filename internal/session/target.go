package session

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL reduces a page address to a comparable form: the trailing
// slash, the fragment and the order of query parameters do not matter.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return strings.TrimRight(raw, "/")
	}

	out := u.Scheme + "://" + u.Host + strings.TrimRight(u.Path, "/")
	if q := u.Query(); len(q) > 0 {
		// Encode sorts by key
		out += "?" + q.Encode()
	}
	return out
}

// SameLocation compares two addresses after normalization.
func SameLocation(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return NormalizeURL(a) == NormalizeURL(b)
}

// Destination picks the address a session should load. A continuation target
// wins over the fresh-conversation endpoint; a model mode, when given, is
// added as a query parameter.
func Destination(base, continuation, modelParam, modelFormat, modelMode string) (string, error) {
	dest := strings.TrimRight(strings.TrimSpace(base), "/")
	if c := strings.TrimSpace(continuation); c != "" {
		dest = strings.TrimRight(c, "/")
	}
	if dest == "" {
		return "", fmt.Errorf("no destination configured")
	}

	u, err := url.Parse(dest)
	if err != nil {
		return "", fmt.Errorf("parse destination %q: %w", dest, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("destination %q is not absolute", dest)
	}

	if modelMode = strings.TrimSpace(modelMode); modelMode != "" && modelParam != "" {
		value := modelMode
		if modelFormat != "" {
			value = fmt.Sprintf(modelFormat, modelMode)
		}
		q := u.Query()
		q.Set(modelParam, value)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
