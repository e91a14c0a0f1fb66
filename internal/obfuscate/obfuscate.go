// Package obfuscate masks credentials before they reach logs or the terminal.
package obfuscate

import (
	"net/url"
	"strings"
)

// Secret hides most of a key:
//   - length <= 4: all asterisks
//   - 5..12: first 2 characters, then asterisks
//   - > 12: first 4, "...", last 4
func Secret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	if len(s) <= 12 {
		return s[:2] + strings.Repeat("*", len(s)-2)
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// MasterKey describes the front-end key for the startup log. The open-access
// placeholder is reported as such rather than masked.
func MasterKey(key, openAccess string) string {
	if key == openAccess {
		return "open access"
	}
	return Secret(key)
}

// URL strips userinfo passwords from an address. Unparsable input is returned
// masked as a whole.
func URL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return Secret(raw)
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "redacted")
		}
	}
	return u.String()
}
