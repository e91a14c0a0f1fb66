package upstream

import "fmt"

// Error is a generation failure reported by the upstream: a non-2xx status,
// a non-zero embedded code, or a body that could not be parsed.
type Error struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (upstream status %d)", e.Message, e.StatusCode)
}
