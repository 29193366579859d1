// internal/appconfig/sessions.go
package appconfig

import (
	"fmt"
	"strconv"
	"strings"
)

// SessionMatcher decides, per session index, whether a feature is enabled.
// It is built from an expression that is either "true"/"false" or a
// comma-separated list of indexes and inclusive ranges, e.g. "0,2,4-6".
type SessionMatcher struct {
	all    bool
	ranges [][2]int
}

// ParseSessionMatcher parses an enable expression. The empty expression
// matches no session.
func ParseSessionMatcher(expr string) (SessionMatcher, error) {
	expr = strings.TrimSpace(expr)
	switch strings.ToLower(expr) {
	case "", "false":
		return SessionMatcher{}, nil
	case "true":
		return SessionMatcher{all: true}, nil
	}

	var m SessionMatcher
	for _, token := range strings.Split(expr, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			return SessionMatcher{}, fmt.Errorf("empty index in expression %q", expr)
		}
		lo, hi, ok := strings.Cut(token, "-")
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil || start < 0 {
			return SessionMatcher{}, fmt.Errorf("invalid index %q in expression %q", token, expr)
		}
		end := start
		if ok {
			end, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil || end < start {
				return SessionMatcher{}, fmt.Errorf("invalid range %q in expression %q", token, expr)
			}
		}
		m.ranges = append(m.ranges, [2]int{start, end})
	}
	return m, nil
}

// Enabled reports whether the session at index matches.
func (m SessionMatcher) Enabled(index int) bool {
	if m.all {
		return true
	}
	for _, r := range m.ranges {
		if index >= r[0] && index <= r[1] {
			return true
		}
	}
	return false
}
