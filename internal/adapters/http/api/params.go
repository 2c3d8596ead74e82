package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseDate accepts YYYY-MM-DD or RFC3339. A bare date used as an upper
// bound covers the whole day.
func parseDate(field, s string, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, NewKind(fmt.Sprintf("%s %q is not YYYY-MM-DD or RFC3339", field, s), ErrBadRequest)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// parseLimit reads a non-negative limit; empty means no limit.
func parseLimit(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, NewKind(fmt.Sprintf("limit %q must be a non-negative integer", s), ErrBadRequest)
	}
	return n, nil
}
