package queue

import (
	"fmt"
	"strconv"
)

// ParseNumber reads a ticket number: ASCII digits only, no sign and no
// leading zeros.
func ParseNumber(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty ticket number")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("ticket number %q is not a decimal integer", s)
		}
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("ticket number %q has leading zeros", s)
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ticket number %q: %w", s, err)
	}
	return n, nil
}

func FormatNumber(n uint64) string {
	return strconv.FormatUint(n, 10)
}
