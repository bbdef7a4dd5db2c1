package playlist

import (
	"strconv"
	"strings"
)

// formatDuration renders a partial-duration or hold-back value at 5
// fractional digits with trailing zeros trimmed, but never below one
// digit after the point (".0", not ".").
func formatDuration(v float64) string {
	s := strconv.FormatFloat(v, 'f', 5, 64)
	s = strings.TrimRight(s, "0")
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	return s
}
