package tool

import (
	"strings"
	"time"
	"unicode/utf8"
)

// TruncationMarker is appended to any output cut by Truncate.
const TruncationMarker = "\n... (truncated)"

// Limits holds the size and time policies shared by the builtin tools.
type Limits struct {
	MaxOutputChars        int
	MaxFileBytes          int64
	MaxReadChars          int
	MaxHTTPResponseBytes  int
	MaxSearchResults      int
	MaxRows               int
	MaxAffectedRows       int64
	ObservationChars      int
	CommandTimeout        time.Duration
	HTTPTimeout           time.Duration
	HTTPRequestsPerMinute int
}

// DefaultLimits returns the stock policy values.
func DefaultLimits() Limits {
	return Limits{
		MaxOutputChars:        10000,
		MaxFileBytes:          1_000_000,
		MaxReadChars:          50000,
		MaxHTTPResponseBytes:  1_000_000,
		MaxSearchResults:      50,
		MaxRows:               100,
		MaxAffectedRows:       1000,
		ObservationChars:      1000,
		CommandTimeout:        60 * time.Second,
		HTTPTimeout:           30 * time.Second,
		HTTPRequestsPerMinute: 60,
	}
}

// Truncate cuts s to at most max bytes on a rune boundary and appends the
// truncation marker. A max of zero or less disables truncation.
func Truncate(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	var b strings.Builder
	b.Grow(cut + len(TruncationMarker))
	b.WriteString(s[:cut])
	b.WriteString(TruncationMarker)
	return b.String(), true
}

// TruncateString is Truncate without the flag.
func TruncateString(s string, max int) string {
	out, _ := Truncate(s, max)
	return out
}
