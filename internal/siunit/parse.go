// Package siunit parses the case-insensitive SI byte-size suffixes used by
// file-cache.max-bytes in the configuration file (k=10^3, m=10^6, g=10^9,
// t=10^12; no suffix means a plain byte count).
package siunit

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var multipliers = map[byte]int64{
	'k': 1e3,
	'm': 1e6,
	'g': 1e9,
	't': 1e12,
}

// ParseBytes parses a string like "100M" or "4k" into a byte count.
// An empty suffix is treated as a multiplier of 1. The suffix is
// case-insensitive. A malformed value is a configuration error; callers
// decide how fatal that is.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty byte-size value")
	}

	lower := strings.ToLower(s)
	last := lower[len(lower)-1]
	numPart := lower
	multiplier := int64(1)
	if m, ok := multipliers[last]; ok {
		multiplier = m
		numPart = lower[:len(lower)-1]
	}

	if numPart == "" {
		return 0, errors.Errorf("missing numeric part in byte-size value %q", s)
	}

	n, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid byte-size value %q", s)
	}
	if n < 0 {
		return 0, errors.Errorf("byte-size value %q must not be negative", s)
	}

	return int64(n * float64(multiplier)), nil
}
