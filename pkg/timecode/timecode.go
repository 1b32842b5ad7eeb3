// Package timecode converts between user or model supplied timestamps and
// second offsets.
package timecode

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	apperrors "ai-video-cutter/pkg/errors"
)

var componentRE = regexp.MustCompile(`^\d+(\.\d+)?$`)

// Parse accepts "SS", "MM:SS" or "HH:MM:SS". Every component is a non-negative
// decimal; all but the leading component must be below 60.
func Parse(token string) (float64, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return 0, malformed(token, "empty timestamp")
	}

	fields := strings.Split(trimmed, ":")
	if len(fields) > 3 {
		return 0, malformed(token, fmt.Sprintf("expected at most 3 fields, got %d", len(fields)))
	}

	var total float64
	for i, field := range fields {
		field = strings.TrimSpace(field)
		if !componentRE.MatchString(field) {
			return 0, malformed(token, fmt.Sprintf("component %q is not a non-negative number", field))
		}
		value, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return 0, malformed(token, err.Error())
		}
		if i > 0 && value >= 60 {
			return 0, malformed(token, fmt.Sprintf("component %q must be below 60", field))
		}
		total = total*60 + value
	}
	return total, nil
}

// Format renders seconds as HH:MM:SS.mmm.
func Format(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	millis := int64(math.Round(seconds * 1000))
	h := millis / 3_600_000
	m := (millis / 60_000) % 60
	s := (millis / 1000) % 60
	ms := millis % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func malformed(token, reason string) error {
	return apperrors.WrapWithDetail(apperrors.CodeMalformedTimestamp, "Malformed timestamp", "token: "+token, fmt.Errorf("%s", reason))
}
