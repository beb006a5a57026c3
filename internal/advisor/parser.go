package advisor

import (
	"strconv"
	"strings"
	"time"

	"github.com/velora/optionsim/internal/domain"
)

// parseReply extracts a structured prediction from a free-text model reply.
//
// The parser is deliberately tolerant: it scans line by line for
// direction/confidence/analysis markers and falls back to defaults for
// anything it cannot match — direction "down", confidence 50, and the raw
// reply text as the rationale.  A malformed reply therefore still yields a
// usable (if cautious) prediction instead of an error.
func parseReply(text string) *domain.Prediction {
	pred := &domain.Prediction{
		Direction:   domain.PredictDown,
		Confidence:  50,
		GeneratedAt: time.Now().UTC(),
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.Trim(line, "*-# "))
		lower := strings.ToLower(line)

		switch {
		case strings.HasPrefix(lower, "direction"):
			value := markerValue(line)
			if strings.Contains(strings.ToLower(value), "up") {
				pred.Direction = domain.PredictUp
			} else if strings.Contains(strings.ToLower(value), "down") {
				pred.Direction = domain.PredictDown
			}

		case strings.HasPrefix(lower, "confidence"):
			if n, ok := firstInt(markerValue(line)); ok && n >= 0 && n <= 100 {
				pred.Confidence = n
			}

		case strings.HasPrefix(lower, "analysis"), strings.HasPrefix(lower, "reason"):
			if value := markerValue(line); value != "" {
				pred.Rationale = value
			}
		}
	}

	if pred.Rationale == "" {
		pred.Rationale = strings.TrimSpace(text)
	}
	return pred
}

// markerValue returns the text after the first ':' in a "marker: value" line,
// or "" when the line has no separator.
func markerValue(line string) string {
	_, after, found := strings.Cut(line, ":")
	if !found {
		return ""
	}
	return strings.TrimSpace(after)
}

// firstInt extracts the first run of digits in s as an integer.
func firstInt(s string) (int, bool) {
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			n, err := strconv.Atoi(s[start:i])
			return n, err == nil
		}
	}
	if start >= 0 {
		n, err := strconv.Atoi(s[start:])
		return n, err == nil
	}
	return 0, false
}
