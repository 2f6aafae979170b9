package score

import (
	"strconv"
	"strings"

	"kernelboard/internal/apperr"
)

// Marker that runner harnesses print in front of the measured runtime.
const marker = "score:"

// Extract pulls the runtime score (seconds, lower is better) out of raw
// runner output. Runner logs are noisy, so the scan walks lines from the end
// and takes the last well-formed marker; a malformed payload on a later line
// does not hide a valid earlier one. Missing marker is an error, never a
// numeric default: a silent zero would top the ranking.
func Extract(raw string) (float64, error) {
	lines := strings.Split(raw, "\n")

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		idx := strings.Index(strings.ToLower(line), marker)
		if idx < 0 {
			continue
		}

		payload := strings.TrimSpace(line[idx+len(marker):])
		if fields := strings.Fields(payload); len(fields) > 0 {
			payload = fields[0]
		}
		v, err := strconv.ParseFloat(payload, 64)
		if err != nil || v < 0 {
			continue
		}
		return v, nil
	}

	return 0, apperr.ErrScoreNotFound
}
