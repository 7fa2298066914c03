package runstore

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const runIDLayout = "2006-01-02_150405"

// NewRunID returns an id of the form YYYY-MM-DD_HHMMSS_xxxxxx, where the
// suffix is six random hex digits.
func NewRunID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return now.Format(runIDLayout) + "_" + suffix
}

// RunTime parses the timestamp prefix of a run id in the local zone.
func RunTime(runID string) (time.Time, bool) {
	if len(runID) < len(runIDLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(runIDLayout, runID[:len(runIDLayout)], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// validRunID rejects ids that could address anything but a run directory.
func validRunID(runID string) bool {
	if runID == "" || runID == "." || runID == ".." || strings.HasPrefix(runID, "_") {
		return false
	}
	return !strings.ContainsAny(runID, `/\`)
}
