package jobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewAnalysisID derives a per-attempt id from source tag, owner, unit and
// creation time. The short random suffix keeps two attempts in the same
// second distinct.
func NewAnalysisID(sessionTag, ownerID, unitID string, now time.Time) string {
	prefix := "manual_analysis"
	if sessionTag == SessionAutoBatch {
		prefix = "auto_analysis"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%s_%s_%s", prefix, ownerID, unitID, now.UTC().Format("20060102_150405"), suffix)
}

// SanitizeError flattens an error for storage on the job record.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	msg = strings.ReplaceAll(msg, "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	if len(msg) > 500 {
		msg = msg[:500]
	}
	return msg
}
