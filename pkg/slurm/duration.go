package slurm

import (
	"fmt"
	"time"
)

// FormatDuration renders d in the Slurm time-limit syntax: "SS" below a
// minute, "MM:SS" below an hour, "HH:MM:SS" below a day, else
// "D-HH:MM:SS".
func FormatDuration(d time.Duration) string {
	secs := int64(d.Seconds())
	secsRem := secs % 60

	if secs == secsRem {
		return fmt.Sprintf("%02d", secs)
	}

	mins := secs / 60
	minsRem := mins % 60

	if mins == minsRem {
		return fmt.Sprintf("%02d:%02d", mins, secsRem)
	}

	hours := mins / 60
	hoursRem := hours % 24

	if hours == hoursRem {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minsRem, secsRem)
	}

	days := hours / 24

	return fmt.Sprintf("%d-%02d:%02d:%02d", days, hoursRem, minsRem, secsRem)
}
