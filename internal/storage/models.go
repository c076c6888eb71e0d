package storage

import (
	"fmt"
	"time"

	"github.com/kalambet/jobtrack/internal/gateway"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gateway.ErrNotFound

// tsLayout is fixed-width so stored timestamps sort as text.
const tsLayout = "2006-01-02T15:04:05.000000Z07:00"

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(col, v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", col, err)
	}
	return t, nil
}

// nowUTC is truncated to the stored precision.
func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
