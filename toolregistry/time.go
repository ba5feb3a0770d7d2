package toolregistry

import "time"

// timeNow is a package-level seam so tests can control current_date's output
// deterministically without depending on wall-clock time.
var timeNow = func() time.Time { return time.Now().UTC() }

func nowISO8601() string {
	return timeNow().Format(time.RFC3339)
}
