package schedule

import (
	"time"
)

// NextActiveWindow returns the start of the next UTC hour, at or after now's
// hour, that is one of activeHours. The second result is false when
// activeHours holds no valid hour.
func NextActiveWindow(now time.Time, activeHours []int) (time.Time, bool) {
	active := make(map[int]bool, len(activeHours))
	for _, h := range activeHours {
		if h >= 0 && h <= 23 {
			active[h] = true
		}
	}
	if len(active) == 0 {
		return time.Time{}, false
	}
	start := now.UTC().Truncate(time.Hour)
	for i := 0; i < 24; i++ { // one day covers every hour
		cand := start.Add(time.Duration(i) * time.Hour)
		if active[cand.Hour()] {
			if cand.Before(now) {
				return now.UTC(), true
			}
			return cand, true
		}
	}
	return time.Time{}, false
}
