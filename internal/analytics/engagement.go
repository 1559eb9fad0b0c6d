package analytics

import (
	"sort"
	"time"
)

// HourOfDayCounts buckets timestamps by UTC hour of day.
func HourOfDayCounts(ts []time.Time) [24]int {
	var counts [24]int
	for _, t := range ts {
		if t.IsZero() {
			continue
		}
		counts[t.UTC().Hour()]++
	}
	return counts
}

// TopHours returns up to n hours with the highest counts, most frequent first.
// Ties go to the lower hour. Hours with a zero count are never returned.
func TopHours(counts [24]int, n int) []int {
	hours := make([]int, 0, 24)
	for h, c := range counts {
		if c > 0 {
			hours = append(hours, h)
		}
	}
	sort.SliceStable(hours, func(i, j int) bool {
		if counts[hours[i]] != counts[hours[j]] {
			return counts[hours[i]] > counts[hours[j]]
		}
		return hours[i] < hours[j]
	})
	if n >= 0 && len(hours) > n {
		hours = hours[:n]
	}
	return hours
}

// ActiveHours is TopHours over the hour-of-day buckets of ts.
func ActiveHours(ts []time.Time, n int) []int {
	return TopHours(HourOfDayCounts(ts), n)
}
