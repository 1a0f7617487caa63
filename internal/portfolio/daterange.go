package portfolio

import (
	"math"
	"time"
)

// Bucket is one sample point of a valuation window.
type Bucket struct {
	Label string
	Time  time.Time
}

// Step returns the bucket granularity of a window: 1h for a day, 3h up to
// a week, 6h up to two weeks, daily beyond.
func Step(chartDays int) time.Duration {
	switch {
	case chartDays <= 1:
		return time.Hour
	case chartDays <= 7:
		return 3 * time.Hour
	case chartDays <= 14:
		return 6 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// BucketCount returns ceil(chartDays*24h/step)+1.
func BucketCount(chartDays int) int {
	if chartDays < 1 {
		chartDays = 1
	}
	hours := float64(chartDays * 24)
	return int(math.Ceil(hours/Step(chartDays).Hours())) + 1
}

// DateRange returns the buckets of a window, oldest first, the last one
// at now.
func DateRange(now time.Time, chartDays int) []Bucket {
	step := Step(chartDays)
	n := BucketCount(chartDays)
	layout := "Jan 02 15:04"
	if step >= 24*time.Hour {
		layout = "Jan 02"
	}

	out := make([]Bucket, n)
	for i := 0; i < n; i++ {
		t := now.Add(-time.Duration(n-1-i) * step)
		out[i] = Bucket{Label: t.UTC().Format(layout), Time: t}
	}
	return out
}

// TargetBlock estimates the block mined elapsed ago from the current
// block and the average block time, minus safety blocks. Clamped at 0.
func TargetBlock(current uint64, avgBlockTime, elapsed time.Duration, safety uint64) uint64 {
	var back uint64
	if avgBlockTime > 0 && elapsed > 0 {
		back = uint64(math.Ceil(float64(elapsed) / float64(avgBlockTime)))
	}
	back += safety
	if back >= current {
		return 0
	}
	return current - back
}
