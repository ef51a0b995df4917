package utils

import (
	"sort"
	"time"
)

// ageOffsetHours keeps brand-new posts from dividing by zero and damps their
// initial score.
const ageOffsetHours = 2.0

// Velocity is (up - down) / (hours since creation + 2). Hours are fractional.
func Velocity(up, down int, createdAt, now time.Time) float64 {
	hours := now.Sub(createdAt).Hours()
	if hours < 0 {
		hours = 0
	}
	return float64(up-down) / (hours + ageOffsetHours)
}

// SortByVelocity orders items by descending score. Ties keep their input order.
func SortByVelocity[T any](items []T, score func(T) float64) {
	sort.SliceStable(items, func(i, j int) bool {
		return score(items[i]) > score(items[j])
	})
}
