// Package urgency classifies donations by how close they are to expiry.
package urgency

import (
	"sort"
	"time"

	"github.com/Baaaki/mealmender/internal/models"
)

type Level = models.UrgencyLevel

const (
	Safe    Level = "safe"
	Warning Level = "warning"
	Urgent  Level = "urgent"
	Expired Level = "expired"
)

const (
	UrgentWithin  = 2 * time.Hour
	WarningWithin = 5 * time.Hour

	// NotifyWithin is the window in which the one-time expiry notification fires.
	NotifyWithin = 3 * time.Hour
)

// Classify maps the time left until expiry to a level. An expiry exactly at now
// is still urgent, anything past it is expired.
func Classify(expiry, now time.Time) Level {
	left := expiry.Sub(now)
	switch {
	case left < 0:
		return Expired
	case left <= UrgentWithin:
		return Urgent
	case left <= WarningWithin:
		return Warning
	default:
		return Safe
	}
}

// InNotifyWindow reports whether 0 < left <= NotifyWithin.
func InNotifyWindow(expiry, now time.Time) bool {
	left := expiry.Sub(now)
	return left > 0 && left <= NotifyWithin
}

// Rank orders levels for display: urgent first, expired last.
func Rank(l Level) int {
	switch l {
	case Urgent:
		return 0
	case Warning:
		return 1
	case Safe:
		return 2
	case Expired:
		return 3
	}
	return 4
}

// Valid reports whether l is one of the four known levels.
func Valid(l Level) bool {
	return Rank(l) < 4
}

// SortByRank stable-sorts items by the rank of their level, so items of equal
// rank keep the order they came in.
func SortByRank[T any](items []T, level func(T) Level) {
	sort.SliceStable(items, func(i, j int) bool {
		return Rank(level(items[i])) < Rank(level(items[j]))
	})
}

// TimeLeft splits the remaining time into whole hours and minutes.
func TimeLeft(expiry, now time.Time) (hours, minutes int) {
	left := expiry.Sub(now)
	if left < 0 {
		return 0, 0
	}
	hours = int(left / time.Hour)
	minutes = int((left % time.Hour) / time.Minute)
	return hours, minutes
}
