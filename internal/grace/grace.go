// Package grace implements the creator preview window. The window is fixed
// when the story is authored and never touches the unlock ledger.
package grace

import (
	"time"

	"storylock/internal/store"
)

// AccessUntil returns the end of the creator window for a story authored at
// createdAt with the given grace period, or nil when there is none.
func AccessUntil(createdAt time.Time, days int) *time.Time {
	if days <= 0 {
		return nil
	}
	until := createdAt.Add(time.Duration(days) * 24 * time.Hour)
	return &until
}

// Active reports whether a creator may preview content at now.
func Active(settings store.StorySettings, isCreator bool, now time.Time) bool {
	if !isCreator || settings.CreatorAccessUntil == nil {
		return false
	}
	return now.Before(*settings.CreatorAccessUntil)
}

// Remaining is the time left in the window, zero once it has closed.
func Remaining(settings store.StorySettings, now time.Time) time.Duration {
	if settings.CreatorAccessUntil == nil {
		return 0
	}
	if left := settings.CreatorAccessUntil.Sub(now); left > 0 {
		return left
	}
	return 0
}
