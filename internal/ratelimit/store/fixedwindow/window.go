// Package fixedwindow implements counters over aligned windows.
//
// A fixed window admits up to twice the limit across a window boundary
// (limit requests at the end of one window, limit more at the start of the next).
// It is selectable for development and as a cheap fallback only.
package fixedwindow

import (
	"time"

	"warden/internal/ratelimit/models"
)

// windowBounds returns the aligned window containing now.
func windowBounds(now time.Time, window time.Duration) (start, end time.Time) {
	start = now.Truncate(window)
	return start, start.Add(window)
}

// decide turns a post-increment counter into a decision.
func decide(count int64, limit models.Limit, now, end time.Time) *models.Decision {
	if count > int64(limit.Requests) {
		return models.Deny(limit.Requests, end, end.Sub(now))
	}
	return models.Allow(limit.Requests, limit.Requests-int(count), end)
}
