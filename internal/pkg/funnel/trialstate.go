package funnel

import (
	"time"

	"github.com/steeplelabs/steeple/app/models"
)

// TrialDuration is the fixed entitlement window granted at trial start.
const TrialDuration = 14 * 24 * time.Hour

// TrialStatus is the derived state of a trial for display and gating.
type TrialStatus string

const (
	StatusActive    TrialStatus = "active"
	StatusExpired   TrialStatus = "expired"
	StatusPaid      TrialStatus = "paid"
	StatusPublished TrialStatus = "published"
)

// IsExpired reports whether the trial window has lapsed. A paid trial is
// never expired regardless of its expiry timestamp.
func IsExpired(trial *models.Trial, now time.Time) bool {
	if trial.HasPaid {
		return false
	}
	return now.After(trial.TrialExpiry)
}

// StatusOf derives the display status of a trial at a point in time.
func StatusOf(trial *models.Trial, now time.Time) TrialStatus {
	switch {
	case trial.HasPaid && trial.HasPublishAccess:
		return StatusPublished
	case trial.HasPaid:
		return StatusPaid
	case IsExpired(trial, now):
		return StatusExpired
	default:
		return StatusActive
	}
}
