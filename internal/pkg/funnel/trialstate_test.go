package funnel

import (
	"testing"
	"time"

	"github.com/steeplelabs/steeple/app/models"
)

func TestIsExpired(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		trial models.Trial
		want  bool
	}{
		{
			name:  "inside window",
			trial: models.Trial{TrialExpiry: now.Add(24 * time.Hour)},
			want:  false,
		},
		{
			name:  "past expiry",
			trial: models.Trial{TrialExpiry: now.Add(-time.Minute)},
			want:  true,
		},
		{
			name:  "paid trial past expiry never expires",
			trial: models.Trial{TrialExpiry: now.Add(-30 * 24 * time.Hour), HasPaid: true},
			want:  false,
		},
		{
			name:  "exactly at expiry is not yet expired",
			trial: models.Trial{TrialExpiry: now},
			want:  false,
		},
	}

	for _, tt := range tests {
		if got := IsExpired(&tt.trial, now); got != tt.want {
			t.Fatalf("%s: IsExpired = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestStatusOf(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		trial models.Trial
		want  TrialStatus
	}{
		{
			name:  "fresh trial",
			trial: models.Trial{TrialExpiry: now.Add(TrialDuration)},
			want:  StatusActive,
		},
		{
			name:  "lapsed unpaid trial",
			trial: models.Trial{TrialExpiry: now.Add(-time.Hour)},
			want:  StatusExpired,
		},
		{
			name:  "paid without publish access",
			trial: models.Trial{TrialExpiry: now.Add(-time.Hour), HasPaid: true},
			want:  StatusPaid,
		},
		{
			name:  "paid with publish access",
			trial: models.Trial{HasPaid: true, HasPublishAccess: true},
			want:  StatusPublished,
		},
	}

	for _, tt := range tests {
		if got := StatusOf(&tt.trial, now); got != tt.want {
			t.Fatalf("%s: StatusOf = %q, want %q", tt.name, got, tt.want)
		}
	}
}
