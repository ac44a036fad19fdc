package funnel

import "errors"

var (
	// ErrNotPaid is returned when publish access is requested for a trial
	// whose payment has not been confirmed.
	ErrNotPaid = errors.New("trial has not been paid")

	// ErrTrialExpired is returned for operations that require an active
	// trial window.
	ErrTrialExpired = errors.New("trial has expired")

	// ErrEditorLinkUnavailable marks the editor SSO link as a soft failure:
	// the funnel continues without it and nothing retries it.
	ErrEditorLinkUnavailable = errors.New("editor link is currently unavailable")

	// ErrInvalidSignature is returned for billing callbacks whose HMAC
	// signature does not verify.
	ErrInvalidSignature = errors.New("billing callback signature is invalid")
)
