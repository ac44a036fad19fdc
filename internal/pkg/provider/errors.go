package provider

import "fmt"

// CallErrorKind classifies how a provider call failed.
type CallErrorKind string

const (
	// KindStatus means the provider answered with a non-2xx status.
	KindStatus CallErrorKind = "status"
	// KindTransport means the request never completed (timeout, DNS, reset).
	KindTransport CallErrorKind = "transport"
	// KindParse means the provider answered 2xx but the body was not the
	// expected shape.
	KindParse CallErrorKind = "parse"
)

// AuthError is a terminal credential failure: both refresh and full
// re-authentication failed for a provider. Callers must not retry.
type AuthError struct {
	Provider Name
	Detail   string
	Err      error
}

func (e *AuthError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s auth failed: %s", e.Provider, e.Detail)
	}
	return fmt.Sprintf("%s auth failed: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// CallError is a failed provider call. Body keeps the raw provider payload
// so third-party failures stay debuggable from our logs alone.
type CallError struct {
	Provider   Name
	Kind       CallErrorKind
	StatusCode int
	Body       string
	Err        error
}

func (e *CallError) Error() string {
	switch e.Kind {
	case KindTransport:
		return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
	case KindParse:
		return fmt.Sprintf("%s returned unexpected body: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s request failed: status=%d body=%s", e.Provider, e.StatusCode, e.Body)
	}
}

func (e *CallError) Unwrap() error { return e.Err }
