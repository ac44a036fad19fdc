package provider

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	defaultCallTimeout = 15 * time.Second
	maxResponseBytes   = 2 << 20
)

// Dispatcher issues provider calls with a bounded timeout and uniform error
// mapping. For bearer-auth providers it acquires a token from the cache, and
// on a 401/403 it invalidates that token and retries the call exactly once
// with a fresh one. Any other failure is surfaced as-is; business-level
// retries are never the dispatcher's job.
type Dispatcher struct {
	httpClient *http.Client
	cache      *AuthCache
}

func NewDispatcher(cache *AuthCache) *Dispatcher {
	return &Dispatcher{
		httpClient: &http.Client{Timeout: defaultCallTimeout},
		cache:      cache,
	}
}

// Do runs one provider call. The build callback constructs a fresh request
// for each attempt so retried calls never reuse a consumed body. For static
// auth providers pass a nil Authenticator; build then receives an empty
// token and is expected to set its own auth headers.
func (d *Dispatcher) Do(ctx context.Context, name Name, auth Authenticator, build func(token string) (*http.Request, error)) ([]byte, error) {
	token := ""
	if auth != nil {
		var err error
		token, err = d.cache.GetToken(ctx, name, auth)
		if err != nil {
			return nil, err
		}
	}

	body, status, err := d.attempt(ctx, name, token, build)
	if err == nil {
		return body, nil
	}

	if auth != nil && (status == http.StatusUnauthorized || status == http.StatusForbidden) {
		log.Printf("provider %s rejected token (status=%d), retrying once with fresh credentials", name, status)
		d.cache.Invalidate(name)
		token, tokenErr := d.cache.GetToken(ctx, name, auth)
		if tokenErr != nil {
			return nil, tokenErr
		}
		body, _, retryErr := d.attempt(ctx, name, token, build)
		if retryErr != nil {
			return nil, retryErr
		}
		return body, nil
	}

	return nil, err
}

func (d *Dispatcher) attempt(ctx context.Context, name Name, token string, build func(token string) (*http.Request, error)) ([]byte, int, error) {
	req, err := build(token)
	if err != nil {
		return nil, 0, &CallError{Provider: name, Kind: KindTransport, Err: err}
	}
	req = req.WithContext(ctx)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, 0, &CallError{Provider: name, Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, &CallError{
			Provider:   name,
			Kind:       KindStatus,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}
	return body, resp.StatusCode, nil
}

// DecodeJSON unmarshals a provider response, mapping malformed bodies to a
// parse-kind CallError instead of letting raw json errors escape.
func DecodeJSON(name Name, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return &CallError{Provider: name, Kind: KindParse, Body: string(body), Err: err}
	}
	return nil
}
