package provider

import (
	"context"
	"log"
	"sync"
	"time"
)

// tokenSafetyMargin must cover one in-flight request so we never hand out a
// token that expires mid-call. Builder tokens live ~14 minutes.
const tokenSafetyMargin = 60 * time.Second

// Authenticator is implemented by provider clients that use short-lived
// bearer tokens. Providers with static Basic/API-key auth do not implement
// it and bypass the cache entirely.
type Authenticator interface {
	// Authenticate performs a full login with the stored admin credentials.
	Authenticate(ctx context.Context) (*Token, error)
	// Refresh exchanges a refresh token for a new token pair.
	Refresh(ctx context.Context, refreshToken string) (*Token, error)
}

type credential struct {
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

type cacheEntry struct {
	mu   sync.Mutex
	cred *credential
}

// AuthCache holds cached bearer tokens per provider and refreshes or
// re-authenticates on demand. It is owned by the application context and
// injected into the dispatcher; nothing is ever persisted, so a restart
// simply re-authenticates.
type AuthCache struct {
	mu      sync.Mutex
	entries map[Name]*cacheEntry

	now func() time.Time
}

func NewAuthCache() *AuthCache {
	return &AuthCache{
		entries: make(map[Name]*cacheEntry),
		now:     time.Now,
	}
}

func (c *AuthCache) entry(name Name) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok {
		e = &cacheEntry{}
		c.entries[name] = e
	}
	return e
}

// GetToken returns a usable access token for the provider. A cached token is
// returned as long as it outlives the safety margin; otherwise the cache
// tries a refresh and falls back to a full re-authentication. The per-entry
// mutex serializes concurrent callers so an expired token triggers exactly
// one refresh instead of a re-auth storm.
func (c *AuthCache) GetToken(ctx context.Context, name Name, auth Authenticator) (string, error) {
	e := c.entry(name)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cred != nil && c.now().Add(tokenSafetyMargin).Before(e.cred.expiresAt) {
		return e.cred.accessToken, nil
	}

	if e.cred != nil && e.cred.refreshToken != "" {
		tok, err := auth.Refresh(ctx, e.cred.refreshToken)
		if err == nil {
			e.cred = c.store(tok, e.cred.refreshToken)
			return e.cred.accessToken, nil
		}
		log.Printf("provider %s token refresh failed, re-authenticating: %v", name, err)
	}

	tok, err := auth.Authenticate(ctx)
	if err != nil {
		e.cred = nil
		return "", &AuthError{Provider: name, Err: err}
	}
	e.cred = c.store(tok, "")
	return e.cred.accessToken, nil
}

// Invalidate drops the cached token for a provider. The dispatcher calls
// this when a bearer provider answers 401/403 before its single retry.
func (c *AuthCache) Invalidate(name Name) {
	e := c.entry(name)
	e.mu.Lock()
	e.cred = nil
	e.mu.Unlock()
}

func (c *AuthCache) store(tok *Token, fallbackRefresh string) *credential {
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = fallbackRefresh
	}
	return &credential{
		accessToken:  tok.AccessToken,
		refreshToken: refresh,
		expiresAt:    c.now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}
}
