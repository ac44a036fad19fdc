package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/steeplelabs/steeple/internal/pkg/env"
)

const (
	defaultSiteBuilderAPIBaseURL = "https://api.sitebuilder.example.com/v2"
	defaultSiteBuilderTokenURL   = "https://api.sitebuilder.example.com/v2/auth/token"

	// The builder issues tokens with a ~14 minute lifetime; used when the
	// token response omits expires_in.
	siteBuilderTokenLifetime = 840
)

// SiteBuilderClient talks to the website-builder platform. It authenticates
// with admin credentials for short-lived bearer tokens and implements
// Authenticator so the dispatcher's cache can refresh them transparently.
type SiteBuilderClient struct {
	Username string
	Password string

	TokenURL   string
	APIBaseURL string

	HTTPClient *http.Client

	dispatcher *Dispatcher
}

// SiteBuilderSite is the domain-shaped view of a builder site.
type SiteBuilderSite struct {
	SiteName   string
	TemplateID string
	PreviewURL string
	SiteURL    string
	Published  bool
}

func NewSiteBuilderClientFromEnv(d *Dispatcher) *SiteBuilderClient {
	return &SiteBuilderClient{
		Username:   strings.TrimSpace(env.GetEnv("SITEBUILDER_USERNAME", "")),
		Password:   env.GetEnv("SITEBUILDER_PASSWORD", ""),
		TokenURL:   strings.TrimSpace(env.GetEnv("SITEBUILDER_TOKEN_URL", defaultSiteBuilderTokenURL)),
		APIBaseURL: strings.TrimRight(strings.TrimSpace(env.GetEnv("SITEBUILDER_API_BASE_URL", defaultSiteBuilderAPIBaseURL)), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		dispatcher: d,
	}
}

// Authenticate performs a full password login against the token endpoint.
func (c *SiteBuilderClient) Authenticate(ctx context.Context) (*Token, error) {
	if c.Username == "" || c.Password == "" {
		return nil, errors.New("SITEBUILDER_USERNAME/SITEBUILDER_PASSWORD are not configured")
	}
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.Username)
	form.Set("password", c.Password)
	return c.tokenRequest(ctx, form)
}

// Refresh exchanges a refresh token for a new token pair.
func (c *SiteBuilderClient) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, errors.New("refresh token is required")
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.tokenRequest(ctx, form)
}

// tokenRequest goes straight through the HTTP client rather than the
// dispatcher: the dispatcher would call back into the auth cache.
func (c *SiteBuilderClient) tokenRequest(ctx context.Context, form url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sitebuilder token request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out Token
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return nil, errors.New("sitebuilder token response returned empty access_token")
	}
	if out.ExpiresIn <= 0 {
		out.ExpiresIn = siteBuilderTokenLifetime
	}
	return &out, nil
}

// CreateSite provisions a new site from a template and returns its preview
// URL. "Site already exists" is a business failure the builder reports with
// a 409; it surfaces as a CallError and is never retried here.
func (c *SiteBuilderClient) CreateSite(ctx context.Context, siteName, templateID string) (*SiteBuilderSite, error) {
	name := strings.TrimSpace(siteName)
	if name == "" {
		return nil, errors.New("site name is required")
	}

	payload, err := json.Marshal(map[string]string{
		"site_name":   name,
		"template_id": strings.TrimSpace(templateID),
	})
	if err != nil {
		return nil, err
	}

	body, err := c.dispatcher.Do(ctx, SiteBuilder, c, func(token string) (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.APIBaseURL+"/sites", strings.NewReader(string(payload)))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	return c.decodeSite(body)
}

// GetSite fetches the builder's current view of a site.
func (c *SiteBuilderClient) GetSite(ctx context.Context, siteName string) (*SiteBuilderSite, error) {
	name := strings.TrimSpace(siteName)
	if name == "" {
		return nil, errors.New("site name is required")
	}
	body, err := c.dispatcher.Do(ctx, SiteBuilder, c, func(token string) (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, c.APIBaseURL+"/sites/"+url.PathEscape(name), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	return c.decodeSite(body)
}

// SSOLink requests a single-sign-on editor link scoped to the site. The link
// is short-lived; callers treat failures as soft and continue without it.
func (c *SiteBuilderClient) SSOLink(ctx context.Context, siteName string) (string, error) {
	name := strings.TrimSpace(siteName)
	if name == "" {
		return "", errors.New("site name is required")
	}
	body, err := c.dispatcher.Do(ctx, SiteBuilder, c, func(token string) (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.APIBaseURL+"/sites/"+url.PathEscape(name)+"/sso", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return "", err
	}

	var out struct {
		EditorURL string `json:"editor_url"`
	}
	if err := DecodeJSON(SiteBuilder, body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.EditorURL) == "" {
		return "", &CallError{Provider: SiteBuilder, Kind: KindParse, Body: string(body), Err: errors.New("missing editor_url")}
	}
	return out.EditorURL, nil
}

// Publish flips the site live on the builder and returns its public URL.
func (c *SiteBuilderClient) Publish(ctx context.Context, siteName string) (string, error) {
	name := strings.TrimSpace(siteName)
	if name == "" {
		return "", errors.New("site name is required")
	}
	body, err := c.dispatcher.Do(ctx, SiteBuilder, c, func(token string) (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.APIBaseURL+"/sites/"+url.PathEscape(name)+"/publish", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return "", err
	}

	var out struct {
		SiteURL string `json:"site_url"`
	}
	if err := DecodeJSON(SiteBuilder, body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.SiteURL) == "" {
		return "", &CallError{Provider: SiteBuilder, Kind: KindParse, Body: string(body), Err: errors.New("missing site_url")}
	}
	return out.SiteURL, nil
}

func (c *SiteBuilderClient) decodeSite(body []byte) (*SiteBuilderSite, error) {
	var raw struct {
		SiteName   string `json:"site_name"`
		TemplateID string `json:"template_id"`
		PreviewURL string `json:"preview_url"`
		SiteURL    string `json:"site_url"`
		Published  bool   `json:"published"`
	}
	if err := DecodeJSON(SiteBuilder, body, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.SiteName) == "" {
		return nil, &CallError{Provider: SiteBuilder, Kind: KindParse, Body: string(body), Err: errors.New("missing site_name")}
	}
	return &SiteBuilderSite{
		SiteName:   strings.TrimSpace(raw.SiteName),
		TemplateID: strings.TrimSpace(raw.TemplateID),
		PreviewURL: strings.TrimSpace(raw.PreviewURL),
		SiteURL:    strings.TrimSpace(raw.SiteURL),
		Published:  raw.Published,
	}, nil
}
