package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/steeplelabs/steeple/internal/pkg/env"
)

const defaultMailAdminAPIBaseURL = "https://mail.example.com/admin/api/v1"

// MailAdminClient manages mailboxes on the mail server. Auth is static
// Basic credentials; the header value is precomputed once at construction.
type MailAdminClient struct {
	APIBaseURL string

	authHeader string
	dispatcher *Dispatcher
}

func NewMailAdminClientFromEnv(d *Dispatcher) *MailAdminClient {
	user := strings.TrimSpace(env.GetEnv("MAILADMIN_USERNAME", ""))
	pass := env.GetEnv("MAILADMIN_PASSWORD", "")

	header := ""
	if user != "" && pass != "" {
		header = "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
	}
	return &MailAdminClient{
		APIBaseURL: strings.TrimRight(strings.TrimSpace(env.GetEnv("MAILADMIN_API_BASE_URL", defaultMailAdminAPIBaseURL)), "/"),
		authHeader: header,
		dispatcher: d,
	}
}

// CreateMailbox provisions a mailbox for a published church site.
func (c *MailAdminClient) CreateMailbox(ctx context.Context, domain, localPart, password string) error {
	if c.authHeader == "" {
		return errors.New("MAILADMIN_USERNAME/MAILADMIN_PASSWORD are not configured")
	}
	if strings.TrimSpace(domain) == "" || strings.TrimSpace(localPart) == "" {
		return errors.New("domain and local part are required")
	}

	payload, err := json.Marshal(map[string]string{
		"domain":     strings.TrimSpace(domain),
		"local_part": strings.TrimSpace(localPart),
		"password":   password,
	})
	if err != nil {
		return err
	}

	_, err = c.dispatcher.Do(ctx, MailAdmin, nil, func(_ string) (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.APIBaseURL+"/mailboxes", strings.NewReader(string(payload)))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", c.authHeader)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	return err
}

// DeleteMailbox removes a mailbox, e.g. when a legacy site is migrated away.
func (c *MailAdminClient) DeleteMailbox(ctx context.Context, domain, localPart string) error {
	if c.authHeader == "" {
		return errors.New("MAILADMIN_USERNAME/MAILADMIN_PASSWORD are not configured")
	}
	address := strings.TrimSpace(localPart) + "@" + strings.TrimSpace(domain)

	_, err := c.dispatcher.Do(ctx, MailAdmin, nil, func(_ string) (*http.Request, error) {
		req, err := http.NewRequest(http.MethodDelete, c.APIBaseURL+"/mailboxes/"+url.PathEscape(address), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", c.authHeader)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	return err
}
