package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/steeplelabs/steeple/internal/pkg/env"
)

const defaultPostmarkAPIBaseURL = "https://api.postmarkapp.com"

// PostmarkClient sends transactional email. Postmark is called as a black
// box: one endpoint, static server token header.
type PostmarkClient struct {
	ServerToken string
	FromAddress string
	APIBaseURL  string

	dispatcher *Dispatcher
}

func NewPostmarkClientFromEnv(d *Dispatcher) *PostmarkClient {
	return &PostmarkClient{
		ServerToken: strings.TrimSpace(env.GetEnv("POSTMARK_SERVER_TOKEN", "")),
		FromAddress: strings.TrimSpace(env.GetEnv("POSTMARK_FROM_ADDRESS", "")),
		APIBaseURL:  strings.TrimRight(strings.TrimSpace(env.GetEnv("POSTMARK_API_BASE_URL", defaultPostmarkAPIBaseURL)), "/"),
		dispatcher:  d,
	}
}

// SendEmail delivers one HTML email.
func (c *PostmarkClient) SendEmail(ctx context.Context, to, subject, htmlBody string) error {
	if c.ServerToken == "" {
		return errors.New("POSTMARK_SERVER_TOKEN is not configured")
	}
	if strings.TrimSpace(to) == "" {
		return errors.New("recipient is required")
	}

	payload, err := json.Marshal(map[string]string{
		"From":     c.FromAddress,
		"To":       strings.TrimSpace(to),
		"Subject":  subject,
		"HtmlBody": htmlBody,
	})
	if err != nil {
		return err
	}

	body, err := c.dispatcher.Do(ctx, Postmark, nil, func(_ string) (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.APIBaseURL+"/email", strings.NewReader(string(payload)))
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Postmark-Server-Token", c.ServerToken)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}

	var out struct {
		ErrorCode int    `json:"ErrorCode"`
		Message   string `json:"Message"`
	}
	if err := DecodeJSON(Postmark, body, &out); err != nil {
		return err
	}
	if out.ErrorCode != 0 {
		return &CallError{Provider: Postmark, Kind: KindStatus, StatusCode: http.StatusOK, Body: string(body),
			Err: errors.New("postmark error: " + out.Message)}
	}
	return nil
}
