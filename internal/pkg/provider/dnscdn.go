package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/steeplelabs/steeple/internal/pkg/env"
)

const defaultDNSAPIBaseURL = "https://api.dnscdn.example.com/v4"

// DNSClient manages DNS zones and records at the CDN provider. Auth is a
// static API token sent as a bearer header; no token lifecycle applies.
type DNSClient struct {
	APIToken   string
	APIBaseURL string

	dispatcher *Dispatcher
}

// DNSZone is the domain-shaped view of a zone.
type DNSZone struct {
	ZoneID string
	Domain string
	Status string
}

func NewDNSClientFromEnv(d *Dispatcher) *DNSClient {
	return &DNSClient{
		APIToken:   strings.TrimSpace(env.GetEnv("DNS_API_TOKEN", "")),
		APIBaseURL: strings.TrimRight(strings.TrimSpace(env.GetEnv("DNS_API_BASE_URL", defaultDNSAPIBaseURL)), "/"),
		dispatcher: d,
	}
}

func (c *DNSClient) do(ctx context.Context, method, path string, payload []byte, out any) error {
	if c.APIToken == "" {
		return errors.New("DNS_API_TOKEN is not configured")
	}
	body, err := c.dispatcher.Do(ctx, DNS, nil, func(_ string) (*http.Request, error) {
		var reader io.Reader
		if payload != nil {
			reader = strings.NewReader(string(payload))
		}
		req, err := http.NewRequest(method, c.APIBaseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.APIToken)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}

	var envelope struct {
		Success bool            `json:"success"`
		Errors  json.RawMessage `json:"errors"`
		Result  json.RawMessage `json:"result"`
	}
	if err := DecodeJSON(DNS, body, &envelope); err != nil {
		return err
	}
	if !envelope.Success {
		return &CallError{Provider: DNS, Kind: KindStatus, StatusCode: http.StatusOK, Body: string(body),
			Err: errors.New("dns api reported failure")}
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return &CallError{Provider: DNS, Kind: KindParse, Body: string(body), Err: err}
		}
	}
	return nil
}

// Zone looks up the zone for a domain.
func (c *DNSClient) Zone(ctx context.Context, domain string) (*DNSZone, error) {
	d := strings.TrimSpace(domain)
	if d == "" {
		return nil, errors.New("domain is required")
	}

	var out []struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/zones?name="+url.QueryEscape(d), nil, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, &CallError{Provider: DNS, Kind: KindStatus, StatusCode: http.StatusNotFound,
			Err: errors.New("zone not found: " + d)}
	}
	return &DNSZone{ZoneID: out[0].ID, Domain: out[0].Name, Status: out[0].Status}, nil
}

// CreateRecord adds a DNS record to a zone.
func (c *DNSClient) CreateRecord(ctx context.Context, zoneID, recordType, name, content string) error {
	if strings.TrimSpace(zoneID) == "" {
		return errors.New("zone id is required")
	}
	payload, err := json.Marshal(map[string]any{
		"type":    strings.ToUpper(strings.TrimSpace(recordType)),
		"name":    strings.TrimSpace(name),
		"content": strings.TrimSpace(content),
		"proxied": true,
	})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/zones/"+url.PathEscape(zoneID)+"/dns_records", payload, nil)
}
