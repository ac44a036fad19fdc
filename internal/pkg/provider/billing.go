package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/steeplelabs/steeple/internal/pkg/env"
)

const defaultBillingAPIURL = "https://billing.example.com/includes/api.php"

// BillingClient talks to the billing/provisioning system. Every call is a
// form-encoded POST carrying the shared identifier+secret pair plus an
// action name; there is no token handshake to cache.
type BillingClient struct {
	Identifier string
	Secret     string
	APIURL     string

	dispatcher *Dispatcher
}

// BillingInvoice is the domain-shaped view of an invoice.
type BillingInvoice struct {
	InvoiceID string
	Status    string
	Total     string
}

// IsPaid reports whether the billing system considers the invoice settled.
func (i *BillingInvoice) IsPaid() bool {
	return strings.EqualFold(strings.TrimSpace(i.Status), "paid")
}

func NewBillingClientFromEnv(d *Dispatcher) *BillingClient {
	return &BillingClient{
		Identifier: strings.TrimSpace(env.GetEnv("BILLING_API_IDENTIFIER", "")),
		Secret:     strings.TrimSpace(env.GetEnv("BILLING_API_SECRET", "")),
		APIURL:     strings.TrimSpace(env.GetEnv("BILLING_API_URL", defaultBillingAPIURL)),
		dispatcher: d,
	}
}

// callAction posts one API action. The billing system answers 200 even for
// business failures and flags them with result != "success"; those surface
// as errors here and are never retried.
func (c *BillingClient) callAction(ctx context.Context, action string, params url.Values, out any) error {
	if c.Identifier == "" || c.Secret == "" {
		return errors.New("BILLING_API_IDENTIFIER/BILLING_API_SECRET are not configured")
	}

	form := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			form.Add(k, v)
		}
	}
	form.Set("identifier", c.Identifier)
	form.Set("secret", c.Secret)
	form.Set("action", action)
	form.Set("responsetype", "json")
	encoded := form.Encode()

	body, err := c.dispatcher.Do(ctx, Billing, nil, func(_ string) (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.APIURL, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}

	var envelope struct {
		Result  string `json:"result"`
		Message string `json:"message"`
	}
	if err := DecodeJSON(Billing, body, &envelope); err != nil {
		return err
	}
	if !strings.EqualFold(envelope.Result, "success") {
		return &CallError{Provider: Billing, Kind: KindStatus, StatusCode: http.StatusOK, Body: string(body),
			Err: fmt.Errorf("billing action %s failed: %s", action, envelope.Message)}
	}
	if out != nil {
		return DecodeJSON(Billing, body, out)
	}
	return nil
}

// CreateClient registers a client account in the billing system and returns
// its billing-side client id.
func (c *BillingClient) CreateClient(ctx context.Context, email, firstName, lastName string) (string, error) {
	if strings.TrimSpace(email) == "" {
		return "", errors.New("email is required")
	}
	params := url.Values{}
	params.Set("email", strings.TrimSpace(email))
	params.Set("firstname", strings.TrimSpace(firstName))
	params.Set("lastname", strings.TrimSpace(lastName))

	var out struct {
		ClientID string `json:"clientid"`
	}
	if err := c.callAction(ctx, "AddClient", params, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ClientID) == "" {
		return "", &CallError{Provider: Billing, Kind: KindParse, Err: errors.New("AddClient response missing clientid")}
	}
	return out.ClientID, nil
}

// CreateInvoice raises an invoice against a billing client.
func (c *BillingClient) CreateInvoice(ctx context.Context, billingClientID, description, amount string) (string, error) {
	if strings.TrimSpace(billingClientID) == "" {
		return "", errors.New("billing client id is required")
	}
	params := url.Values{}
	params.Set("userid", strings.TrimSpace(billingClientID))
	params.Set("itemdescription1", strings.TrimSpace(description))
	params.Set("itemamount1", strings.TrimSpace(amount))
	params.Set("sendinvoice", "1")

	var out struct {
		InvoiceID string `json:"invoiceid"`
	}
	if err := c.callAction(ctx, "CreateInvoice", params, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.InvoiceID) == "" {
		return "", &CallError{Provider: Billing, Kind: KindParse, Err: errors.New("CreateInvoice response missing invoiceid")}
	}
	return out.InvoiceID, nil
}

// GetInvoice fetches an invoice's current status.
func (c *BillingClient) GetInvoice(ctx context.Context, invoiceID string) (*BillingInvoice, error) {
	id := strings.TrimSpace(invoiceID)
	if id == "" {
		return nil, errors.New("invoice id is required")
	}
	params := url.Values{}
	params.Set("invoiceid", id)

	var out struct {
		InvoiceID string `json:"invoiceid"`
		Status    string `json:"status"`
		Total     string `json:"total"`
	}
	if err := c.callAction(ctx, "GetInvoice", params, &out); err != nil {
		return nil, err
	}
	return &BillingInvoice{
		InvoiceID: strings.TrimSpace(out.InvoiceID),
		Status:    strings.TrimSpace(out.Status),
		Total:     strings.TrimSpace(out.Total),
	}, nil
}
