package funnel

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/steeplelabs/steeple/app/models"
	"github.com/steeplelabs/steeple/internal/pkg/provider"
)

// fakeRepo is an in-memory Repository good enough for service-level tests.
type fakeRepo struct {
	clients map[string]*models.Client
	sites   map[string]*models.Site
	trials  map[string]*models.Trial
	events  map[string]*models.PaymentEvent
	nextID  uint
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		clients: make(map[string]*models.Client),
		sites:   make(map[string]*models.Site),
		trials:  make(map[string]*models.Trial),
		events:  make(map[string]*models.PaymentEvent),
	}
}

func (r *fakeRepo) id() uint {
	r.nextID++
	return r.nextID
}

func trialKey(email, siteName string) string {
	return models.NormalizeEmail(email) + "|" + siteName
}

func (r *fakeRepo) GetOrCreateClient(client *models.Client) (*models.Client, error) {
	email := models.NormalizeEmail(client.Email)
	if existing, ok := r.clients[email]; ok {
		return existing, nil
	}
	client.ID = r.id()
	client.Email = email
	r.clients[email] = client
	return client, nil
}

func (r *fakeRepo) GetClientByEmail(email string) (*models.Client, error) {
	if c, ok := r.clients[models.NormalizeEmail(email)]; ok {
		return c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) UpdateClientFields(email string, fields map[string]any) (*models.Client, error) {
	c, err := r.GetClientByEmail(email)
	if err != nil {
		return nil, err
	}
	if v, ok := fields["billing_client_id"]; ok {
		c.BillingClientID = v.(string)
	}
	if v, ok := fields["account_created"]; ok {
		c.AccountCreated = v.(bool)
	}
	return c, nil
}

func (r *fakeRepo) GetOrCreateSite(site *models.Site) (*models.Site, error) {
	if existing, ok := r.sites[site.SiteName]; ok {
		return existing, nil
	}
	site.ID = r.id()
	r.sites[site.SiteName] = site
	return site, nil
}

func (r *fakeRepo) GetSiteByName(siteName string) (*models.Site, error) {
	if s, ok := r.sites[siteName]; ok {
		return s, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) UpdateSiteFields(siteName string, fields map[string]any) (*models.Site, error) {
	s, err := r.GetSiteByName(siteName)
	if err != nil {
		return nil, err
	}
	if v, ok := fields["published"]; ok {
		s.Published = v.(bool)
	}
	if v, ok := fields["published_at"]; ok {
		s.PublishedAt = v.(*time.Time)
	}
	if v, ok := fields["live_url"]; ok {
		s.LiveURL = v.(string)
	}
	return s, nil
}

func (r *fakeRepo) GetOrCreateTrial(trial *models.Trial) (*models.Trial, error) {
	key := trialKey(trial.Email, trial.SiteName)
	if existing, ok := r.trials[key]; ok {
		return existing, nil
	}
	trial.ID = r.id()
	trial.Email = models.NormalizeEmail(trial.Email)
	r.trials[key] = trial
	return trial, nil
}

func (r *fakeRepo) GetTrial(email, siteName string) (*models.Trial, error) {
	if t, ok := r.trials[trialKey(email, siteName)]; ok {
		return t, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) GetTrialByInvoiceID(invoiceID string) (*models.Trial, error) {
	for _, t := range r.trials {
		if t.InvoiceID != "" && t.InvoiceID == invoiceID {
			return t, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) ListTrialsByEmail(email string) ([]models.Trial, error) {
	var out []models.Trial
	normalized := models.NormalizeEmail(email)
	for _, t := range r.trials {
		if t.Email == normalized {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakeRepo) UpdateTrialFields(email, siteName string, fields map[string]any) (*models.Trial, error) {
	t, err := r.GetTrial(email, siteName)
	if err != nil {
		return nil, err
	}
	if v, ok := fields["site_id"]; ok {
		switch id := v.(type) {
		case uint:
			t.SiteID = &id
		case *uint:
			t.SiteID = id
		}
	}
	if v, ok := fields["invoice_id"]; ok {
		t.InvoiceID = v.(string)
	}
	if v, ok := fields["has_paid"]; ok {
		t.HasPaid = v.(bool)
	}
	if v, ok := fields["upgraded_at"]; ok {
		t.UpgradedAt = v.(*time.Time)
	}
	return t, nil
}

func (r *fakeRepo) GrantPublishAccess(email, siteName string) (*models.Trial, error) {
	t, err := r.GetTrial(email, siteName)
	if err != nil {
		return nil, err
	}
	if !t.HasPaid {
		return nil, ErrNotPaid
	}
	t.HasPublishAccess = true
	return t, nil
}

func (r *fakeRepo) CreatePaymentEventIfNotExists(event *models.PaymentEvent) (bool, *models.PaymentEvent, error) {
	key := event.Provider + "|" + event.ProviderEventID
	if existing, ok := r.events[key]; ok {
		return false, existing, nil
	}
	event.ID = r.id()
	r.events[key] = event
	return true, event, nil
}

func (r *fakeRepo) MarkPaymentEventProcessed(id uint, processingError string) error {
	for _, e := range r.events {
		if e.ID == id {
			now := time.Now()
			e.ProcessedAt = &now
			e.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type fakeSites struct {
	createCalls  int
	publishCalls int
	ssoErr       error
}

func (f *fakeSites) CreateSite(ctx context.Context, siteName, templateID string) (*provider.SiteBuilderSite, error) {
	f.createCalls++
	return &provider.SiteBuilderSite{
		SiteName:   siteName,
		TemplateID: templateID,
		PreviewURL: "https://preview.example.com/" + siteName,
	}, nil
}

func (f *fakeSites) SSOLink(ctx context.Context, siteName string) (string, error) {
	if f.ssoErr != nil {
		return "", f.ssoErr
	}
	return "https://builder.example.com/sso/" + siteName, nil
}

func (f *fakeSites) Publish(ctx context.Context, siteName string) (string, error) {
	f.publishCalls++
	return "https://" + siteName + ".steeplesites.com", nil
}

type fakeBilling struct {
	clientCalls  int
	invoiceCalls int
}

func (f *fakeBilling) CreateClient(ctx context.Context, email, firstName, lastName string) (string, error) {
	f.clientCalls++
	return fmt.Sprintf("bc-%d", f.clientCalls), nil
}

func (f *fakeBilling) CreateInvoice(ctx context.Context, billingClientID, description, amount string) (string, error) {
	f.invoiceCalls++
	return fmt.Sprintf("inv-%d", f.invoiceCalls), nil
}

func (f *fakeBilling) GetInvoice(ctx context.Context, invoiceID string) (*provider.BillingInvoice, error) {
	return &provider.BillingInvoice{InvoiceID: invoiceID, Status: "Unpaid"}, nil
}

type fakeEmail struct {
	sent []string
}

func (f *fakeEmail) SendEmail(ctx context.Context, to, subject, htmlBody string) error {
	f.sent = append(f.sent, to+": "+subject)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeRepo, *fakeSites, *fakeBilling) {
	t.Helper()
	repo := newFakeRepo()
	sites := &fakeSites{}
	billing := &fakeBilling{}
	svc := NewService(repo, sites, billing)
	svc.callbackSecret = "callback-secret"
	return svc, repo, sites, billing
}

func TestStartTrialIsIdempotent(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	current := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return current }

	first, err := svc.StartTrial(context.Background(), "Pastor@StMarks.org", "stmarks", "St. Marks")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Email != "pastor@stmarks.org" {
		t.Fatalf("expected normalized email, got %q", first.Email)
	}
	if !first.TrialExpiry.Equal(current.Add(TrialDuration)) {
		t.Fatalf("unexpected expiry %v", first.TrialExpiry)
	}

	// A week later the same church comes back; the clock must not reset.
	current = current.Add(7 * 24 * time.Hour)
	second, err := svc.StartTrial(context.Background(), "PASTOR@stmarks.org", "stmarks", "St. Marks")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the same trial, got ids %d and %d", first.ID, second.ID)
	}
	if !second.TrialStart.Equal(first.TrialStart) {
		t.Fatalf("repeat start must not reset trial_start: %v vs %v", second.TrialStart, first.TrialStart)
	}
}

func TestStartTrialSendsWelcomeEmail(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	email := &fakeEmail{}
	svc.WithEmail(email)

	if _, err := svc.StartTrial(context.Background(), "pastor@stmarks.org", "stmarks", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(email.sent) != 1 {
		t.Fatalf("expected one welcome email, got %d", len(email.sent))
	}
}

func TestCreateSitePreviewLinksSiteToTrial(t *testing.T) {
	svc, repo, sites, _ := newTestService(t)

	if _, err := svc.StartTrial(context.Background(), "pastor@stmarks.org", "stmarks", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	site, err := svc.CreateSitePreview(context.Background(), "pastor@stmarks.org", "stmarks", "classic")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if site.PreviewURL == "" {
		t.Fatalf("expected preview URL")
	}
	if sites.createCalls != 1 {
		t.Fatalf("expected one builder call, got %d", sites.createCalls)
	}

	trial, _ := repo.GetTrial("pastor@stmarks.org", "stmarks")
	if trial.SiteID == nil || *trial.SiteID != site.ID {
		t.Fatalf("expected trial linked to site %d, got %v", site.ID, trial.SiteID)
	}
}

func TestCreateUpgradeInvoiceIsIdempotent(t *testing.T) {
	svc, repo, _, billing := newTestService(t)

	if _, err := svc.StartTrial(context.Background(), "pastor@stmarks.org", "stmarks", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, err := svc.CreateUpgradeInvoice(context.Background(), "pastor@stmarks.org", "stmarks")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.InvoiceID == "" {
		t.Fatalf("expected invoice id on trial")
	}
	if billing.clientCalls != 1 || billing.invoiceCalls != 1 {
		t.Fatalf("expected one client + one invoice call, got %d/%d", billing.clientCalls, billing.invoiceCalls)
	}

	client, _ := repo.GetClientByEmail("pastor@stmarks.org")
	if client.BillingClientID == "" || !client.AccountCreated {
		t.Fatalf("expected billing account recorded on client: %+v", client)
	}

	second, err := svc.CreateUpgradeInvoice(context.Background(), "pastor@stmarks.org", "stmarks")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.InvoiceID != first.InvoiceID {
		t.Fatalf("expected the same invoice, got %q and %q", first.InvoiceID, second.InvoiceID)
	}
	if billing.invoiceCalls != 1 {
		t.Fatalf("repeat call must not raise a second invoice, got %d", billing.invoiceCalls)
	}
}

func TestConfirmPaymentDoesNotGrantPublishAccess(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	if _, err := svc.StartTrial(context.Background(), "pastor@stmarks.org", "stmarks", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.CreateUpgradeInvoice(context.Background(), "pastor@stmarks.org", "stmarks"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	trial, err := svc.ConfirmPayment(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !trial.HasPaid {
		t.Fatalf("expected trial marked paid")
	}
	if trial.HasPublishAccess {
		t.Fatalf("payment must not grant publish access")
	}
	if trial.UpgradedAt == nil {
		t.Fatalf("expected upgraded_at set")
	}
}

func TestGrantPublishAccessRequiresPayment(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	if _, err := svc.StartTrial(context.Background(), "pastor@stmarks.org", "stmarks", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.GrantPublishAccess(context.Background(), "pastor@stmarks.org", "stmarks"); !errors.Is(err, ErrNotPaid) {
		t.Fatalf("expected ErrNotPaid for unpaid trial, got %v", err)
	}

	if _, err := svc.CreateUpgradeInvoice(context.Background(), "pastor@stmarks.org", "stmarks"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.ConfirmPayment(context.Background(), "inv-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	trial, err := svc.GrantPublishAccess(context.Background(), "pastor@stmarks.org", "stmarks")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !trial.HasPublishAccess {
		t.Fatalf("expected publish access granted")
	}
}

func TestPublishSiteGating(t *testing.T) {
	svc, _, sites, _ := newTestService(t)

	if _, err := svc.StartTrial(context.Background(), "pastor@stmarks.org", "stmarks", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.CreateSitePreview(context.Background(), "pastor@stmarks.org", "stmarks", "classic"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.CreateUpgradeInvoice(context.Background(), "pastor@stmarks.org", "stmarks"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Unpaid: publish must be rejected before any builder call.
	if _, err := svc.PublishSite(context.Background(), "stmarks", "inv-1"); !errors.Is(err, ErrNotPaid) {
		t.Fatalf("expected ErrNotPaid, got %v", err)
	}
	if sites.publishCalls != 0 {
		t.Fatalf("builder publish must not run for unpaid trials")
	}

	if _, err := svc.ConfirmPayment(context.Background(), "inv-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Paid but not granted yet.
	if _, err := svc.PublishSite(context.Background(), "stmarks", "inv-1"); !errors.Is(err, ErrNotPaid) {
		t.Fatalf("expected ErrNotPaid without publish access, got %v", err)
	}

	if _, err := svc.GrantPublishAccess(context.Background(), "pastor@stmarks.org", "stmarks"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Site name must match the trial behind the invoice.
	if _, err := svc.PublishSite(context.Background(), "other-site", "inv-1"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected not-found for mismatched site name, got %v", err)
	}

	site, err := svc.PublishSite(context.Background(), "stmarks", "inv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !site.Published || site.LiveURL != "https://stmarks.steeplesites.com" {
		t.Fatalf("unexpected site after publish: %+v", site)
	}
	if site.PublishedAt == nil {
		t.Fatalf("expected published_at set")
	}
	if sites.publishCalls != 1 {
		t.Fatalf("expected one builder publish call, got %d", sites.publishCalls)
	}
}

func TestRequestEditorLink(t *testing.T) {
	svc, _, sites, _ := newTestService(t)

	current := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return current }

	if _, err := svc.StartTrial(context.Background(), "pastor@stmarks.org", "stmarks", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	link, err := svc.RequestEditorLink(context.Background(), "pastor@stmarks.org", "stmarks")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link == "" {
		t.Fatalf("expected editor link")
	}

	// Provider failure is a soft failure with a sentinel wrap.
	sites.ssoErr = errors.New("builder down")
	if _, err := svc.RequestEditorLink(context.Background(), "pastor@stmarks.org", "stmarks"); !errors.Is(err, ErrEditorLinkUnavailable) {
		t.Fatalf("expected ErrEditorLinkUnavailable, got %v", err)
	}

	// Lapsed trial gets no link at all.
	sites.ssoErr = nil
	current = current.Add(TrialDuration + time.Hour)
	if _, err := svc.RequestEditorLink(context.Background(), "pastor@stmarks.org", "stmarks"); !errors.Is(err, ErrTrialExpired) {
		t.Fatalf("expected ErrTrialExpired, got %v", err)
	}
}

func signCallback(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHandlePaymentCallbackConfirmsPayment(t *testing.T) {
	svc, repo, _, _ := newTestService(t)

	if _, err := svc.StartTrial(context.Background(), "pastor@stmarks.org", "stmarks", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.CreateUpgradeInvoice(context.Background(), "pastor@stmarks.org", "stmarks"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := []byte(`{"event_id":"evt_1","event_type":"invoice.paid","invoice_id":"inv-1","status":"paid"}`)
	trial, err := svc.HandlePaymentCallback(context.Background(), payload, signCallback(payload, "callback-secret"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trial == nil || !trial.HasPaid {
		t.Fatalf("expected paid trial, got %+v", trial)
	}

	event := repo.events[string(provider.Billing)+"|evt_1"]
	if event == nil {
		t.Fatalf("expected payment event recorded")
	}
	if !event.SignatureValid || event.ProcessedAt == nil || event.ProcessingError != "" {
		t.Fatalf("unexpected event state: %+v", event)
	}

	// Redelivery of the same event is absorbed.
	again, err := svc.HandlePaymentCallback(context.Background(), payload, signCallback(payload, "callback-secret"))
	if err != nil {
		t.Fatalf("unexpected error on redelivery: %v", err)
	}
	if again != nil {
		t.Fatalf("expected duplicate event to be skipped")
	}
}

func TestHandlePaymentCallbackRejectsBadSignature(t *testing.T) {
	svc, repo, _, _ := newTestService(t)

	payload := []byte(`{"event_id":"evt_bad","event_type":"invoice.paid","invoice_id":"inv-1"}`)
	_, err := svc.HandlePaymentCallback(context.Background(), payload, "deadbeef")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	// The event is still recorded for the audit trail, marked invalid.
	event := repo.events[string(provider.Billing)+"|evt_bad"]
	if event == nil {
		t.Fatalf("expected event recorded despite bad signature")
	}
	if event.SignatureValid {
		t.Fatalf("expected signature_valid=false")
	}
}

func TestHandlePaymentCallbackIgnoresOtherEventTypes(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	if _, err := svc.StartTrial(context.Background(), "pastor@stmarks.org", "stmarks", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.CreateUpgradeInvoice(context.Background(), "pastor@stmarks.org", "stmarks"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := []byte(`{"event_id":"evt_2","event_type":"invoice.created","invoice_id":"inv-1"}`)
	trial, err := svc.HandlePaymentCallback(context.Background(), payload, signCallback(payload, "callback-secret"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trial != nil {
		t.Fatalf("non-payment events must not touch the trial")
	}

	stored, _ := svc.GetTrial(context.Background(), "pastor@stmarks.org", "stmarks")
	if stored.HasPaid {
		t.Fatalf("invoice.created must not mark the trial paid")
	}
}

func TestHandlePaymentCallbackHashFallbackDedupes(t *testing.T) {
	svc, repo, _, _ := newTestService(t)

	if _, err := svc.StartTrial(context.Background(), "pastor@stmarks.org", "stmarks", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.CreateUpgradeInvoice(context.Background(), "pastor@stmarks.org", "stmarks"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// No event_id in the payload; the payload hash becomes the identity.
	payload := []byte(`{"event_type":"invoice.paid","invoice_id":"inv-1"}`)
	sig := signCallback(payload, "callback-secret")

	if _, err := svc.HandlePaymentCallback(context.Background(), payload, sig); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again, err := svc.HandlePaymentCallback(context.Background(), payload, sig); err != nil || again != nil {
		t.Fatalf("expected identical payload to dedupe, got trial=%v err=%v", again, err)
	}
	if len(repo.events) != 1 {
		t.Fatalf("expected one recorded event, got %d", len(repo.events))
	}
}

func TestHandlePaymentCallbackMalformedPayload(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	if _, err := svc.HandlePaymentCallback(context.Background(), []byte("not json"), "sig"); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}
