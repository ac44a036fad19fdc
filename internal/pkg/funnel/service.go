package funnel

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/steeplelabs/steeple/app/models"
	"github.com/steeplelabs/steeple/internal/pkg/cache"
	"github.com/steeplelabs/steeple/internal/pkg/env"
	"github.com/steeplelabs/steeple/internal/pkg/provider"
)

const invoiceStatusCacheTTL = 30 * time.Second

// SiteBuilderAPI is the slice of the website-builder client the funnel uses.
type SiteBuilderAPI interface {
	CreateSite(ctx context.Context, siteName, templateID string) (*provider.SiteBuilderSite, error)
	SSOLink(ctx context.Context, siteName string) (string, error)
	Publish(ctx context.Context, siteName string) (string, error)
}

// BillingAPI is the slice of the billing client the funnel uses.
type BillingAPI interface {
	CreateClient(ctx context.Context, email, firstName, lastName string) (string, error)
	CreateInvoice(ctx context.Context, billingClientID, description, amount string) (string, error)
	GetInvoice(ctx context.Context, invoiceID string) (*provider.BillingInvoice, error)
}

// EmailSender delivers transactional email; failures are logged, never fatal.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, htmlBody string) error
}

// MailboxAPI provisions mailboxes for published sites.
type MailboxAPI interface {
	CreateMailbox(ctx context.Context, domain, localPart, password string) error
}

// DNSAPI wires a published site's subdomain into the CDN.
type DNSAPI interface {
	Zone(ctx context.Context, domain string) (*provider.DNSZone, error)
	CreateRecord(ctx context.Context, zoneID, recordType, name, content string) error
}

// Snapshotter archives published-site metadata.
type Snapshotter interface {
	SnapshotSite(ctx context.Context, site *models.Site, trial *models.Trial) error
}

// Service drives the trial lifecycle: trial start, payment confirmation,
// publish gating, and the provider calls hanging off each step.
type Service struct {
	repo      Repository
	sites     SiteBuilderAPI
	billing   BillingAPI
	email     EmailSender
	mailboxes MailboxAPI
	dns       DNSAPI
	snapshots Snapshotter

	baseDomain     string
	callbackSecret string

	now func() time.Time
}

// NewService creates a funnel service from injected collaborators. The
// email, mailbox, dns and snapshot dependencies may be nil; the related
// best-effort steps are then skipped.
func NewService(repo Repository, sites SiteBuilderAPI, billing BillingAPI) *Service {
	return &Service{
		repo:           repo,
		sites:          sites,
		billing:        billing,
		baseDomain:     strings.TrimSpace(env.GetEnv("SITES_BASE_DOMAIN", "steeplesites.com")),
		callbackSecret: env.GetEnv("BILLING_CALLBACK_SECRET", ""),
		now:            time.Now,
	}
}

// NewServiceFromDB creates a funnel service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, sites SiteBuilderAPI, billing BillingAPI) *Service {
	return NewService(NewRepository(db), sites, billing)
}

// WithEmail attaches the transactional email sender.
func (s *Service) WithEmail(email EmailSender) *Service {
	s.email = email
	return s
}

// WithProvisioning attaches the mailbox, DNS and snapshot collaborators
// used after payment and publish.
func (s *Service) WithProvisioning(mailboxes MailboxAPI, dns DNSAPI, snapshots Snapshotter) *Service {
	s.mailboxes = mailboxes
	s.dns = dns
	s.snapshots = snapshots
	return s
}

// StartTrial creates the trial window for an (email, site name) pair, or
// returns the existing one unmodified: repeat funnel visits never reset
// the clock. The client row is created on first contact.
func (s *Service) StartTrial(ctx context.Context, email, siteName, churchName string) (*models.Trial, error) {
	_ = ctx
	normalized := models.NormalizeEmail(email)
	name := strings.TrimSpace(siteName)
	if normalized == "" || name == "" {
		return nil, errors.New("email and site name are required")
	}

	client, err := s.repo.GetOrCreateClient(&models.Client{
		Email:      normalized,
		ChurchName: strings.TrimSpace(churchName),
	})
	if err != nil {
		return nil, err
	}

	start := s.now()
	trial, err := s.repo.GetOrCreateTrial(&models.Trial{
		ClientID:    &client.ID,
		Email:       normalized,
		SiteName:    name,
		ChurchName:  strings.TrimSpace(churchName),
		TrialStart:  start,
		TrialExpiry: start.Add(TrialDuration),
	})
	if err != nil {
		return nil, err
	}

	s.sendEmail(normalized, "Your trial website is ready",
		fmt.Sprintf("<p>Your 14-day trial for <strong>%s</strong> has started.</p>", name))
	return trial, nil
}

// GetTrial returns the trial for an (email, site name) pair.
func (s *Service) GetTrial(ctx context.Context, email, siteName string) (*models.Trial, error) {
	_ = ctx
	return s.repo.GetTrial(email, siteName)
}

// GetSite returns the stored site record by name.
func (s *Service) GetSite(ctx context.Context, siteName string) (*models.Site, error) {
	_ = ctx
	return s.repo.GetSiteByName(siteName)
}

// Status classifies a trial at the current time.
func (s *Service) Status(trial *models.Trial) TrialStatus {
	return StatusOf(trial, s.now())
}

// ListTrials returns all trials for an email, newest first.
func (s *Service) ListTrials(ctx context.Context, email string) ([]models.Trial, error) {
	_ = ctx
	return s.repo.ListTrialsByEmail(email)
}

// CreateSitePreview provisions the site on the builder and records it
// locally. The builder treats site creation as idempotent per site name, so
// a repeat call returns the same preview.
func (s *Service) CreateSitePreview(ctx context.Context, email, siteName, templateID string) (*models.Site, error) {
	client, err := s.repo.GetClientByEmail(email)
	if err != nil {
		return nil, err
	}

	built, err := s.sites.CreateSite(ctx, siteName, templateID)
	if err != nil {
		return nil, err
	}

	site, err := s.repo.GetOrCreateSite(&models.Site{
		SiteName:   built.SiteName,
		ClientID:   client.ID,
		TemplateID: built.TemplateID,
		PreviewURL: built.PreviewURL,
	})
	if err != nil {
		return nil, err
	}

	// Link the trial to the stored site once it exists.
	if _, err := s.repo.UpdateTrialFields(email, siteName, map[string]any{"site_id": site.ID}); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return site, nil
}

// CreateUpgradeInvoice raises an upgrade invoice for the trial and stores
// the invoice reference so the billing callback can find it later. The
// billing-side client account is created on first use.
func (s *Service) CreateUpgradeInvoice(ctx context.Context, email, siteName string) (*models.Trial, error) {
	trial, err := s.repo.GetTrial(email, siteName)
	if err != nil {
		return nil, err
	}
	if trial.InvoiceID != "" {
		return trial, nil
	}

	client, err := s.repo.GetClientByEmail(email)
	if err != nil {
		return nil, err
	}

	billingID := client.BillingClientID
	if billingID == "" {
		billingID, err = s.billing.CreateClient(ctx, client.Email, client.FirstName, client.LastName)
		if err != nil {
			return nil, err
		}
		if _, err := s.repo.UpdateClientFields(email, map[string]any{
			"billing_client_id": billingID,
			"account_created":   true,
		}); err != nil {
			return nil, err
		}
	}

	invoiceID, err := s.billing.CreateInvoice(ctx, billingID,
		env.GetEnv("UPGRADE_INVOICE_DESCRIPTION", "Church website annual plan"),
		env.GetEnv("UPGRADE_INVOICE_AMOUNT", "349.00"))
	if err != nil {
		return nil, err
	}

	return s.repo.UpdateTrialFields(email, siteName, map[string]any{"invoice_id": invoiceID})
}

// ConfirmPayment marks the trial behind an invoice as paid. Publish access
// is NOT granted here; payment and publish permission are separate gates.
func (s *Service) ConfirmPayment(ctx context.Context, invoiceID string) (*models.Trial, error) {
	trial, err := s.repo.GetTrialByInvoiceID(invoiceID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	trial, err = s.repo.UpdateTrialFields(trial.Email, trial.SiteName, map[string]any{
		"has_paid":    true,
		"upgraded_at": &now,
	})
	if err != nil {
		return nil, err
	}

	s.provisionMailbox(ctx, trial)
	s.sendEmail(trial.Email, "Payment received",
		fmt.Sprintf("<p>Thank you! Your payment for <strong>%s</strong> has been confirmed.</p>", trial.SiteName))
	return trial, nil
}

// GrantPublishAccess enables publishing for a paid trial. Unpaid trials get
// ErrNotPaid and stay untouched.
func (s *Service) GrantPublishAccess(ctx context.Context, email, siteName string) (*models.Trial, error) {
	_ = ctx
	return s.repo.GrantPublishAccess(email, siteName)
}

// PublishSite makes the site publicly live. It requires publish access on
// the trial behind the invoice; DNS wiring and the metadata snapshot are
// best-effort follow-ups.
func (s *Service) PublishSite(ctx context.Context, siteName, invoiceID string) (*models.Site, error) {
	trial, err := s.repo.GetTrialByInvoiceID(invoiceID)
	if err != nil {
		return nil, err
	}
	if trial.SiteName != strings.TrimSpace(siteName) {
		return nil, gorm.ErrRecordNotFound
	}
	if !trial.HasPaid || !trial.HasPublishAccess {
		return nil, ErrNotPaid
	}

	liveURL, err := s.sites.Publish(ctx, trial.SiteName)
	if err != nil {
		return nil, err
	}

	now := s.now()
	site, err := s.repo.UpdateSiteFields(trial.SiteName, map[string]any{
		"published":    true,
		"published_at": &now,
		"live_url":     liveURL,
	})
	if err != nil {
		return nil, err
	}

	s.wireDNS(ctx, site)
	s.snapshot(ctx, site, trial)
	return site, nil
}

// RequestEditorLink fetches a single-sign-on editor link for the site. This
// is read-only with respect to trial state and is a soft failure: callers
// continue without the link and nothing retries the call.
func (s *Service) RequestEditorLink(ctx context.Context, email, siteName string) (string, error) {
	trial, err := s.repo.GetTrial(email, siteName)
	if err != nil {
		return "", err
	}
	if IsExpired(trial, s.now()) {
		return "", ErrTrialExpired
	}

	link, err := s.sites.SSOLink(ctx, trial.SiteName)
	if err != nil {
		log.Printf("editor link request failed for site %s: %v", trial.SiteName, err)
		return "", fmt.Errorf("%w: %v", ErrEditorLinkUnavailable, err)
	}
	return link, nil
}

// InvoiceStatus answers a point-in-time payment status query, caching the
// billing system's answer briefly to absorb client-side polling.
func (s *Service) InvoiceStatus(ctx context.Context, invoiceID string) (string, error) {
	key := "billing:invoice:" + invoiceID + ":status"
	if cached, err := cache.Get(key); err == nil && cached != "" {
		return cached, nil
	}

	invoice, err := s.billing.GetInvoice(ctx, invoiceID)
	if err != nil {
		return "", err
	}
	if err := cache.Set(key, invoice.Status, invoiceStatusCacheTTL); err != nil {
		log.Printf("failed to cache invoice status for %s: %v", invoiceID, err)
	}
	return invoice.Status, nil
}

// billingCallback is the shape of the billing system's payment webhook.
type billingCallback struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	InvoiceID string `json:"invoice_id"`
	Status    string `json:"status"`
}

// HandlePaymentCallback verifies, records and processes one billing
// callback. Events are persisted idempotently before any state changes, so
// redelivered callbacks are absorbed without double-processing.
func (s *Service) HandlePaymentCallback(ctx context.Context, payload []byte, signatureHeader string) (*models.Trial, error) {
	signatureValid := provider.VerifyBillingCallbackSignature(payload, signatureHeader, s.callbackSecret)

	var cb billingCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, fmt.Errorf("malformed billing callback: %w", err)
	}

	eventID := strings.TrimSpace(cb.EventID)
	if eventID == "" {
		sum := sha256.Sum256(payload)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	created, event, err := s.repo.CreatePaymentEventIfNotExists(&models.PaymentEvent{
		Provider:        string(provider.Billing),
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(cb.EventType),
		InvoiceID:       strings.TrimSpace(cb.InvoiceID),
		PayloadJSON:     string(payload),
		SignatureValid:  signatureValid,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		log.Printf("billing callback %s already recorded, skipping", eventID)
		return nil, nil
	}
	if !signatureValid {
		_ = s.repo.MarkPaymentEventProcessed(event.ID, ErrInvalidSignature.Error())
		return nil, ErrInvalidSignature
	}

	if !strings.EqualFold(cb.EventType, "invoice.paid") {
		_ = s.repo.MarkPaymentEventProcessed(event.ID, "")
		return nil, nil
	}

	trial, err := s.ConfirmPayment(ctx, cb.InvoiceID)
	if err != nil {
		_ = s.repo.MarkPaymentEventProcessed(event.ID, err.Error())
		return nil, err
	}
	if err := s.repo.MarkPaymentEventProcessed(event.ID, ""); err != nil {
		log.Printf("failed to mark payment event %d processed: %v", event.ID, err)
	}
	return trial, nil
}

// IsExpired is exposed on the service for callers that already hold a trial.
func (s *Service) IsExpired(trial *models.Trial) bool {
	return IsExpired(trial, s.now())
}

func (s *Service) sendEmail(to, subject, body string) {
	if s.email == nil {
		return
	}
	if err := s.email.SendEmail(context.Background(), to, subject, body); err != nil {
		log.Printf("failed to send %q email to %s: %v", subject, to, err)
	}
}

func (s *Service) provisionMailbox(ctx context.Context, trial *models.Trial) {
	if s.mailboxes == nil {
		return
	}
	domain := fmt.Sprintf("%s.%s", trial.SiteName, s.baseDomain)
	if err := s.mailboxes.CreateMailbox(ctx, domain, "hello", uuid.NewString()); err != nil {
		log.Printf("failed to provision mailbox for %s: %v", domain, err)
	}
}

func (s *Service) wireDNS(ctx context.Context, site *models.Site) {
	if s.dns == nil {
		return
	}
	zone, err := s.dns.Zone(ctx, s.baseDomain)
	if err != nil {
		log.Printf("dns zone lookup failed for %s: %v", s.baseDomain, err)
		return
	}
	record := fmt.Sprintf("%s.%s", site.SiteName, s.baseDomain)
	if err := s.dns.CreateRecord(ctx, zone.ZoneID, "CNAME", record, strings.TrimPrefix(site.LiveURL, "https://")); err != nil {
		log.Printf("dns record creation failed for %s: %v", record, err)
	}
}

func (s *Service) snapshot(ctx context.Context, site *models.Site, trial *models.Trial) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.SnapshotSite(ctx, site, trial); err != nil {
		log.Printf("site snapshot failed for %s: %v", site.SiteName, err)
	}
}
