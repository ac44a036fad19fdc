package apiv1

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/steeplelabs/steeple/app/controllers"
	"github.com/steeplelabs/steeple/app/models"
	"github.com/steeplelabs/steeple/internal/pkg/funnel"
	"github.com/steeplelabs/steeple/internal/pkg/provider"
)

// APIServer carries the shared service behind the JSON API
type APIServer struct {
	svc      *funnel.Service
	validate *validator.Validate
}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{
		svc:      controllers.GetFunnelService(),
		validate: validator.New(),
	}
}

// RegisterHandlers attaches all v1 routes to the given router group
func RegisterHandlers(router fiber.Router, s *APIServer) {
	router.Get("/ping", s.GetPing)
	router.Post("/trial/start", s.PostTrialStart)
	router.Get("/trial", s.GetTrial)
	router.Post("/trial/preview", s.PostTrialPreview)
	router.Post("/trial/invoice", s.PostTrialInvoice)
	router.Get("/trial/invoice/:id/status", s.GetInvoiceStatus)
	router.Post("/trial/editor-link", s.PostEditorLink)
	router.Post("/site/publish", s.PostSitePublish)
	router.Post("/billing/callback", s.PostBillingCallback)
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

// PostTrialStart begins or resumes a trial. Repeat calls for the same email
// and site name return the existing trial unchanged.
func (s *APIServer) PostTrialStart(c *fiber.Ctx) error {
	var req StartTrialRequest
	if err := s.parseBody(c, &req); err != nil {
		return badRequest(c, err)
	}

	trial, err := s.svc.StartTrial(c.Context(), req.Email, req.SiteName, req.ChurchName)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"trial":  trial,
		"status": s.svc.Status(trial),
	})
}

// GetTrial returns one trial (?email=&site_name=) or all trials for an email
func (s *APIServer) GetTrial(c *fiber.Ctx) error {
	email := models.NormalizeEmail(c.Query("email"))
	if email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "email missing"})
	}

	if siteName := c.Query("site_name"); siteName != "" {
		trial, err := s.svc.GetTrial(c.Context(), email, siteName)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(fiber.Map{"trial": trial, "status": s.svc.Status(trial)})
	}

	trials, err := s.svc.ListTrials(c.Context(), email)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"trials": trials, "total": len(trials)})
}

// PostTrialPreview provisions the builder site and returns the preview URL
func (s *APIServer) PostTrialPreview(c *fiber.Ctx) error {
	var req CreatePreviewRequest
	if err := s.parseBody(c, &req); err != nil {
		return badRequest(c, err)
	}

	site, err := s.svc.CreateSitePreview(c.Context(), models.NormalizeEmail(req.Email), req.SiteName, req.TemplateID)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"site": site})
}

// PostTrialInvoice raises the upgrade invoice for the trial. Idempotent: a
// trial that already carries an invoice returns it unchanged.
func (s *APIServer) PostTrialInvoice(c *fiber.Ctx) error {
	var req CreateInvoiceRequest
	if err := s.parseBody(c, &req); err != nil {
		return badRequest(c, err)
	}

	trial, err := s.svc.CreateUpgradeInvoice(c.Context(), models.NormalizeEmail(req.Email), req.SiteName)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"trial": trial, "invoice_id": trial.InvoiceID})
}

// GetInvoiceStatus answers a point-in-time payment status poll
func (s *APIServer) GetInvoiceStatus(c *fiber.Ctx) error {
	invoiceID := c.Params("id")
	if invoiceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invoice id missing"})
	}

	status, err := s.svc.InvoiceStatus(c.Context(), invoiceID)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"invoice_id": invoiceID, "status": status})
}

// PostEditorLink returns a fresh single-sign-on editor link. Link failures
// are soft: the caller gets 502 and simply continues without the link.
func (s *APIServer) PostEditorLink(c *fiber.Ctx) error {
	var req EditorLinkRequest
	if err := s.parseBody(c, &req); err != nil {
		return badRequest(c, err)
	}

	link, err := s.svc.RequestEditorLink(c.Context(), models.NormalizeEmail(req.Email), req.SiteName)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"editor_url": link, "expires_in": int((5 * time.Minute).Seconds())})
}

// PostSitePublish takes a paid site live
func (s *APIServer) PostSitePublish(c *fiber.Ctx) error {
	var req PublishSiteRequest
	if err := s.parseBody(c, &req); err != nil {
		return badRequest(c, err)
	}

	site, err := s.svc.PublishSite(c.Context(), req.SiteName, req.InvoiceID)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"site": site})
}

// PostBillingCallback ingests the billing system's payment webhook. The raw
// body is verified against the signature header before anything else.
func (s *APIServer) PostBillingCallback(c *fiber.Ctx) error {
	payload := c.Body()
	signature := c.Get("X-Billing-Signature")

	trial, err := s.svc.HandlePaymentCallback(c.Context(), payload, signature)
	if err != nil {
		if errors.Is(err, funnel.ErrInvalidSignature) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature", "message": "Callback signature verification failed"})
		}
		return errorResponse(c, err)
	}

	resp := fiber.Map{"status": "ok"}
	if trial != nil {
		resp["trial_id"] = trial.ID
	}
	return c.JSON(resp)
}

func (s *APIServer) parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return err
	}
	return s.validate.Struct(out)
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
}

// errorResponse maps service errors onto HTTP statuses
func errorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Resource not found"})
	case errors.Is(err, funnel.ErrNotPaid):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "not_paid", "message": "Payment and publish access are required first"})
	case errors.Is(err, funnel.ErrTrialExpired):
		return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": "trial_expired", "message": "The trial window has lapsed"})
	case errors.Is(err, funnel.ErrEditorLinkUnavailable):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "editor_unavailable", "message": "Could not obtain an editor link"})
	}

	var callErr *provider.CallError
	if errors.As(err, &callErr) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":    "upstream_error",
			"provider": string(callErr.Provider),
			"message":  "Upstream provider call failed",
		})
	}
	var authErr *provider.AuthError
	if errors.As(err, &authErr) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":    "upstream_auth_error",
			"provider": string(authErr.Provider),
			"message":  "Upstream provider authentication failed",
		})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Unexpected error"})
}
