package controllers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/steeplelabs/steeple/app/models"
	"github.com/steeplelabs/steeple/internal/pkg/constants"
	"github.com/steeplelabs/steeple/internal/pkg/database"
	"github.com/steeplelabs/steeple/internal/pkg/funnel"
	"github.com/steeplelabs/steeple/internal/pkg/provider"
	"github.com/steeplelabs/steeple/internal/pkg/session"
	"github.com/steeplelabs/steeple/internal/pkg/sitebackup"
)

// Session keys for the multi-step funnel flow
const (
	SessionKeyEmail    = "funnel_email"
	SessionKeySiteName = "funnel_site_name"
)

var funnelService *funnel.Service

// InitializeFunnelController wires the trial lifecycle service with the live
// provider clients. All clients share one dispatcher and one token cache.
func InitializeFunnelController() {
	authCache := provider.NewAuthCache()
	dispatcher := provider.NewDispatcher(authCache)

	funnelService = funnel.NewServiceFromDB(
		database.GetDB(),
		provider.NewSiteBuilderClientFromEnv(dispatcher),
		provider.NewBillingClientFromEnv(dispatcher),
	).WithEmail(
		provider.NewPostmarkClientFromEnv(dispatcher),
	).WithProvisioning(
		provider.NewMailAdminClientFromEnv(dispatcher),
		provider.NewDNSClientFromEnv(dispatcher),
		newSnapshotter(),
	)
}

// GetFunnelService returns the shared trial lifecycle service
func GetFunnelService() *funnel.Service {
	return funnelService
}

// newSnapshotter returns nil when S3 snapshots are disabled or misconfigured;
// publishing then simply skips the snapshot step.
func newSnapshotter() funnel.Snapshotter {
	cfg, err := sitebackup.LoadConfig()
	if err != nil {
		log.Printf("site snapshots disabled: %v", err)
		return nil
	}
	if !cfg.IsEnabled() {
		return nil
	}
	client, err := sitebackup.NewClient(cfg)
	if err != nil {
		log.Printf("site snapshots disabled: %v", err)
		return nil
	}
	return client
}

// HandleFunnelStartPage renders the landing form
func HandleFunnelStartPage(c *fiber.Ctx) error {
	return c.Render("funnel_start", fiber.Map{})
}

// HandleFunnelStart creates (or resumes) the trial for the submitted email
// and site name, then drops both into the session for the next steps.
func HandleFunnelStart(c *fiber.Ctx) error {
	email := models.NormalizeEmail(c.FormValue("email"))
	siteName := c.FormValue("site_name")
	churchName := c.FormValue("church_name")

	if email == "" || siteName == "" {
		return c.Status(fiber.StatusBadRequest).Render("funnel_start", fiber.Map{
			"Error": "Email and site name are required",
		})
	}

	trial, err := funnelService.StartTrial(c.Context(), email, siteName, churchName)
	if err != nil {
		log.Printf("funnel start failed for %s/%s: %v", email, siteName, err)
		return c.Status(fiber.StatusInternalServerError).Render("funnel_start", fiber.Map{
			"Error": "Something went wrong, please try again",
		})
	}

	if err := session.SetSessionValue(c, SessionKeyEmail, trial.Email); err != nil {
		log.Printf("failed to store funnel session: %v", err)
	}
	if err := session.SetSessionValue(c, SessionKeySiteName, trial.SiteName); err != nil {
		log.Printf("failed to store funnel session: %v", err)
	}

	return c.Redirect(constants.FunnelStatusRoute, fiber.StatusSeeOther)
}

// HandleFunnelPreview provisions the builder site for the visitor in the
// session and returns to the status page with the preview link.
func HandleFunnelPreview(c *fiber.Ctx) error {
	email := session.GetSessionValue(c, SessionKeyEmail)
	siteName := session.GetSessionValue(c, SessionKeySiteName)
	if email == "" || siteName == "" {
		return c.Redirect(constants.FunnelStartRoute, fiber.StatusSeeOther)
	}

	templateID := c.FormValue("template_id", "classic")
	if _, err := funnelService.CreateSitePreview(c.Context(), email, siteName, templateID); err != nil {
		log.Printf("preview creation failed for %s: %v", siteName, err)
		return renderFunnelStatus(c, "Could not create the site preview, please try again")
	}

	return c.Redirect(constants.FunnelStatusRoute, fiber.StatusSeeOther)
}

// HandleFunnelStatus shows the visitor where their trial stands
func HandleFunnelStatus(c *fiber.Ctx) error {
	return renderFunnelStatus(c, "")
}

func renderFunnelStatus(c *fiber.Ctx, flash string) error {
	email := session.GetSessionValue(c, SessionKeyEmail)
	siteName := session.GetSessionValue(c, SessionKeySiteName)
	if email == "" || siteName == "" {
		return c.Redirect(constants.FunnelStartRoute, fiber.StatusSeeOther)
	}

	trial, err := funnelService.GetTrial(c.Context(), email, siteName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Redirect(constants.FunnelStartRoute, fiber.StatusSeeOther)
		}
		return fiber.ErrInternalServerError
	}

	var site *models.Site
	if trial.SiteID != nil {
		if s, err := funnelService.GetSite(c.Context(), trial.SiteName); err == nil {
			site = s
		}
	}

	return c.Render("funnel_status", fiber.Map{
		"Trial":  trial,
		"Site":   site,
		"Status": string(funnelService.Status(trial)),
		"Error":  flash,
	})
}

// HandleFunnelEditor fetches a fresh single-sign-on editor link and sends
// the visitor straight into the builder. A failed link is a soft failure.
func HandleFunnelEditor(c *fiber.Ctx) error {
	email := session.GetSessionValue(c, SessionKeyEmail)
	siteName := session.GetSessionValue(c, SessionKeySiteName)
	if email == "" || siteName == "" {
		return c.Redirect(constants.FunnelStartRoute, fiber.StatusSeeOther)
	}

	link, err := funnelService.RequestEditorLink(c.Context(), email, siteName)
	if err != nil {
		if errors.Is(err, funnel.ErrTrialExpired) {
			return renderFunnelStatus(c, "Your trial has expired, upgrade to keep editing")
		}
		return renderFunnelStatus(c, "The editor is temporarily unavailable, please try again shortly")
	}

	return c.Redirect(link, fiber.StatusSeeOther)
}
