package controllers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/steeplelabs/steeple/app/models"
	"github.com/steeplelabs/steeple/app/repository"
	"github.com/steeplelabs/steeple/internal/pkg/database"
	"github.com/steeplelabs/steeple/internal/pkg/funnel"
)

// InitializeAdminController sets up the repository factory backing the
// admin listings
func InitializeAdminController() {
	repository.InitializeFactory(database.GetDB())
}

func paginationParams(c *fiber.Ctx) (offset, limit int) {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.Query("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return (page - 1) * limit, limit
}

// HandleAdminClients lists clients, newest first, with optional ?q= search
func HandleAdminClients(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetClientRepository()

	if q := c.Query("q"); q != "" {
		clients, err := repo.Search(q)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to search clients"})
		}
		return c.JSON(fiber.Map{"clients": clients, "total": len(clients)})
	}

	offset, limit := paginationParams(c)
	clients, err := repo.List(offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load clients"})
	}
	total, err := repo.Count()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to count clients"})
	}

	return c.JSON(fiber.Map{"clients": clients, "total": total})
}

// HandleAdminClientSites lists all sites belonging to one client email
func HandleAdminClientSites(c *fiber.Ctx) error {
	email := models.NormalizeEmail(c.Params("email"))
	if email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Email missing"})
	}

	factory := repository.GetGlobalFactory()
	if _, err := factory.GetClientRepository().GetByEmail(email); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Client not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load client"})
	}

	sites, err := factory.GetSiteRepository().GetByClientEmail(email)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load sites"})
	}

	return c.JSON(fiber.Map{"email": email, "sites": sites})
}

// HandleAdminTrials lists trials, optionally filtered by ?email=
func HandleAdminTrials(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetTrialRepository()

	if email := models.NormalizeEmail(c.Query("email")); email != "" {
		trials, err := repo.GetByEmail(email)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load trials"})
		}
		return c.JSON(fiber.Map{"trials": trials, "total": len(trials)})
	}

	offset, limit := paginationParams(c)
	trials, err := repo.List(offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load trials"})
	}
	total, err := repo.Count()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to count trials"})
	}

	return c.JSON(fiber.Map{"trials": trials, "total": total})
}

// HandleAdminGrantPublishAccess flips the publish gate for a paid trial
func HandleAdminGrantPublishAccess(c *fiber.Ctx) error {
	email := models.NormalizeEmail(c.FormValue("email", c.Query("email")))
	siteName := c.FormValue("site_name", c.Query("site_name"))
	if email == "" || siteName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Email and site name are required"})
	}

	trial, err := GetFunnelService().GrantPublishAccess(c.Context(), email, siteName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Trial not found"})
		}
		if errors.Is(err, funnel.ErrNotPaid) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "not_paid", "message": "Publish access requires a paid trial"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to grant publish access"})
	}

	return c.JSON(fiber.Map{"trial": trial})
}

// HandleAdminPaymentEvents lists recorded billing callbacks; ?unprocessed=true
// surfaces stuck events
func HandleAdminPaymentEvents(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetPaymentEventRepository()

	if c.Query("unprocessed") == "true" {
		events, err := repo.ListUnprocessed(100)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load payment events"})
		}
		return c.JSON(fiber.Map{"events": events, "total": len(events)})
	}

	offset, limit := paginationParams(c)
	events, err := repo.List(offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load payment events"})
	}
	total, err := repo.Count()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to count payment events"})
	}

	return c.JSON(fiber.Map{"events": events, "total": total})
}
