package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"

	"github.com/steeplelabs/steeple/internal/pkg/env"
)

// RequireAdmin protects the admin group with HTTP basic auth. Credentials
// come from ADMIN_USER / ADMIN_PASSWORD.
func RequireAdmin() fiber.Handler {
	return basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("ADMIN_USER", "admin"): env.GetEnv("ADMIN_PASSWORD", "admin"),
		},
		Realm: "Restricted",
	})
}
