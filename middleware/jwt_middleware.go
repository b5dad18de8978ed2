package middleware

import (
	"strings"

	"cadenceflow/models"
	"cadenceflow/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	LocalUser   = "user"
	LocalUserID = "userID"
)

// Protected authenticates the request with a bearer token or the
// access_token cookie and stores the user in the request locals.
func Protected(db *gorm.DB, secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Try to get token from Authorization header first
		var token string
		authHeader := c.Get("Authorization")
		if authHeader != "" {
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return utils.ErrorResponse(c, fiber.StatusUnauthorized, "unauthorized", "Invalid authorization format")
			}
			token = tokenParts[1]
		} else {
			// Fall back to cookie if header not present
			token = c.Cookies("access_token")
			if token == "" {
				return utils.ErrorResponse(c, fiber.StatusUnauthorized, "unauthorized", "Authorization required")
			}
		}

		claims, err := utils.ParseJWTToken(token, secret)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "unauthorized", "Invalid or expired token")
		}

		var user models.User
		if err := db.WithContext(c.UserContext()).First(&user, claims.UserID).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "unauthorized", "User not found")
		}

		if !user.IsActive {
			return utils.ErrorResponse(c, fiber.StatusForbidden, "forbidden", "Account is not active")
		}

		// Bumping the user's token version revokes every token issued before.
		if claims.TokenVersion != user.TokenVersion {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "unauthorized", "Invalid token version")
		}

		c.Locals(LocalUser, &user)
		c.Locals(LocalUserID, user.ID)

		return c.Next()
	}
}

// CurrentUser returns the user stored by Protected, or nil.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(LocalUser).(*models.User)
	return user
}
