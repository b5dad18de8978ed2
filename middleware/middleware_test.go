package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cadenceflow/models"
	"cadenceflow/utils"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "middleware-test-secret"

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:middleware_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.User{}))
	return db
}

func protectedApp(db *gorm.DB) *fiber.App {
	app := fiber.New()
	app.Get("/me", Protected(db, testSecret), func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		return c.JSON(fiber.Map{"id": user.ID, "local_id": c.Locals(LocalUserID)})
	})
	return app
}

func TestProtected(t *testing.T) {
	db := openTestDB(t)
	active := models.User{Email: "active@example.com", IsActive: true, TokenVersion: 1}
	require.NoError(t, db.Create(&active).Error)
	inactive := models.User{Email: "inactive@example.com", IsActive: true}
	require.NoError(t, db.Create(&inactive).Error)
	require.NoError(t, db.Model(&inactive).Update("is_active", false).Error)

	validToken, err := utils.GenerateAccessToken(&active, testSecret)
	require.NoError(t, err)
	staleToken, err := utils.GenerateAccessToken(&models.User{Model: active.Model, TokenVersion: 0}, testSecret)
	require.NoError(t, err)
	inactiveToken, err := utils.GenerateAccessToken(&inactive, testSecret)
	require.NoError(t, err)
	foreignToken, err := utils.GenerateAccessToken(&active, "someone-else")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		cookie string
		status int
	}{
		{"bearer token", "Bearer " + validToken, "", http.StatusOK},
		{"cookie token", "", validToken, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"bad format", "Token " + validToken, "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + foreignToken, "", http.StatusUnauthorized},
		{"revoked version", "Bearer " + staleToken, "", http.StatusUnauthorized},
		{"inactive user", "Bearer " + inactiveToken, "", http.StatusForbidden},
	}

	app := protectedApp(db)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "access_token", Value: tt.cookie})
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestCORS(t *testing.T) {
	app := fiber.New()
	app.Use(CORS(CORSConfig{
		AllowedOrigins: ParseOrigins(" https://app.example.com, ,https://admin.example.com"),
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization"},
		MaxAge:         600,
	}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://admin.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "600", resp.Header.Get("Access-Control-Max-Age"))
	assert.Equal(t, "GET,POST", resp.Header.Get("Access-Control-Allow-Methods"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestActionRateLimiter(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(LocalUser, &models.User{Model: gorm.Model{ID: 5}})
		return c.Next()
	})
	app.Post("/act", ActionRateLimiter(2, nil), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/act", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	}
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/act", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
