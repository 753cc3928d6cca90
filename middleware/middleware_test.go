package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"prepxiq_go/config"
	"prepxiq_go/models"

	"github.com/gofiber/fiber/v2"
)

func withTestConfig(t *testing.T) {
	t.Helper()
	prev := config.AppConfig
	config.AppConfig = &config.Config{JWTSecret: "test-secret", JWTExpiresIn: time.Hour}
	t.Cleanup(func() { config.AppConfig = prev })
}

func TestGenerateAndParseToken(t *testing.T) {
	withTestConfig(t)

	token, err := GenerateToken(&models.User{BaseModel: models.BaseModel{ID: 7}, Username: "asha", Role: models.RoleCounselor})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID != 7 || claims.Username != "asha" || claims.Role != models.RoleCounselor {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected a token id for revocation")
	}

	config.AppConfig.JWTSecret = "rotated"
	if _, err := ParseToken(token); err == nil {
		t.Fatal("expected signature failure after secret change")
	}
}

func TestActivityHelpers(t *testing.T) {
	actions := map[string]string{
		fiber.MethodPost:   "CREATE",
		fiber.MethodPut:    "UPDATE",
		fiber.MethodPatch:  "UPDATE",
		fiber.MethodDelete: "DELETE",
		fiber.MethodGet:    "",
	}
	for method, want := range actions {
		if got := activityAction(method); got != want {
			t.Errorf("activityAction(%s) = %q, want %q", method, got, want)
		}
	}

	resources := []struct {
		path string
		want string
	}{
		{"/api/leads/12/stage", "leads"},
		{"/api/notifications/run", "notifications"},
		{"/api", ""},
		{"/", ""},
	}
	for _, tt := range resources {
		if got := activityResource(tt.path); got != tt.want {
			t.Errorf("activityResource(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestRequestIDKeepsIncomingHeader(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if got := resp.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("X-Request-ID = %q", got)
	}

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected a generated request id")
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name   string
		claims *Claims
		want   int
	}{
		{"missing claims", nil, fiber.StatusUnauthorized},
		{"counselor allowed", &Claims{Role: models.RoleCounselor}, fiber.StatusOK},
		{"teacher rejected", &Claims{Role: models.RoleTeacher}, fiber.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(func(c *fiber.Ctx) error {
				if tt.claims != nil {
					c.Locals("claims", tt.claims)
				}
				return c.Next()
			})
			app.Get("/", RequireStaff(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestJWTMiddlewareRejectsBadHeaders(t *testing.T) {
	withTestConfig(t)
	app := fiber.New()
	app.Get("/", JWTMiddleware(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	for _, header := range []string{"", "Token abc", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(fiber.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != fiber.StatusUnauthorized {
			t.Errorf("header %q: status = %d", header, resp.StatusCode)
		}
	}
}
