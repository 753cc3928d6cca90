package controllers

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"prepxiq_go/utils"

	"github.com/gofiber/fiber/v2"
)

func TestParamID(t *testing.T) {
	app := fiber.New()
	app.Get("/leads/:id", func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"id": id})
	})

	tests := []struct {
		path string
		want int
	}{
		{"/leads/12", fiber.StatusOK},
		{"/leads/0", fiber.StatusBadRequest},
		{"/leads/abc", fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, tt.path, nil))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
	}
}

func TestQueryDate(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		d, err := queryDate(c, "date")
		if err != nil {
			return respondError(c, err)
		}
		if d == nil {
			return c.JSON(fiber.Map{"date": ""})
		}
		return c.JSON(fiber.Map{"date": d.Format(utils.DateLayout)})
	})

	tests := []struct {
		query  string
		status int
		date   string
	}{
		{"", fiber.StatusOK, ""},
		{"?date=2024-03-05", fiber.StatusOK, "2024-03-05"},
		{"?date=05/03/2024", fiber.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/"+tt.query, nil))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != tt.status {
			t.Errorf("%q: status = %d, want %d", tt.query, resp.StatusCode, tt.status)
			continue
		}
		if tt.status != fiber.StatusOK {
			continue
		}
		var body map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["date"] != tt.date {
			t.Errorf("%q: date = %q, want %q", tt.query, body["date"], tt.date)
		}
	}
}

func TestRespondErrorMapsKinds(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{utils.ValidationError("bad"), fiber.StatusBadRequest},
		{utils.ErrNotFound, fiber.StatusNotFound},
		{utils.ErrPermission, fiber.StatusForbidden},
		{utils.ErrInvalidTransition, fiber.StatusConflict},
	}
	for _, tt := range tests {
		app := fiber.New()
		err := tt.err
		app.Get("/", func(c *fiber.Ctx) error { return respondError(c, err) })
		resp, testErr := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
		if testErr != nil {
			t.Fatal(testErr)
		}
		if resp.StatusCode != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, resp.StatusCode, tt.want)
		}
	}
}
