package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"prepxiq_go/services"

	"github.com/gofiber/fiber/v2"
)

func TestValidateSignature(t *testing.T) {
	body := []byte(`{"events":[]}`)
	sig := computeSignature("secret", body)
	if !validateSignature("secret", body, sig) {
		t.Error("valid signature rejected")
	}
	if validateSignature("other", body, sig) {
		t.Error("signature with wrong secret accepted")
	}
	if validateSignature("secret", []byte(`{}`), sig) {
		t.Error("signature for different body accepted")
	}
}

func TestWebhookStatusCodes(t *testing.T) {
	body := `{"destination":"x","events":[]}`
	tests := []struct {
		name      string
		secret    string
		signature string
		want      int
	}{
		{"disabled", "", "", fiber.StatusOK},
		{"missing signature", "secret", "", fiber.StatusBadRequest},
		{"bad signature", "secret", "bogus", fiber.StatusUnauthorized},
		{"good signature", "secret", computeSignature("secret", []byte(body)), fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewLineWebhookHandler(nil, nil, tt.secret)
			app := fiber.New()
			app.Post("/webhook/line", h.Handle)

			req := httptest.NewRequest("POST", "/webhook/line", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			if tt.signature != "" {
				req.Header.Set("X-Line-Signature", tt.signature)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestJoinAndLeaveUpdateStaffGroup(t *testing.T) {
	line := &services.LineMessagingService{}
	h := NewLineWebhookHandler(nil, line, "secret")

	h.process(context.Background(), []byte(`{"events":[{"type":"join","timestamp":1700000000000,"source":{"type":"group","groupId":"C123"},"replyToken":"r"}]}`))
	if got := line.GroupID(); got != "C123" {
		t.Fatalf("GroupID after join = %q", got)
	}

	h.process(context.Background(), []byte(`{"events":[{"type":"leave","timestamp":1700000000000,"source":{"type":"group","groupId":"OTHER"}}]}`))
	if got := line.GroupID(); got != "C123" {
		t.Errorf("leave from another group changed GroupID to %q", got)
	}

	h.process(context.Background(), []byte(`{"events":[{"type":"leave","timestamp":1700000000000,"source":{"type":"group","groupId":"C123"}}]}`))
	if got := line.GroupID(); got != "" {
		t.Errorf("GroupID after leave = %q", got)
	}
}
