package sms

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const fast2smsURL = "https://www.fast2sms.com/dev/bulkV2"

// Fast2SMS sends through the Fast2SMS bulk v2 API. Numbers go out as 10-digit national numbers.
type Fast2SMS struct {
	cfg Config
}

func (p *Fast2SMS) Name() string { return ProviderFast2SMS }

type fast2smsResponse struct {
	Return    bool            `json:"return"`
	RequestID string          `json:"request_id"`
	Message   json.RawMessage `json:"message"`
}

func (p *Fast2SMS) Send(ctx context.Context, phone, message string) Result {
	number := NationalNumber(phone, p.cfg.countryCode())
	if number == "" {
		return failure("invalid phone number")
	}

	route := p.cfg.Route
	if route == "" {
		route = "q"
	}
	payload := fiber.Map{
		"route":    route,
		"message":  message,
		"language": "english",
		"flash":    0,
		"numbers":  number,
	}
	if p.cfg.SenderID != "" {
		payload["sender_id"] = p.cfg.SenderID
	}

	a := fiber.Post(endpoint(p.cfg.BaseURL, fast2smsURL))
	a.Set("authorization", p.cfg.APIKey)
	a.Set("cache-control", "no-cache")
	a.JSON(payload)

	code, body, err := do(ctx, a, p.cfg.timeout())
	if res, ok := httpFailure(p.Name(), code, body, err); !ok {
		return res
	}

	var resp fast2smsResponse
	if err := decode(p.Name(), body, &resp); err != nil {
		return Result{Error: err.Error(), Data: rawData(body)}
	}
	if !resp.Return {
		return Result{Error: "fast2sms rejected the message: " + messageText(resp.Message), Data: rawData(body)}
	}
	return Result{Success: true, MessageID: resp.RequestID, Data: rawData(body)}
}

// messageText flattens a vendor message that may be a string or a list of strings.
func messageText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return snippet(raw)
}
