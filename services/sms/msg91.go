package sms

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

const msg91URL = "https://api.msg91.com/api/v2/sendsms"

// MSG91 sends through the MSG91 v2 sendsms API.
type MSG91 struct {
	cfg Config
}

func (p *MSG91) Name() string { return ProviderMSG91 }

type msg91Response struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (p *MSG91) Send(ctx context.Context, phone, message string) Result {
	cc := p.cfg.countryCode()
	number := NationalNumber(phone, cc)
	if number == "" {
		return failure("invalid phone number")
	}

	route := p.cfg.Route
	if route == "" {
		route = "4"
	}
	payload := fiber.Map{
		"sender":  p.cfg.SenderID,
		"route":   route,
		"country": cc,
		"sms": []fiber.Map{
			{"message": message, "to": []string{number}},
		},
	}
	if p.cfg.TemplateID != "" {
		payload["DLT_TE_ID"] = p.cfg.TemplateID
	}

	a := fiber.Post(endpoint(p.cfg.BaseURL, msg91URL))
	a.Set("authkey", p.cfg.APIKey)
	a.JSON(payload)

	code, body, err := do(ctx, a, p.cfg.timeout())
	if res, ok := httpFailure(p.Name(), code, body, err); !ok {
		return res
	}

	var resp msg91Response
	if err := decode(p.Name(), body, &resp); err != nil {
		return Result{Error: err.Error(), Data: rawData(body)}
	}
	if resp.Type != "success" {
		return Result{Error: "msg91 rejected the message: " + resp.Message, Data: rawData(body)}
	}
	return Result{Success: true, MessageID: resp.Message, Data: rawData(body)}
}
