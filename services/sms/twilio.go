package sms

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

const twilioURL = "https://api.twilio.com"

// Twilio sends through the Programmable Messaging REST API.
// APIKey is the account SID, APISecret the auth token and SenderID the "From" number.
type Twilio struct {
	cfg Config
}

func (p *Twilio) Name() string { return ProviderTwilio }

type twilioResponse struct {
	SID          string  `json:"sid"`
	Status       string  `json:"status"`
	ErrorCode    *int    `json:"error_code"`
	ErrorMessage *string `json:"error_message"`
	// error payload
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (p *Twilio) Send(ctx context.Context, phone, message string) Result {
	to := E164(phone, p.cfg.countryCode())
	if len(to) < 8 {
		return failure("invalid phone number")
	}

	args := fiber.AcquireArgs()
	defer fiber.ReleaseArgs(args)
	args.Set("To", to)
	args.Set("From", p.cfg.SenderID)
	args.Set("Body", message)

	url := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", endpoint(p.cfg.BaseURL, twilioURL), p.cfg.APIKey)
	a := fiber.Post(url)
	a.BasicAuth(p.cfg.APIKey, p.cfg.APISecret)
	a.Form(args)

	code, body, err := do(ctx, a, p.cfg.timeout())
	if err == nil && (code < 200 || code > 299) {
		var resp twilioResponse
		if decode(p.Name(), body, &resp) == nil && resp.Message != "" {
			return Result{Error: fmt.Sprintf("twilio returned HTTP %d: %s (code %d)", code, resp.Message, resp.Code), Data: rawData(body)}
		}
	}
	if res, ok := httpFailure(p.Name(), code, body, err); !ok {
		return res
	}

	var resp twilioResponse
	if err := decode(p.Name(), body, &resp); err != nil {
		return Result{Error: err.Error(), Data: rawData(body)}
	}
	if resp.Status == "failed" || resp.Status == "undelivered" {
		msg := resp.Status
		if resp.ErrorMessage != nil {
			msg = *resp.ErrorMessage
		}
		return Result{MessageID: resp.SID, Error: "twilio could not deliver the message: " + msg, Data: rawData(body)}
	}
	return Result{Success: true, MessageID: resp.SID, Data: rawData(body)}
}
