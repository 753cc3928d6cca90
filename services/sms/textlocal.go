package sms

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const textlocalURL = "https://api.textlocal.in/send/"

// Textlocal sends through the Textlocal India send API.
type Textlocal struct {
	cfg Config
}

func (p *Textlocal) Name() string { return ProviderTextlocal }

type textlocalResponse struct {
	Status   string `json:"status"`
	Messages []struct {
		ID interface{} `json:"id"`
	} `json:"messages"`
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (p *Textlocal) Send(ctx context.Context, phone, message string) Result {
	number := WithCountryCode(phone, p.cfg.countryCode())
	if len(number) <= len(p.cfg.countryCode()) {
		return failure("invalid phone number")
	}

	args := fiber.AcquireArgs()
	defer fiber.ReleaseArgs(args)
	args.Set("apikey", p.cfg.APIKey)
	args.Set("numbers", number)
	args.Set("sender", p.cfg.SenderID)
	args.Set("message", message)

	a := fiber.Post(endpoint(p.cfg.BaseURL, textlocalURL))
	a.Form(args)

	code, body, err := do(ctx, a, p.cfg.timeout())
	if res, ok := httpFailure(p.Name(), code, body, err); !ok {
		return res
	}

	var resp textlocalResponse
	if err := decode(p.Name(), body, &resp); err != nil {
		return Result{Error: err.Error(), Data: rawData(body)}
	}
	if resp.Status != "success" {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, fmt.Sprintf("%s (code %d)", e.Message, e.Code))
		}
		if len(msgs) == 0 {
			msgs = append(msgs, "status "+resp.Status)
		}
		return Result{Error: "textlocal rejected the message: " + strings.Join(msgs, "; "), Data: rawData(body)}
	}
	id := ""
	if len(resp.Messages) > 0 && resp.Messages[0].ID != nil {
		id = fmt.Sprint(resp.Messages[0].ID)
	}
	return Result{Success: true, MessageID: id, Data: rawData(body)}
}
