package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// do executes a prepared agent, bounding it by the context deadline.
// The agent must not be reused afterwards.
func do(ctx context.Context, a *fiber.Agent, timeout time.Duration) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	a.Timeout(timeout)
	code, body, errs := a.Bytes()
	if len(errs) > 0 {
		return code, body, errors.Join(errs...)
	}
	return code, body, nil
}

// httpFailure builds the readable error for transport errors and non-2xx codes.
// It returns ok=true when the call reached the vendor and got a 2xx.
func httpFailure(provider string, code int, body []byte, err error) (Result, bool) {
	if err != nil {
		res := failure("%s request failed: %v", provider, err)
		res.Data = rawData(body)
		return res, false
	}
	if code < 200 || code > 299 {
		res := failure("%s returned HTTP %d: %s", provider, code, snippet(body))
		res.Data = rawData(body)
		return res, false
	}
	return Result{}, true
}

// rawData keeps the vendor payload for the communication log.
func rawData(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		out := make([]byte, len(body))
		copy(out, body)
		return out
	}
	b, _ := json.Marshal(string(body))
	return b
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "empty response"
	}
	return s
}

func endpoint(base, def string) string {
	if strings.TrimSpace(base) == "" {
		return def
	}
	return strings.TrimRight(base, "/")
}

func decode(provider string, body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%s returned an unreadable response: %s", provider, snippet(body))
	}
	return nil
}
