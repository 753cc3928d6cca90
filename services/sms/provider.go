// Package sms wraps SMS vendors behind one Send contract.
//
// Providers never return Go errors for delivery problems. Any transport
// failure, non-2xx status or vendor-reported failure comes back as
// Result{Success: false} with a readable Error.
package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Result of one send attempt.
type Result struct {
	Success   bool            `json:"success"`
	MessageID string          `json:"message_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Provider sends a single text message.
type Provider interface {
	Name() string
	Send(ctx context.Context, phone, message string) Result
}

// Config selects and authenticates a provider. Values come from the settings store.
type Config struct {
	Provider    string        `json:"provider"`
	APIKey      string        `json:"api_key"`
	APISecret   string        `json:"api_secret"`
	SenderID    string        `json:"sender_id"`
	CountryCode string        `json:"country_code"`
	Route       string        `json:"route"`
	TemplateID  string        `json:"template_id"`
	BaseURL     string        `json:"base_url"`
	Timeout     time.Duration `json:"-"`
	// AllowConsole permits the log-only provider. Only development sets it.
	AllowConsole bool `json:"-"`
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}

func (c Config) countryCode() string {
	cc := strings.TrimPrefix(strings.TrimSpace(c.CountryCode), "+")
	if cc == "" {
		return "91"
	}
	return cc
}

// Provider names accepted by NewProvider.
const (
	ProviderConsole   = "console"
	ProviderFast2SMS  = "fast2sms"
	ProviderMSG91     = "msg91"
	ProviderTwilio    = "twilio"
	ProviderTextlocal = "textlocal"
)

// ErrNoProvider is returned when no real provider is configured outside development.
var ErrNoProvider = errors.New("no sms provider configured")

// NewProvider builds the provider named in cfg. An empty name means console
// in development and ErrNoProvider elsewhere.
func NewProvider(cfg Config) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name != "" && name != ProviderConsole && strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("sms provider %s: api key is not configured", name)
	}
	switch name {
	case "", ProviderConsole:
		if !cfg.AllowConsole {
			return nil, ErrNoProvider
		}
		return NewConsole(), nil
	case ProviderFast2SMS:
		return &Fast2SMS{cfg: cfg}, nil
	case ProviderMSG91:
		return &MSG91{cfg: cfg}, nil
	case ProviderTwilio:
		if cfg.APISecret == "" || cfg.SenderID == "" {
			return nil, fmt.Errorf("sms provider twilio: auth token and sender number are required")
		}
		return &Twilio{cfg: cfg}, nil
	case ProviderTextlocal:
		return &Textlocal{cfg: cfg}, nil
	}
	return nil, fmt.Errorf("unknown sms provider %q", cfg.Provider)
}

// NormalizePhone strips spaces, dashes, dots and parentheses. A leading '+' is kept.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NationalNumber returns the subscriber number without country code or trunk zero.
func NationalNumber(phone, countryCode string) string {
	p := strings.TrimPrefix(NormalizePhone(phone), "+")
	cc := strings.TrimPrefix(countryCode, "+")
	if cc != "" && len(p) > 10 && strings.HasPrefix(p, cc) {
		p = p[len(cc):]
	}
	if len(p) == 11 && p[0] == '0' {
		p = p[1:]
	}
	return p
}

// WithCountryCode returns the number as country code plus national number, no '+'.
func WithCountryCode(phone, countryCode string) string {
	return strings.TrimPrefix(countryCode, "+") + NationalNumber(phone, countryCode)
}

// E164 formats the number as +<cc><national>. Numbers already starting with '+' are kept.
func E164(phone, countryCode string) string {
	p := NormalizePhone(phone)
	if strings.HasPrefix(p, "+") {
		return p
	}
	return "+" + WithCountryCode(p, countryCode)
}

func failure(format string, args ...interface{}) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}
