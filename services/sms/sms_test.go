package sms

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "98765 43210", want: "9876543210"},
		{input: "(987) 654-3210", want: "9876543210"},
		{input: "+91 98765-43210", want: "+919876543210"},
		{input: " 987.654.3210 ", want: "9876543210"},
		{input: "98+765", want: "98765"},
		{input: "", want: ""},
	}
	for _, tc := range tests {
		if got := NormalizePhone(tc.input); got != tc.want {
			t.Fatalf("%q: expected %q, got %q", tc.input, tc.want, got)
		}
	}
}

func TestNationalAndInternationalForms(t *testing.T) {
	tests := []struct {
		input    string
		national string
		withCC   string
		e164     string
	}{
		{input: "9876543210", national: "9876543210", withCC: "919876543210", e164: "+919876543210"},
		{input: "+91 98765 43210", national: "9876543210", withCC: "919876543210", e164: "+919876543210"},
		{input: "919876543210", national: "9876543210", withCC: "919876543210", e164: "+919876543210"},
		{input: "09876543210", national: "9876543210", withCC: "919876543210", e164: "+919876543210"},
	}
	for _, tc := range tests {
		if got := NationalNumber(tc.input, "91"); got != tc.national {
			t.Fatalf("%q national: expected %q, got %q", tc.input, tc.national, got)
		}
		if got := WithCountryCode(tc.input, "+91"); got != tc.withCC {
			t.Fatalf("%q with cc: expected %q, got %q", tc.input, tc.withCC, got)
		}
		if got := E164(tc.input, "91"); got != tc.e164 {
			t.Fatalf("%q e164: expected %q, got %q", tc.input, tc.e164, got)
		}
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantName string
		wantErr  bool
	}{
		{name: "empty defaults to console in development", cfg: Config{AllowConsole: true}, wantName: ProviderConsole},
		{name: "empty outside development", cfg: Config{}, wantErr: true},
		{name: "console outside development", cfg: Config{Provider: "console"}, wantErr: true},
		{name: "fast2sms", cfg: Config{Provider: "Fast2SMS", APIKey: "k"}, wantName: ProviderFast2SMS},
		{name: "msg91", cfg: Config{Provider: "msg91", APIKey: "k"}, wantName: ProviderMSG91},
		{name: "textlocal", cfg: Config{Provider: "textlocal", APIKey: "k"}, wantName: ProviderTextlocal},
		{name: "twilio", cfg: Config{Provider: "twilio", APIKey: "AC1", APISecret: "s", SenderID: "+15550001111"}, wantName: ProviderTwilio},
		{name: "twilio without token", cfg: Config{Provider: "twilio", APIKey: "AC1"}, wantErr: true},
		{name: "missing key", cfg: Config{Provider: "msg91"}, wantErr: true},
		{name: "unknown", cfg: Config{Provider: "pigeon", APIKey: "k"}, wantErr: true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			p, err := NewProvider(tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Name() != tc.wantName {
				t.Fatalf("expected %s, got %s", tc.wantName, p.Name())
			}
		})
	}
}

func TestFast2SMSSend(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"return":true,"request_id":"req-1","message":["SMS sent successfully."]}`)
	}))
	defer srv.Close()

	p := &Fast2SMS{cfg: Config{APIKey: "secret", BaseURL: srv.URL, CountryCode: "91"}}
	res := p.Send(context.Background(), "+91 98765-43210", "hello")
	if !res.Success || res.MessageID != "req-1" {
		t.Fatalf("expected success, got %+v", res)
	}
	if gotAuth != "secret" {
		t.Fatalf("expected api key in authorization header, got %q", gotAuth)
	}
	if gotBody["numbers"] != "9876543210" || gotBody["message"] != "hello" || gotBody["route"] != "q" {
		t.Fatalf("unexpected payload %v", gotBody)
	}
	if len(res.Data) == 0 {
		t.Fatalf("provider response should be kept")
	}
}

func TestFast2SMSProviderFailureFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"return":false,"message":"Invalid Numbers"}`)
	}))
	defer srv.Close()

	p := &Fast2SMS{cfg: Config{APIKey: "k", BaseURL: srv.URL}}
	res := p.Send(context.Background(), "9876543210", "hello")
	if res.Success {
		t.Fatalf("expected failure")
	}
	if !strings.Contains(res.Error, "Invalid Numbers") {
		t.Fatalf("expected vendor message in error, got %q", res.Error)
	}
}

func TestNon2xxIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"Authentication failure","type":"error"}`)
	}))
	defer srv.Close()

	p := &MSG91{cfg: Config{APIKey: "k", BaseURL: srv.URL}}
	res := p.Send(context.Background(), "9876543210", "hello")
	if res.Success {
		t.Fatalf("expected failure")
	}
	if !strings.Contains(res.Error, "HTTP 401") {
		t.Fatalf("expected status in error, got %q", res.Error)
	}
}

func TestMSG91Send(t *testing.T) {
	var gotKey string
	var gotBody struct {
		Sender  string `json:"sender"`
		Country string `json:"country"`
		SMS     []struct {
			Message string   `json:"message"`
			To      []string `json:"to"`
		} `json:"sms"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("authkey")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, `{"message":"3763646c3058373530393138","type":"success"}`)
	}))
	defer srv.Close()

	p := &MSG91{cfg: Config{APIKey: "auth", SenderID: "PRPXIQ", CountryCode: "91", BaseURL: srv.URL}}
	res := p.Send(context.Background(), "(987) 654-3210", "fee reminder")
	if !res.Success || res.MessageID != "3763646c3058373530393138" {
		t.Fatalf("expected success, got %+v", res)
	}
	if gotKey != "auth" || gotBody.Sender != "PRPXIQ" || gotBody.Country != "91" {
		t.Fatalf("unexpected request key=%q body=%+v", gotKey, gotBody)
	}
	if len(gotBody.SMS) != 1 || gotBody.SMS[0].To[0] != "9876543210" || gotBody.SMS[0].Message != "fee reminder" {
		t.Fatalf("unexpected sms block %+v", gotBody.SMS)
	}
}

func TestTwilioSend(t *testing.T) {
	var user, pass, path string
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		path = r.URL.Path
		_ = r.ParseForm()
		form = map[string]string{"To": r.PostForm.Get("To"), "From": r.PostForm.Get("From"), "Body": r.PostForm.Get("Body")}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"sid":"SM123","status":"queued","error_code":null,"error_message":null}`)
	}))
	defer srv.Close()

	p := &Twilio{cfg: Config{APIKey: "AC42", APISecret: "tok", SenderID: "+15550001111", CountryCode: "91", BaseURL: srv.URL}}
	res := p.Send(context.Background(), "98765 43210", "exam tomorrow")
	if !res.Success || res.MessageID != "SM123" {
		t.Fatalf("expected success, got %+v", res)
	}
	if user != "AC42" || pass != "tok" {
		t.Fatalf("unexpected basic auth %q/%q", user, pass)
	}
	if path != "/2010-04-01/Accounts/AC42/Messages.json" {
		t.Fatalf("unexpected path %q", path)
	}
	if form["To"] != "+919876543210" || form["From"] != "+15550001111" || form["Body"] != "exam tomorrow" {
		t.Fatalf("unexpected form %v", form)
	}
}

func TestTwilioErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"code":21211,"message":"The 'To' number is not valid.","status":400}`)
	}))
	defer srv.Close()

	p := &Twilio{cfg: Config{APIKey: "AC42", APISecret: "tok", SenderID: "+1555", BaseURL: srv.URL}}
	res := p.Send(context.Background(), "9876543210", "x")
	if res.Success || !strings.Contains(res.Error, "not valid") {
		t.Fatalf("expected readable twilio error, got %+v", res)
	}
}

func TestTextlocalSend(t *testing.T) {
	var numbers string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		numbers = r.PostForm.Get("numbers")
		if r.PostForm.Get("apikey") != "k" {
			_, _ = io.WriteString(w, `{"errors":[{"code":3,"message":"Invalid login details"}],"status":"failure"}`)
			return
		}
		_, _ = io.WriteString(w, `{"status":"success","messages":[{"id":"1151346216","recipient":919876543210}]}`)
	}))
	defer srv.Close()

	ok := (&Textlocal{cfg: Config{APIKey: "k", BaseURL: srv.URL}}).Send(context.Background(), "9876543210", "hi")
	if !ok.Success || ok.MessageID != "1151346216" {
		t.Fatalf("expected success, got %+v", ok)
	}
	if numbers != "919876543210" {
		t.Fatalf("expected country code prefix, got %q", numbers)
	}

	bad := (&Textlocal{cfg: Config{APIKey: "wrong", BaseURL: srv.URL}}).Send(context.Background(), "9876543210", "hi")
	if bad.Success || !strings.Contains(bad.Error, "Invalid login details") {
		t.Fatalf("expected vendor failure, got %+v", bad)
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := &Fast2SMS{cfg: Config{APIKey: "k", BaseURL: url, Timeout: time.Second}}
	res := p.Send(context.Background(), "9876543210", "hello")
	if res.Success || res.Error == "" {
		t.Fatalf("expected transport failure, got %+v", res)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := (&MSG91{cfg: Config{APIKey: "k", BaseURL: "http://127.0.0.1:1"}}).Send(ctx, "9876543210", "x")
	if res.Success {
		t.Fatalf("cancelled send must fail")
	}
}

func TestConsoleProvider(t *testing.T) {
	c := NewConsole()
	res := c.Send(context.Background(), "98765-43210", "hello")
	if !res.Success || !strings.HasPrefix(res.MessageID, "console-") {
		t.Fatalf("unexpected result %+v", res)
	}
	if res := c.Send(context.Background(), "--", "hello"); res.Success {
		t.Fatalf("empty number must fail")
	}
	sent := c.Sent()
	if len(sent) != 1 || sent[0].Phone != "9876543210" {
		t.Fatalf("unexpected captured messages %+v", sent)
	}
}
