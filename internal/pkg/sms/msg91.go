package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
)

// MSG91Config configures the templated OTP provider.
type MSG91Config struct {
	BaseURL       string
	AuthKey       string
	TemplateID    string
	SenderID      string
	CountryPrefix string
	Retry         RetryConfig
}

// MSG91 sends codes through the MSG91 OTP template API.
type MSG91 struct {
	client *http.Client
	cfg    MSG91Config
	ins    instrument.Instrumentation
}

type msg91Response struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewMSG91(client *http.Client, cfg MSG91Config, ins instrument.Instrumentation) *MSG91 {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.msg91.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &MSG91{client: client, cfg: cfg, ins: ins}
}

func (m *MSG91) Send(ctx context.Context, phone, code string) (err error) {
	ctx, span := startSpan(ctx, m.ins, "MSG91.Send")
	defer func() { endSpan(span, err) }()

	q := url.Values{}
	q.Set("template_id", m.cfg.TemplateID)
	q.Set("mobile", m.cfg.CountryPrefix+phone)
	q.Set("otp", code)
	if m.cfg.SenderID != "" {
		q.Set("sender", m.cfg.SenderID)
	}
	endpoint := m.cfg.BaseURL + "/api/v5/otp?" + q.Encode()

	return doWithRetry(ctx, m.client, m.cfg.Retry,
		func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, http.NoBody)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "application/json")
			req.Header.Set("authkey", m.cfg.AuthKey)
			return req, nil
		},
		func(status int, body []byte) error {
			var resp msg91Response
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("%w: status %d: unreadable body", ErrRejected, status)
			}
			if status/100 != 2 || resp.Type != "success" {
				return fmt.Errorf("%w: status %d: %s", ErrRejected, status, resp.Message)
			}
			return nil
		},
	)
}
