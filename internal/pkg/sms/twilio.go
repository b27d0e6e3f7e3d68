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

// TwilioConfig configures the direct-message provider.
type TwilioConfig struct {
	BaseURL       string
	AccountSID    string
	AuthToken     string
	From          string
	Message       string
	CountryPrefix string
	Retry         RetryConfig
}

// Twilio sends the code as a plain text message.
type Twilio struct {
	client *http.Client
	cfg    TwilioConfig
	ins    instrument.Instrumentation
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewTwilio(client *http.Client, cfg TwilioConfig, ins instrument.Instrumentation) *Twilio {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	if cfg.Message == "" {
		cfg.Message = DefaultMessage
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Twilio{client: client, cfg: cfg, ins: ins}
}

func (t *Twilio) Send(ctx context.Context, phone, code string) (err error) {
	ctx, span := startSpan(ctx, t.ins, "Twilio.Send")
	defer func() { endSpan(span, err) }()

	endpoint := t.cfg.BaseURL + "/2010-04-01/Accounts/" + url.PathEscape(t.cfg.AccountSID) + "/Messages.json"
	form := url.Values{}
	form.Set("To", "+"+t.cfg.CountryPrefix+phone)
	form.Set("From", t.cfg.From)
	form.Set("Body", fmt.Sprintf(t.cfg.Message, code))
	payload := form.Encode()

	return doWithRetry(ctx, t.client, t.cfg.Retry,
		func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload))
			if err != nil {
				return nil, err
			}
			req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.Header.Set("Accept", "application/json")
			return req, nil
		},
		func(status int, body []byte) error {
			if status/100 == 2 {
				return nil
			}
			var te twilioError
			_ = json.Unmarshal(body, &te)
			return fmt.Errorf("%w: status %d: code %d: %s", ErrRejected, status, te.Code, te.Message)
		},
	)
}
