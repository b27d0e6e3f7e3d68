package sms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
)

// ErrUnknownDriver indicates an unsupported sms driver.
var ErrUnknownDriver = errors.New("sms: unknown driver")

// SMS delivers a verification code to a phone number.
type SMS interface {
	Send(ctx context.Context, phone, code string) error
}

// FactoryOptions groups config for supported sms providers.
type FactoryOptions struct {
	Message string
	MSG91   MSG91Config
	Twilio  TwilioConfig
}

// OptionsFromConfig reads provider settings from the "sms" config tree.
func OptionsFromConfig(cfg config.Config) FactoryOptions {
	prefix := cfg.GetString("sms.country_prefix")
	rc := RetryConfig{
		MaxAttempts: cfg.GetInt("sms.retry.max_attempts"),
		Base:        time.Duration(cfg.GetInt("sms.retry.base_millis")) * time.Millisecond,
	}

	return FactoryOptions{
		Message: cfg.GetString("sms.message"),
		MSG91: MSG91Config{
			BaseURL:       cfg.GetString("sms.msg91.base_url"),
			AuthKey:       cfg.GetString("sms.msg91.auth_key"),
			TemplateID:    cfg.GetString("sms.msg91.template_id"),
			SenderID:      cfg.GetString("sms.msg91.sender_id"),
			CountryPrefix: prefix,
			Retry:         rc,
		},
		Twilio: TwilioConfig{
			BaseURL:       cfg.GetString("sms.twilio.base_url"),
			AccountSID:    cfg.GetString("sms.twilio.account_sid"),
			AuthToken:     cfg.GetString("sms.twilio.auth_token"),
			From:          cfg.GetString("sms.twilio.from"),
			Message:       cfg.GetString("sms.message"),
			CountryPrefix: prefix,
			Retry:         rc,
		},
	}
}

// NewFromDriver constructs an SMS implementation by driver name.
func NewFromDriver(driver string, client *http.Client, opts FactoryOptions, ins instrument.Instrumentation) (SMS, error) {
	switch strings.TrimSpace(driver) {
	case DriverLog:
		return NewLog(opts.Message), nil
	case DriverMSG91:
		return NewMSG91(client, opts.MSG91, ins), nil
	case DriverTwilio:
		return NewTwilio(client, opts.Twilio, ins), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
