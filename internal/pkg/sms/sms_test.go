package sms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = RetryConfig{MaxAttempts: 3, Base: time.Millisecond}

func TestMSG91_Send(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v5/otp", r.URL.Path)

		assert.Equal(t, "key", r.Header.Get("authkey"))

		q := r.URL.Query()
		assert.Empty(t, q.Get("authkey"))
		assert.Equal(t, "tpl", q.Get("template_id"))
		assert.Equal(t, "919876543210", q.Get("mobile"))
		assert.Equal(t, "123456", q.Get("otp"))
		assert.Equal(t, "OTPGTE", q.Get("sender"))

		_, _ = w.Write([]byte(`{"type":"success","request_id":"abc"}`))
	}))
	defer srv.Close()

	m := NewMSG91(srv.Client(), MSG91Config{
		BaseURL:       srv.URL + "/",
		AuthKey:       "key",
		TemplateID:    "tpl",
		SenderID:      "OTPGTE",
		CountryPrefix: "91",
		Retry:         fastRetry,
	}, instrument.NewNoop())

	require.NoError(t, m.Send(context.Background(), "9876543210", "123456"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestMSG91_Rejected(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"type":"error","message":"invalid template"}`))
	}))
	defer srv.Close()

	m := NewMSG91(srv.Client(), MSG91Config{BaseURL: srv.URL, Retry: fastRetry}, instrument.NewNoop())

	err := m.Send(context.Background(), "9876543210", "123456")
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "invalid template")
	assert.Equal(t, int32(1), calls.Load())
}

func TestMSG91_UnreachableErrorHidesSecrets(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	m := NewMSG91(nil, MSG91Config{
		BaseURL:    addr,
		AuthKey:    "SECRETKEY",
		TemplateID: "tpl",
		Retry:      RetryConfig{MaxAttempts: 1, Base: time.Millisecond},
	}, instrument.NewNoop())

	err := m.Send(context.Background(), "9876543210", "428913")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.NotContains(t, err.Error(), "428913")
	assert.NotContains(t, err.Error(), "SECRETKEY")
	assert.NotContains(t, err.Error(), "9876543210")
}

func TestMSG91_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"type":"success"}`))
	}))
	defer srv.Close()

	m := NewMSG91(srv.Client(), MSG91Config{BaseURL: srv.URL, Retry: fastRetry}, instrument.NewNoop())

	require.NoError(t, m.Send(context.Background(), "9876543210", "123456"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestMSG91_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := NewMSG91(srv.Client(), MSG91Config{BaseURL: srv.URL, Retry: fastRetry}, instrument.NewNoop())

	err := m.Send(context.Background(), "9876543210", "123456")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestMSG91_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	m := NewMSG91(srv.Client(), MSG91Config{BaseURL: srv.URL, Retry: fastRetry}, instrument.NewNoop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := m.Send(ctx, "9876543210", "123456")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestTwilio_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)

		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "+919876543210", r.PostForm.Get("To"))
		assert.Equal(t, "+15005550006", r.PostForm.Get("From"))
		assert.Equal(t, "Your verification code is 654321", r.PostForm.Get("Body"))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer srv.Close()

	tw := NewTwilio(srv.Client(), TwilioConfig{
		BaseURL:       srv.URL,
		AccountSID:    "AC123",
		AuthToken:     "secret",
		From:          "+15005550006",
		CountryPrefix: "91",
		Retry:         fastRetry,
	}, instrument.NewNoop())

	require.NoError(t, tw.Send(context.Background(), "9876543210", "654321"))
}

func TestTwilio_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"The 'To' number is not a valid phone number."}`))
	}))
	defer srv.Close()

	tw := NewTwilio(srv.Client(), TwilioConfig{BaseURL: srv.URL, AccountSID: "AC123", Retry: fastRetry}, instrument.NewNoop())

	err := tw.Send(context.Background(), "9876543210", "654321")
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "21211")
}

func TestLog_Send(t *testing.T) {
	l := NewLog("")
	assert.NoError(t, l.Send(context.Background(), "9876543210", "123456"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Send(ctx, "9876543210", "123456"), context.Canceled)
}

func TestNewFromDriver(t *testing.T) {
	cfg, err := config.NewViperFromBytes("yaml", []byte(`
sms:
  country_prefix: "91"
  message: "Code: %s"
  retry:
    max_attempts: 4
    base_millis: 250
  msg91:
    auth_key: key
    template_id: tpl
  twilio:
    account_sid: AC1
    from: "+15550000000"
`))
	require.NoError(t, err)

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, "91", opts.MSG91.CountryPrefix)
	assert.Equal(t, "key", opts.MSG91.AuthKey)
	assert.Equal(t, RetryConfig{MaxAttempts: 4, Base: 250 * time.Millisecond}, opts.Twilio.Retry)
	assert.Equal(t, "Code: %s", opts.Twilio.Message)

	ins := instrument.NewNoop()

	s, err := NewFromDriver(" log ", nil, opts, ins)
	require.NoError(t, err)
	assert.IsType(t, &Log{}, s)

	s, err = NewFromDriver(DriverMSG91, nil, opts, ins)
	require.NoError(t, err)
	assert.IsType(t, &MSG91{}, s)

	s, err = NewFromDriver(DriverTwilio, nil, opts, ins)
	require.NoError(t, err)
	assert.IsType(t, &Twilio{}, s)

	_, err = NewFromDriver("carrier-pigeon", nil, opts, ins)
	require.ErrorIs(t, err, ErrUnknownDriver)
}
