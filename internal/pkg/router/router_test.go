package router

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedUUID string

func (f fixedUUID) Generate() string { return string(f) }

func newTestRouter(t *testing.T, yaml string) (*Router, jwt.JWT) {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte(yaml))
	require.NoError(t, err)

	verifier, err := jwt.NewHS512(jwt.Config{
		Secret: []byte(strings.Repeat("s", 64)),
		Issuer: "otpgate",
		Clock:  clock.New(),
		UUID:   fixedUUID("jti-1"),
	})
	require.NoError(t, err)

	return NewRouter(Config{Config: cfg, UUID: fixedUUID("cid-generated"), JWT: verifier}), verifier
}

func serve(r http.Handler, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

type echoResponse struct {
	Value string `json:"value"`
}

func (echoResponse) Message() string { return "echoed" }

func TestRouter_Envelope(t *testing.T) {
	r, _ := newTestRouter(t, "app: {}")
	r.POST("/auth/phone/send-code", func(req *Request) (any, error) {
		var in struct {
			PhoneNumber string `json:"phoneNumber"`
		}
		if err := req.DecodeBody(&in); err != nil {
			return nil, err
		}
		if in.PhoneNumber == "limit" {
			return nil, goerror.NewTooManyRequest("Too many requests", 1500*time.Millisecond)
		}
		if in.PhoneNumber == "boom" {
			return nil, errors.New("db down")
		}
		return echoResponse{Value: in.PhoneNumber}, nil
	})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantBody   map[string]any
		retryAfter string
	}{
		{
			name:       "success flattens payload",
			body:       `{"phoneNumber":"9876543210"}`,
			wantStatus: http.StatusOK,
			wantBody:   map[string]any{"success": true, "message": "echoed", "value": "9876543210"},
		},
		{
			name:       "unknown field",
			body:       `{"phone":"9876543210"}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]any{"success": false, "message": "Invalid request body"},
		},
		{
			name:       "trailing data",
			body:       `{"phoneNumber":"1"} {}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]any{"success": false, "message": "Invalid request body"},
		},
		{
			name:       "rate limited rounds retry up",
			body:       `{"phoneNumber":"limit"}`,
			wantStatus: http.StatusTooManyRequests,
			wantBody:   map[string]any{"success": false, "message": "Too many requests"},
			retryAfter: "2",
		},
		{
			name:       "opaque error",
			body:       `{"phoneNumber":"boom"}`,
			wantStatus: http.StatusInternalServerError,
			wantBody:   map[string]any{"success": false, "message": "Internal server error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := serve(r, http.MethodPost, "/auth/phone/send-code", tt.body, nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, body)
			assert.Equal(t, tt.retryAfter, rec.Header().Get("Retry-After"))
			assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
		})
	}
}

func TestRouter_Fallbacks(t *testing.T) {
	r, _ := newTestRouter(t, "app: {}")

	rec, body := serve(r, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	rec, body = serve(r, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "endpoint not found", body["message"])

	rec, _ = serve(r, http.MethodDelete, "/", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_Authentication(t *testing.T) {
	r, verifier := newTestRouter(t, "app: {}")
	r.GET("/auth/session", func(req *Request) (any, error) {
		return map[string]string{"phone": jwt.GetAuth(req.Context()).PhoneNumber}, nil
	})

	rec, body := serve(r, http.MethodGet, "/auth/session", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authentication required", body["message"])

	rec, body = serve(r, http.MethodGet, "/auth/session", "", map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid or expired token", body["message"])

	token, err := verifier.Generate("9876543210")
	require.NoError(t, err)

	rec, body = serve(r, http.MethodGet, "/auth/session", "", map[string]string{"Authorization": "bearer " + token})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "9876543210", body["phone"])
}

func TestRouter_Maintenance(t *testing.T) {
	r, _ := newTestRouter(t, `app: {maintenance: {endpoints: ["/health"]}}`)
	r.GET("/health", func(*Request) (any, error) { return map[string]string{"status": "ok"}, nil })

	rec, body := serve(r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Service is under maintenance", body["message"])
}

func TestRouter_RecoversPanic(t *testing.T) {
	r, _ := newTestRouter(t, "app: {}")
	r.GET("/health", func(*Request) (any, error) { panic("boom") })

	rec, body := serve(r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", body["message"])
}

func TestRouter_CorrelationAndClientIP(t *testing.T) {
	r, _ := newTestRouter(t, `app: {server: {trusted_proxies: ["192.0.2.0/24", "10.0.0.0/8"]}}`)
	r.GET("/health", func(req *Request) (any, error) {
		return map[string]string{"ip": req.ClientIP()}, nil
	})

	rec, body := serve(r, http.MethodGet, "/health", "", map[string]string{
		"X-Request-ID":    "from-proxy",
		"X-Forwarded-For": "203.0.113.9, 10.0.0.1",
	})
	assert.Equal(t, "from-proxy", rec.Header().Get(HeaderCorrelationID))
	assert.Equal(t, "203.0.113.9", body["ip"])

	rec, body = serve(r, http.MethodGet, "/health", "", map[string]string{"X-Real-IP": "not-an-ip"})
	assert.Equal(t, "cid-generated", rec.Header().Get(HeaderCorrelationID))
	assert.Equal(t, "192.0.2.1", body["ip"])
}

func TestRouter_ClientIP(t *testing.T) {
	tests := []struct {
		name    string
		trusted string
		remote  string
		header  map[string]string
		want    string
	}{
		{
			name:   "UntrustedPeerHeadersIgnored",
			remote: "198.51.100.4:5000",
			header: map[string]string{"X-Real-IP": "203.0.113.9", "X-Forwarded-For": "203.0.113.9"},
			want:   "198.51.100.4",
		},
		{
			name:    "TrustedPeerRealIP",
			trusted: `["198.51.100.4"]`,
			remote:  "198.51.100.4:5000",
			header:  map[string]string{"X-Real-IP": "203.0.113.9"},
			want:    "203.0.113.9",
		},
		{
			name:    "ForwardedForSkipsTrustedHops",
			trusted: `["198.51.100.0/24", "10.0.0.0/8"]`,
			remote:  "198.51.100.4:5000",
			header:  map[string]string{"X-Forwarded-For": "1.1.1.1, 203.0.113.9, 10.1.2.3"},
			want:    "203.0.113.9",
		},
		{
			name:    "ForwardedForGarbageFallsBackToPeer",
			trusted: `["198.51.100.4"]`,
			remote:  "198.51.100.4:5000",
			header:  map[string]string{"X-Forwarded-For": "unknown"},
			want:    "198.51.100.4",
		},
		{
			name:    "InvalidEntriesIgnored",
			trusted: `["not-a-cidr"]`,
			remote:  "[2001:db8::1]:5000",
			header:  map[string]string{"X-Real-IP": "203.0.113.9"},
			want:    "2001:db8::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yaml := "app: {}"
			if tt.trusted != "" {
				yaml = "app: {server: {trusted_proxies: " + tt.trusted + "}}"
			}
			r, _ := newTestRouter(t, yaml)
			r.GET("/health", func(req *Request) (any, error) {
				return map[string]string{"ip": req.ClientIP()}, nil
			})

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body["ip"])
		})
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }),
		mw("outer"), nil, mw("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
