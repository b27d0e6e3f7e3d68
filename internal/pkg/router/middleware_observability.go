package router

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/julienschmidt/httprouter"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// bodyLogLimit caps how much of a request or response body is logged.
const bodyLogLimit = 16 << 10

const redacted = "***"

var errHijackUnsupported = errors.New("router: hijack not supported")

// sensitiveFields are redacted from access logs whatever the config says.
var sensitiveFields = []string{"code", "otp", "token", "authorization"}

type redactor map[string]struct{}

func newRedactor(cfg config.Config) redactor {
	rd := redactor{}
	for _, f := range sensitiveFields {
		rd[f] = struct{}{}
	}
	if cfg == nil {
		return rd
	}
	for _, f := range cfg.GetArray("instrument.log_mask_fields") {
		rd[strings.ToLower(f)] = struct{}{}
	}
	return rd
}

func (rd redactor) hides(key string) bool {
	_, ok := rd[strings.ToLower(key)]
	return ok
}

func (rd redactor) headers(h http.Header) http.Header {
	out := h.Clone()
	for k := range out {
		if rd.hides(k) {
			out.Set(k, redacted)
		}
	}
	return out
}

func (rd redactor) value(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if rd.hides(k) {
				out[k] = redacted
				continue
			}
			out[k] = rd.value(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = rd.value(inner)
		}
		return out
	default:
		return v
	}
}

// body renders a captured payload for logging: JSON is decoded and redacted,
// other text is logged as is, binary is omitted.
func (rd redactor) body(raw []byte, truncated bool) any {
	if len(raw) == 0 {
		return nil
	}

	var out any
	var decoded any
	switch {
	case json.Unmarshal(raw, &decoded) == nil:
		out = rd.value(decoded)
	case utf8.Valid(raw):
		out = string(raw)
	default:
		out = "<binary>"
	}

	if truncated {
		return map[string]any{"body": out, "truncated": true}
	}
	return out
}

// peekBody copies up to bodyLogLimit bytes of the request body and leaves
// the full stream readable for the handler.
func peekBody(r *http.Request) ([]byte, bool) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, false
	}

	//nolint:errcheck // logging only
	head, _ := io.ReadAll(io.LimitReader(r.Body, bodyLogLimit+1))
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(head), r.Body))

	if len(head) > bodyLogLimit {
		return head[:bodyLogLimit], true
	}
	return head, false
}

// recorder captures status, size, a bounded copy of the body and the
// handler error of a response.
type recorder struct {
	http.ResponseWriter
	status    int
	size      int
	buf       bytes.Buffer
	truncated bool
	err       error
}

func (rec *recorder) WriteHeader(code int) {
	if rec.status == 0 {
		rec.status = code
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *recorder) Write(p []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}

	if room := bodyLogLimit - rec.buf.Len(); room < len(p) {
		rec.buf.Write(p[:max(room, 0)])
		rec.truncated = true
	} else {
		rec.buf.Write(p)
	}

	n, err := rec.ResponseWriter.Write(p)
	rec.size += n
	return n, err
}

// SetError is called by endpoint handlers so the span records the cause.
func (rec *recorder) SetError(err error) { rec.err = err }

func (rec *recorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rec *recorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rec.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errHijackUnsupported
}

func (rec *recorder) statusCode() int {
	if rec.status == 0 {
		return http.StatusOK
	}
	return rec.status
}

func routeOf(r *http.Request) string {
	if p := httprouter.ParamsFromContext(r.Context()).MatchedRoutePath(); p != "" {
		return p
	}
	return r.URL.Path
}

func middlewareObservability(cfg config.Config, ins instrument.Instrumentation) Middleware {
	rd := newRedactor(cfg)
	tracer := ins.Tracer("http.server")
	meter := ins.Meter("http.server")

	requests, err := meter.Int64Counter("http.server.requests", metric.WithDescription("HTTP requests served"))
	if err != nil {
		slog.Error("failed to create http request counter", "error", err)
	}
	latency, err := meter.Float64Histogram("http.server.duration", metric.WithDescription("HTTP request duration"), metric.WithUnit("ms"))
	if err != nil {
		slog.Error("failed to create http duration histogram", "error", err)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := routeOf(r)

			ctx, span := tracer.Start(r.Context(), r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.HTTPRouteKey.String(route),
					semconv.ServerAddressKey.String(r.Host),
					semconv.UserAgentOriginalKey.String(r.UserAgent()),
				),
			)
			defer span.End()

			reqBody, reqTruncated := peekBody(r)
			slog.InfoContext(ctx, "request received",
				"method", r.Method,
				"path", route,
				"uri", r.RequestURI,
				"headers", rd.headers(r.Header),
				"body", rd.body(reqBody, reqTruncated),
			)

			rec := &recorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(ctx))

			status := rec.statusCode()
			elapsed := time.Since(start)
			attrs := metric.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.HTTPRouteKey.String(route),
				semconv.HTTPResponseStatusCodeKey.Int(status),
			)

			span.SetAttributes(
				semconv.HTTPResponseStatusCodeKey.Int(status),
				attribute.Int("http.response_content_length", rec.size),
			)
			if rec.err != nil {
				span.RecordError(rec.err)
			}
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}

			if requests != nil {
				requests.Add(ctx, 1, attrs)
			}
			if latency != nil {
				latency.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
			}

			slog.InfoContext(ctx, "response sent",
				"method", r.Method,
				"path", route,
				"status", status,
				"bytes", rec.size,
				"latency_ms", elapsed.Milliseconds(),
				"body", rd.body(rec.buf.Bytes(), rec.truncated),
			)
		})
	}
}
