package middleware

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"feeshare/observability"
)

// RequestIDHeader is echoed on every response.
const RequestIDHeader = "X-Request-ID"

const contextKeyRequestID contextKey = "feeshare.request_id"

// Observability records request metrics, assigns request IDs and opens a
// server span per request.
type Observability struct {
	service string
	logger  *slog.Logger
	now     func() time.Time
}

// NewObservability constructs the middleware for service.
func NewObservability(service string, logger *slog.Logger) *Observability {
	if logger == nil {
		logger = slog.Default()
	}
	if service == "" {
		service = "feeshared"
	}
	return &Observability{service: service, logger: logger.With(slog.String("component", "http")), now: time.Now}
}

// Trace wraps the whole handler in an otelhttp server span.
func (o *Observability) Trace(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, o.service)
}

// Middleware instruments requests served under module.
func (o *Observability) Middleware(module string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := o.now()
			requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)
			ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))

			duration := o.now().Sub(start)
			observability.ModuleMetrics().Observe(module, r.Method, recorder.status, duration)
			o.logger.Debug("request served",
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", recorder.status),
				slog.Duration("duration", duration))
		})
	}
}

// RequestIDFrom returns the request ID assigned by Middleware.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// Hijack supports websocket upgrades.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("middleware: response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
