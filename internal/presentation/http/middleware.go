package httppresentation

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/storefront-go/storefront/internal/application/auth"
	"github.com/storefront-go/storefront/internal/observability"
	"github.com/storefront-go/storefront/internal/observability/logctx"
)

const headerRequestID = "X-Request-ID"

// RateLimiter throttles requests per caller key. Implementations decide the
// window semantics.
type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
}

type routeKey struct{}

// contextWithRoute stores the stable route template so downstream metrics
// and logging get low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}

type principalKey struct{}

func contextWithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(auth.Principal)
	return p, ok
}

// withTrace starts a server span from the incoming W3C trace context.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer("storefront.http")
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		spanName := route
		if spanName == "unknown" {
			spanName = r.Method + " " + r.URL.Path
		}

		ctxWithSpan, span := tracer.Start(parentCtx,
			spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctxWithSpan))
	})
}

// withRequestLogger injects a request-scoped logger carrying the request id
// and, when sampled, the trace ids. Dynamic fields only; fixed fields belong
// to the base logger.
func (h *Handler) withRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		rid := r.Header.Get(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set(headerRequestID, rid)

		fields := []observability.Field{observability.F("request_id", rid)}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		ctx = logctx.With(ctx, h.log.With(fields...))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withHTTPMetrics records request count and duration against pre-registered
// vectors. Never create metrics inside the middleware.
func (h *Handler) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		route := routeFromContext(r.Context())
		h.httpRequests.Add(1,
			observability.L("route", route),
			observability.L("method", r.Method),
			observability.L("code", strconv.Itoa(lrw.status)),
		)
		h.httpDuration.Observe(time.Since(start).Seconds(),
			observability.L("route", route),
			observability.L("method", r.Method),
		)
	})
}

// withAccessLog writes a single access log line after the handler completes.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withRateLimit throttles by authenticated subject when available, client
// address otherwise.
func (h *Handler) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := clientKey(r)
		if !h.limiter.Allow(r.Context(), key) {
			h.rateLimited.Add(1, observability.L("route", routeFromContext(r.Context())))
			w.Header().Set("Retry-After", "60")
			writeErrorCode(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withAuth verifies the bearer token and stores the principal. adminOnly
// additionally requires the admin role.
func (h *Handler) withAuth(adminOnly bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeErrorCode(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing bearer token")
			return
		}
		principal, err := h.auth.Verify(raw)
		if err != nil {
			writeErrorCode(w, http.StatusUnauthorized, "UNAUTHENTICATED", err.Error())
			return
		}
		if adminOnly && !principal.IsAdmin() {
			writeErrorCode(w, http.StatusForbidden, "FORBIDDEN", "admin role required")
			return
		}

		ctx := contextWithPrincipal(r.Context(), principal)
		ctx = logctx.With(ctx, logctx.FromOr(ctx, h.log).With(observability.F("subject", principal.Subject)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	raw := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(raw) > len(prefix) && strings.EqualFold(raw[:len(prefix)], prefix) {
		return raw[len(prefix):]
	}
	return ""
}

func clientKey(r *http.Request) string {
	if p, ok := principalFromContext(r.Context()); ok {
		return p.Subject
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
