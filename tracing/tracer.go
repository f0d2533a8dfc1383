// Package tracing starts a server span for each HTTP request and hands it to
// the handlers through the request context.
package tracing

import (
	"io"
	"net/http"
	"os"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"github.com/uber/jaeger-lib/metrics"
	"logur.dev/logur"

	jaegercfg "github.com/uber/jaeger-client-go/config"

	"gitlab.com/silenteer-oss/relay"
)

const JAEGER_SERVICE_NAME = "JAEGER_SERVICE_NAME"

// InitTracing builds a jaeger tracer from the JAEGER_* environment, registers
// it as the global tracer and returns the closer that flushes it.
func InitTracing(serviceName string, logger logur.Logger) (opentracing.Tracer, io.Closer, error) {
	if os.Getenv(JAEGER_SERVICE_NAME) == "" {
		_ = os.Setenv(JAEGER_SERVICE_NAME, serviceName)
	}

	cfg, err := jaegercfg.FromEnv()
	if err != nil {
		return nil, nil, errors.WithMessage(err, "could not parse jaeger env vars")
	}

	tracer, closer, err := cfg.NewTracer(
		jaegercfg.Logger(newLogger(logger)),
		jaegercfg.Metrics(metrics.NullFactory),
	)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "couldn't setup tracing")
	}
	opentracing.SetGlobalTracer(tracer)
	return tracer, closer, nil
}

// StartSpan starts a span for an inbound request, as a child of the span
// propagated in header when there is one. The new span context is injected
// back into header for downstream calls.
func StartSpan(tracer opentracing.Tracer, header http.Header, operation string) opentracing.Span {
	var span opentracing.Span
	parent, err := tracer.Extract(opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(header))
	if err == nil {
		span = tracer.StartSpan(operation, ext.RPCServerOption(parent))
	} else {
		span = tracer.StartSpan(operation, ext.SpanKindRPCServer)
	}

	if id := header.Get(relay.XRequestId); id != "" {
		span.SetTag(relay.XRequestId, id)
	}
	_ = tracer.Inject(span.Context(), opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(header))
	return span
}

// Middleware traces every request with tracer. The span is tagged with the
// method, url and response status, and marked as an error on 5xx.
func Middleware(tracer opentracing.Tracer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			span := StartSpan(tracer, r.Header, r.Method+" "+r.URL.Path)
			defer span.Finish()

			ext.HTTPMethod.Set(span, r.Method)
			ext.HTTPUrl.Set(span, r.URL.String())

			rw := relay.NewCustomResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(opentracing.ContextWithSpan(r.Context(), span)))

			ext.HTTPStatusCode.Set(span, uint16(rw.StatusCode))
			if rw.StatusCode >= http.StatusInternalServerError {
				ext.Error.Set(span, true)
			}
		})
	}
}
