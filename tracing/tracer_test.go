package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/silenteer-oss/relay"
)

func TestMiddlewareRecordsSpan(t *testing.T) {
	tracer := mocktracer.New()
	var inner opentracing.Span
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = opentracing.SpanFromContext(r.Context())
		w.WriteHeader(http.StatusBadGateway)
	})
	r := httptest.NewRequest(http.MethodGet, "/images/1", nil)
	r.Header.Set(relay.XRequestId, "req-1")

	Middleware(tracer)(next).ServeHTTP(httptest.NewRecorder(), r)

	spans := tracer.FinishedSpans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.NotNil(t, inner)
	assert.Equal(t, "GET /images/1", span.OperationName)
	assert.Equal(t, "GET", span.Tag("http.method"))
	assert.Equal(t, uint16(http.StatusBadGateway), span.Tag("http.status_code"))
	assert.Equal(t, true, span.Tag("error"))
	assert.Equal(t, "req-1", span.Tag(relay.XRequestId))
}

func TestStartSpanContinuesPropagatedTrace(t *testing.T) {
	tracer := mocktracer.New()
	parent := tracer.StartSpan("client")
	header := http.Header{}
	require.NoError(t, tracer.Inject(parent.Context(), opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(header)))

	span := StartSpan(tracer, header, "server")
	span.Finish()

	child := span.(*mocktracer.MockSpan)
	assert.Equal(t, parent.(*mocktracer.MockSpan).SpanContext.TraceID, child.SpanContext.TraceID)
	assert.Equal(t, parent.(*mocktracer.MockSpan).SpanContext.SpanID, child.ParentID)
}

func TestStartSpanWithoutParent(t *testing.T) {
	tracer := mocktracer.New()

	span := StartSpan(tracer, http.Header{}, "server")
	span.Finish()

	assert.Equal(t, 0, span.(*mocktracer.MockSpan).ParentID)
}
