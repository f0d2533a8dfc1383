package relay_test

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"gitlab.com/silenteer-oss/relay"
	"gitlab.com/silenteer-oss/relay/log"
)

func TestMiddlewareAssignsRequestId(t *testing.T) {
	var seenId string
	var seenLogger bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := relay.NewContext(r.Context())
		seenId = c.RequestId()
		seenLogger = c.Logger() != nil
		w.WriteHeader(http.StatusTeapot)
	})
	var out bytes.Buffer
	logger := log.NewLoggerWithOutput(log.Config{Format: "json", Level: "info"}, &out)

	rec := newRecorder()
	relay.NewMiddleware("Http", logger)(next).ServeHTTP(rec, newHTTPRequest(http.MethodGet, "/images"))

	assert.NotEmpty(t, seenId)
	assert.True(t, seenLogger)
	assert.Equal(t, seenId, rec.Header().Get(relay.XRequestId))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, out.String(), `"status":418`)
	assert.Contains(t, out.String(), seenId)
}

func TestMiddlewareKeepsIncomingRequestId(t *testing.T) {
	var seenId string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenId = relay.NewContext(r.Context()).RequestId()
	})
	r := newHTTPRequest(http.MethodGet, "/")
	r.Header.Set(relay.XRequestId, "abc-123")

	rec := newRecorder()
	relay.NewMiddleware("Http", relay.GetLogger())(next).ServeHTTP(rec, r)

	assert.Equal(t, "abc-123", seenId)
	assert.Equal(t, "abc-123", rec.Header().Get(relay.XRequestId))
}

func TestCustomResponseWriterDefaultsToOK(t *testing.T) {
	rec := newRecorder()
	w := relay.NewCustomResponseWriter(rec)
	_, _ = w.Write([]byte("x"))
	assert.Equal(t, http.StatusOK, w.StatusCode)
	assert.Equal(t, rec, w.Unwrap())
}
