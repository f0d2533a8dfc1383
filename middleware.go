package relay

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"gitlab.com/silenteer-oss/relay/log"
	"logur.dev/logur"
)

// NewMiddleware tags every request with a request id and a contextual
// logger, and logs completion with status and latency.
func NewMiddleware(name string, logger logur.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			t := time.Now()
			if r.Header == nil {
				r.Header = http.Header{}
			}
			requestID := r.Header.Get(XRequestId)
			if requestID == "" {
				requestID = uuid.New().String()
				r.Header.Set(XRequestId, requestID)
			}
			logWithId := log.WithFields(logger, map[string]interface{}{
				"id":     requestID,
				"method": r.Method,
				"url":    r.URL.Path,
			})

			logWithId.Debug(name + " server received request")

			ctx := r.Context()
			ctx = WithLogger(ctx, logWithId)
			ctx = WithRequestId(ctx, requestID)

			rp := NewCustomResponseWriter(w)
			rp.Header().Set(XRequestId, requestID)

			defer func() {
				logWithId.Info(name+" server request complete", map[string]interface{}{
					"status":     rp.StatusCode,
					"elapsed_ms": float64(time.Since(t).Nanoseconds()) / 1000000.0},
				)
			}()

			next.ServeHTTP(rp, r.WithContext(ctx))
		}
		return http.HandlerFunc(fn)
	}
}

// CustomResponseWriter records the status code written through it.
type CustomResponseWriter struct {
	w          http.ResponseWriter
	StatusCode int
}

func NewCustomResponseWriter(w http.ResponseWriter) *CustomResponseWriter {
	return &CustomResponseWriter{w: w, StatusCode: http.StatusOK}
}

func (c *CustomResponseWriter) Header() http.Header {
	return c.w.Header()
}

func (c *CustomResponseWriter) Write(b []byte) (int, error) {
	return c.w.Write(b)
}

func (c *CustomResponseWriter) WriteHeader(statusCode int) {
	c.w.WriteHeader(statusCode)
	c.StatusCode = statusCode
}

// Unwrap returns the underlying ResponseWriter.
func (c *CustomResponseWriter) Unwrap() http.ResponseWriter {
	return c.w
}
