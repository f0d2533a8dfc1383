package nats

import (
	"net/http"
)

// Response is an HTTP response carried back in a NATS reply. It is also the
// http.ResponseWriter the bridged handler writes into.
type Response struct {
	Status     string      `json:"reason"` // e.g. "200 OK"
	StatusCode int         `json:"code"`   // e.g. 200
	Headers    http.Header `json:"headers"`
	Body       []byte      `json:"body"`

	wroteHeader bool
}

func NewResponse() *Response {
	return &Response{StatusCode: http.StatusOK, Headers: http.Header{}}
}

func (r *Response) Header() http.Header {
	return r.Headers
}

func (r *Response) Write(p []byte) (n int, err error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.Body = append(r.Body, p...)
	return len(p), nil
}

func (r *Response) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.StatusCode = code
	r.Status = http.StatusText(code)
}

func (r *Response) Flush() {
}
