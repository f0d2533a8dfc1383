package nats

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
)

// Request is an HTTP request carried in a NATS message.
type Request struct {
	Method  string      `json:"method"`
	Headers http.Header `json:"headers"`
	Body    []byte      `json:"body"`
	URL     string      `json:"url"`
	Subject string      `json:"subject"`
}

// ToHttpRequest rebuilds the HTTP request. The Content-Length header is set
// from the carried body, as a wire request would have it.
func (rq *Request) ToHttpRequest(ctx context.Context) (*http.Request, error) {
	method := rq.Method
	if method == "" {
		method = http.MethodGet
	}

	request, err := http.NewRequestWithContext(ctx, method, rq.URL, bytes.NewReader(rq.Body))
	if err != nil {
		return nil, errors.WithMessage(err, "nats: something wrong with creating the request")
	}
	// keys from non-Go publishers are not canonical
	for name, values := range rq.Headers {
		for _, value := range values {
			request.Header.Add(name, value)
		}
	}
	if len(rq.Body) > 0 {
		request.Header.Set("Content-Length", strconv.Itoa(len(rq.Body)))
	} else {
		request.Header.Del("Content-Length")
	}
	return request, nil
}
