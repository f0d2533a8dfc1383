package relay

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
)

// Response is the status, headers and body handed back to the transport.
type Response struct {
	StatusCode int         `json:"code"`
	Headers    http.Header `json:"headers"`
	Body       []byte      `json:"body"`
}

// NewResponse returns an empty 200 response.
func NewResponse() *Response {
	return &Response{StatusCode: http.StatusOK, Headers: http.Header{}}
}

// SetContentType replaces any Content-Type header with value.
func (r *Response) SetContentType(value string) {
	if r.Headers == nil {
		r.Headers = http.Header{}
	}
	r.Headers.Set(contentType, value)
}

// WriteTo copies the response onto w. Headers first, then status, then body.
func (r *Response) WriteTo(w http.ResponseWriter) error {
	for name, values := range r.Headers {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}

	status := r.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if r.Body != nil {
		if _, err := w.Write(r.Body); err != nil {
			return errors.WithMessage(err, "Writing response error")
		}
	}
	return nil
}

// ----------------- response builder code ----------------------

// BodyProvider provides Body content for a response.
type BodyProvider interface {
	// ContentType returns the Content-Type of the body.
	ContentType() string
	// Body returns the encoded body.
	Body() ([]byte, error)
}

type byteBodyProvider struct {
	body []byte
}

func (p byteBodyProvider) ContentType() string {
	return ""
}

func (p byteBodyProvider) Body() ([]byte, error) {
	return p.body, nil
}

type jsonBodyProvider struct {
	payload interface{}
}

func (p jsonBodyProvider) ContentType() string {
	return jsonContentType
}

func (p jsonBodyProvider) Body() ([]byte, error) {
	buf := &bytes.Buffer{}
	err := json.NewEncoder(buf).Encode(p.payload)
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

type ResponseBuilder struct {
	statusCode int

	headers http.Header

	bodyProvider BodyProvider
}

func NewResBuilder() *ResponseBuilder {
	rq := &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(http.Header),
	}
	rq.SetContentType(jsonContentType)
	return rq
}

func (r *ResponseBuilder) AddHeader(key, value string) *ResponseBuilder {
	r.headers.Add(key, value)
	return r
}

func (r *ResponseBuilder) SetHeader(key, value string) *ResponseBuilder {
	r.headers.Set(key, value)
	return r
}

func (r *ResponseBuilder) SetContentType(value string) {
	r.SetHeader(contentType, value)
}

func (r *ResponseBuilder) Body(body []byte) *ResponseBuilder {
	if body == nil {
		return r
	}
	return r.BodyProvider(byteBodyProvider{body: body})
}

func (r *ResponseBuilder) StatusCode(status int) *ResponseBuilder {
	r.statusCode = status
	return r
}

// BodyProvider sets the ResponseBuilder's body provider.
func (r *ResponseBuilder) BodyProvider(body BodyProvider) *ResponseBuilder {
	if body == nil {
		return r
	}
	r.bodyProvider = body

	ct := body.ContentType()
	if ct != "" {
		r.SetHeader(contentType, ct)
	}

	return r
}

func (r *ResponseBuilder) BodyJSON(bodyJSON interface{}) *ResponseBuilder {
	if bodyJSON == nil {
		return r
	}
	return r.BodyProvider(jsonBodyProvider{payload: bodyJSON})
}

func (r *ResponseBuilder) Build() *Response {
	var body []byte
	var err error
	if r.bodyProvider != nil {
		body, err = r.bodyProvider.Body()
		if err != nil {
			return &Response{StatusCode: http.StatusInternalServerError, Headers: r.headers, Body: []byte("Invalid body return")}
		}
	}
	return &Response{StatusCode: r.statusCode, Headers: r.headers, Body: body}
}
