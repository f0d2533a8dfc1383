package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	XRequestId       = "X-Request-Id"
	XLoggerId        = "X-LOGGER-ID"
	XRoutingArgs     = "X-ROUTING-ARGS"
	XRequest         = "X-REQUEST"
	UberTraceID      = "Uber-Trace-Id"
	contentType      = "Content-Type"
	contentLength    = "Content-Length"
	transferEncoding = "Transfer-Encoding"
	jsonContentType  = "application/json"
)

type contextKey string

// RoutingArgs is the router output attached to a request, shaped
// [positional, map[string]interface{}{"controller": .., "format": .., "action": .., pathVars..}].
type RoutingArgs []interface{}

// WithRoutingArgs returns a copy of ctx carrying the routing metadata.
func WithRoutingArgs(ctx context.Context, args RoutingArgs) context.Context {
	return context.WithValue(ctx, contextKey(XRoutingArgs), args)
}

// RoutingArgsFrom returns the routing metadata stored in ctx, nil if absent.
func RoutingArgsFrom(ctx context.Context) RoutingArgs {
	args, _ := ctx.Value(contextKey(XRoutingArgs)).(RoutingArgs)
	return args
}

// Request is one inbound exchange as seen by the dispatch pipeline.
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    io.ReadCloser

	ctx context.Context
}

// NewRequest wraps an incoming http request.
func NewRequest(r *http.Request) *Request {
	headers := r.Header
	if headers == nil {
		headers = http.Header{}
	}
	// net/http moves Transfer-Encoding out of the header map, and requests
	// built in process carry their length only in ContentLength
	if len(r.TransferEncoding) > 0 && headers.Get(transferEncoding) == "" {
		headers = headers.Clone()
		headers.Set(transferEncoding, strings.Join(r.TransferEncoding, ", "))
	}
	if r.ContentLength > 0 && headers.Get(contentLength) == "" {
		headers = headers.Clone()
		headers.Set(contentLength, strconv.FormatInt(r.ContentLength, 10))
	}
	return &Request{
		Method:  r.Method,
		URL:     r.URL.RequestURI(),
		Headers: headers,
		Body:    r.Body,
		ctx:     r.Context(),
	}
}

// Context returns the request context, never nil.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a shallow copy of r with its context changed to ctx.
func (r *Request) WithContext(ctx context.Context) *Request {
	r2 := *r
	r2.ctx = ctx
	return &r2
}

// RoutingArgs returns the routing metadata attached by the router.
func (r *Request) RoutingArgs() RoutingArgs {
	return RoutingArgsFrom(r.Context())
}

// ContentType validates the declared body type against supported.
func (r *Request) ContentType(supported ...string) (string, error) {
	return ContentType(r.Headers, supported)
}

// BestMatchContentType picks the response type from the Accept header.
func (r *Request) BestMatchContentType() string {
	return BestMatchContentType(r.Headers, []string{jsonContentType}, jsonContentType)
}

// ReadBody reads and closes the body. A nil body reads as empty.
func (r *Request) ReadBody() ([]byte, error) {
	if r.Body == nil {
		return []byte{}, nil
	}
	defer func() { _ = r.Body.Close() }()
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		return nil, errors.WithMessage(err, "Error reading body:")
	}
	return body, nil
}

// ---------------------------- Request builder code ------------------------------------

// RequestBuilder assembles a Request, mostly for tests and in-process callers.
type RequestBuilder struct {
	method  string
	headers http.Header
	body    []byte
	rawURL  string
	routing RoutingArgs
	ctx     context.Context
	err     error
}

func NewReqBuilder() *RequestBuilder {
	return &RequestBuilder{
		method:  http.MethodGet,
		headers: make(http.Header),
		rawURL:  "/",
	}
}

// Get sets the Request method to GET and sets the given pathURL.
func (r *RequestBuilder) Get(pathURL string) *RequestBuilder {
	r.method = http.MethodGet
	return r.Url(pathURL)
}

// Post sets the Request method to POST and sets the given pathURL.
func (r *RequestBuilder) Post(pathURL string) *RequestBuilder {
	r.method = http.MethodPost
	return r.Url(pathURL)
}

// Put sets the Request method to PUT and sets the given pathURL.
func (r *RequestBuilder) Put(pathURL string) *RequestBuilder {
	r.method = http.MethodPut
	return r.Url(pathURL)
}

// Delete sets the Request method to DELETE and sets the given pathURL.
func (r *RequestBuilder) Delete(pathURL string) *RequestBuilder {
	r.method = http.MethodDelete
	return r.Url(pathURL)
}

func (r *RequestBuilder) Url(url string) *RequestBuilder {
	r.rawURL = url
	return r
}

// SetHeader sets the key, value pair in Headers, replacing existing values
// associated with key. Header keys are canonicalized.
func (r *RequestBuilder) SetHeader(key, value string) *RequestBuilder {
	r.headers.Set(key, value)
	return r
}

// DelHeader removes key from Headers.
func (r *RequestBuilder) DelHeader(key string) *RequestBuilder {
	r.headers.Del(key)
	return r
}

// Body sets a raw body and its Content-Length.
func (r *RequestBuilder) Body(body []byte) *RequestBuilder {
	if body == nil {
		return r
	}
	r.body = body
	r.headers.Set(contentLength, strconv.Itoa(len(body)))
	return r
}

// BodyJSON encodes v as the body and sets a JSON content type. An encoding
// error is returned by Build.
func (r *RequestBuilder) BodyJSON(v interface{}) *RequestBuilder {
	b, err := json.Marshal(v)
	if err != nil {
		r.err = errors.WithMessage(err, "request body")
		return r
	}
	r.headers.Set(contentType, jsonContentType)
	return r.Body(b)
}

// Routing attaches router output to the built request.
func (r *RequestBuilder) Routing(args RoutingArgs) *RequestBuilder {
	r.routing = args
	return r
}

func (r *RequestBuilder) Context(ctx context.Context) *RequestBuilder {
	r.ctx = ctx
	return r
}

func (r *RequestBuilder) Build() (*Request, error) {
	if r.err != nil {
		return nil, r.err
	}
	if _, err := url.Parse(r.rawURL); err != nil {
		return nil, errors.New("invalid url " + r.rawURL)
	}
	ctx := r.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if r.routing != nil {
		ctx = WithRoutingArgs(ctx, r.routing)
	}
	var body io.ReadCloser
	if r.body != nil {
		body = ioutil.NopCloser(bytes.NewReader(r.body))
	}
	return &Request{
		Method:  r.method,
		URL:     r.rawURL,
		Headers: r.headers,
		Body:    body,
		ctx:     ctx,
	}, nil
}
