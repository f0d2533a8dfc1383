package relay

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// DefaultJsonError is the body rendered for faults and unexpected errors.
type DefaultJsonError struct {
	Message string              `json:"message"`
	Code    int                 `json:"code"`
	TraceId string              `json:"traceId,omitempty"`
	Links   map[string][]string `json:"_links,omitempty"`
}

// Fault is an error that already carries a complete HTTP response. The
// pipeline sends it to the client instead of propagating it.
type Fault interface {
	error
	Response() *Response
}

// AsFault reports whether err, or any error it wraps, is a Fault.
func AsFault(err error) (Fault, bool) {
	var f Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// HTTPError is a Fault with a status code and a JSON message body.
type HTTPError struct {
	Status  int
	Message string
	Headers http.Header
}

func NewHTTPError(status int, message string) *HTTPError {
	return &HTTPError{Status: status, Message: message}
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

func (e *HTTPError) StatusCode() int {
	return e.Status
}

func (e *HTTPError) Response() *Response {
	rp := NewResBuilder().
		StatusCode(e.Status).
		BodyJSON(&DefaultJsonError{Message: e.Message, Code: e.Status}).
		Build()
	for name, values := range e.Headers {
		for _, value := range values {
			rp.Headers.Add(name, value)
		}
	}
	return rp
}

// BadRequest returns a 400 fault.
func BadRequest(message string) *HTTPError {
	return NewHTTPError(http.StatusBadRequest, message)
}

// Forbidden returns a 403 fault.
func Forbidden(message string) *HTTPError {
	return NewHTTPError(http.StatusForbidden, message)
}

// NotFound returns a 404 fault.
func NotFound(message string) *HTTPError {
	return NewHTTPError(http.StatusNotFound, message)
}

// Conflict returns a 409 fault.
func Conflict(message string) *HTTPError {
	return NewHTTPError(http.StatusConflict, message)
}

// InvalidContentTypeError is returned when the request body type is missing
// or not supported. It is rendered as 415.
type InvalidContentTypeError struct {
	ContentType string
}

func (e *InvalidContentTypeError) Error() string {
	if e.ContentType == "" {
		return "No Content-Type provided in request"
	}
	return fmt.Sprintf("Invalid content type %s", e.ContentType)
}

func (e *InvalidContentTypeError) Response() *Response {
	return NewHTTPError(http.StatusUnsupportedMediaType, e.Error()).Response()
}

// NoSuchActionError means neither the named action nor "default" exists on
// the controller. This is a routing configuration error, not a client error,
// so it is never converted into a response by the pipeline.
type NoSuchActionError struct {
	Action string
}

func (e *NoSuchActionError) Error() string {
	return fmt.Sprintf("controller has no action %q and no default action", e.Action)
}
