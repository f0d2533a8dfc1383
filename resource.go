package relay

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"logur.dev/logur"
)

// DeserializeFunc turns a request into named action arguments.
type DeserializeFunc func(r *Request) (Args, error)

// SerializeFunc fills rp from an action result.
type SerializeFunc func(rp *Response, result interface{}) error

// RequestDeserializer looks up per-action request deserializers.
type RequestDeserializer interface {
	Deserializer(action string) (DeserializeFunc, bool)
}

// ResponseSerializer looks up per-action response serializers.
type ResponseSerializer interface {
	Serializer(action string) (SerializeFunc, bool)
}

// Resource runs one request through deserialize, dispatch and serialize. It
// holds no per-request state and serves concurrent requests.
type Resource struct {
	controller   Controller
	serializer   ResponseSerializer
	deserializer RequestDeserializer
	logger       logur.Logger
}

// NewResource builds a Resource. Nil serializer and deserializer default to JSON.
func NewResource(controller Controller, serializer ResponseSerializer, deserializer RequestDeserializer) *Resource {
	if serializer == nil {
		serializer = &JSONResponseSerializer{}
	}
	if deserializer == nil {
		deserializer = &JSONRequestDeserializer{}
	}
	return &Resource{
		controller:   controller,
		serializer:   serializer,
		deserializer: deserializer,
		logger:       GetLogger(),
	}
}

// WithLogger sets the logger used when ServeHTTP reports unexpected errors.
func (res *Resource) WithLogger(logger logur.Logger) *Resource {
	res.logger = logger
	return res
}

// ExtractActionArgs copies the named routing arguments without the
// "controller" and "format" keys. Malformed routing data yields empty Args.
func ExtractActionArgs(args RoutingArgs) Args {
	out := Args{}
	if len(args) < 2 {
		return out
	}
	named, ok := args[1].(map[string]interface{})
	if !ok {
		if a, isArgs := args[1].(Args); isArgs {
			named, ok = a, true
		}
	}
	if !ok {
		return out
	}
	for k, v := range named {
		out[k] = v
	}
	delete(out, "controller")
	delete(out, "format")
	return out
}

// Dispatch calls the named action of ctrl, or its "default" action when the
// name is unknown. The result is returned unchanged.
func Dispatch(c *Context, ctrl Controller, action string, named Args, positional ...interface{}) (interface{}, error) {
	fn, err := resolveAction(ctrl, action)
	if err != nil {
		return nil, err
	}
	if named == nil {
		named = Args{}
	}
	return fn(c, Params{Positional: positional, Named: named})
}

func resolveAction(ctrl Controller, action string) (Action, error) {
	if ctrl == nil {
		return nil, &NoSuchActionError{Action: action}
	}
	if fn, ok := ctrl.Action(action); ok {
		return fn, nil
	}
	if fn, ok := ctrl.Action(DefaultAction); ok {
		return fn, nil
	}
	return nil, &NoSuchActionError{Action: action}
}

func (res *Resource) deserializerFor(action string) (DeserializeFunc, bool) {
	if fn, ok := res.deserializer.Deserializer(action); ok {
		return fn, true
	}
	return res.deserializer.Deserializer(DefaultAction)
}

func (res *Resource) serializerFor(action string) (SerializeFunc, bool) {
	if fn, ok := res.serializer.Serializer(action); ok {
		return fn, true
	}
	return res.serializer.Serializer(DefaultAction)
}

// Handle runs the pipeline for r. Faults raised at any stage become the
// response. Any other error is returned to the caller.
func (res *Resource) Handle(r *Request) (*Response, error) {
	actionArgs := ExtractActionArgs(r.RoutingArgs())
	action, _ := actionArgs["action"].(string)
	delete(actionArgs, "action")

	//1. request to arguments
	deserialize, ok := res.deserializerFor(action)
	if !ok {
		return nil, errors.Errorf("no deserializer for action %q", action)
	}
	deserialized, err := deserialize(r)
	if err != nil {
		return faultOrError(err, "deserialize "+action)
	}
	for k, v := range deserialized {
		actionArgs[k] = v
	}

	//2. call the action
	result, err := Dispatch(newRequestContext(r), res.controller, action, actionArgs)
	if err != nil {
		return faultOrError(err, "dispatch "+action)
	}
	if rp, isResponse := result.(*Response); isResponse && rp != nil {
		return rp, nil
	}

	//3. result to response
	serialize, ok := res.serializerFor(action)
	if !ok {
		return nil, errors.Errorf("no serializer for action %q", action)
	}
	rp := NewResponse()
	if err := serialize(rp, result); err != nil {
		return faultOrError(err, "serialize "+action)
	}
	return rp, nil
}

func faultOrError(err error, stage string) (*Response, error) {
	if f, ok := AsFault(err); ok {
		return f.Response(), nil
	}
	return nil, errors.WithMessage(err, stage)
}

// ServeHTTP adapts the Resource to net/http. Errors Handle does not turn into
// responses are logged and answered with 500.
func (res *Resource) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := NewRequest(r)
	rp, err := res.Handle(req)
	if err != nil {
		res.loggerFor(r).Error(fmt.Sprintf("Resource error: %+v\n ", err))
		rp = NewResBuilder().
			StatusCode(http.StatusInternalServerError).
			BodyJSON(&DefaultJsonError{
				Message: "Internal server error",
				Code:    http.StatusInternalServerError,
				TraceId: NewContext(r.Context()).RequestId(),
				Links:   map[string][]string{"self": {r.URL.String()}},
			}).
			Build()
	}
	if err := rp.WriteTo(w); err != nil {
		res.loggerFor(r).Error(fmt.Sprintf("Response writing error: %+v\n ", err))
	}
}

func (res *Resource) loggerFor(r *http.Request) logur.Logger {
	if logger, ok := r.Context().Value(contextKey(XLoggerId)).(logur.Logger); ok {
		return logger
	}
	return res.logger
}
