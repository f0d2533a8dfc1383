package relay

import (
	"context"
	"time"

	"logur.dev/logur"
)

// Context is the per-request context handed to actions. It is built once per
// request and never stored on shared objects.
type Context struct {
	context context.Context
	request *Request
}

func NewBackgroundContext() *Context {
	return NewContext(context.Background())
}

func NewContext(c context.Context) *Context {
	return &Context{context: c}
}

func newRequestContext(r *Request) *Context {
	return &Context{context: r.Context(), request: r}
}

func (c *Context) Deadline() (deadline time.Time, ok bool) {
	return c.context.Deadline()
}

func (c *Context) Err() error {
	return c.context.Err()
}

func (c *Context) Value(key interface{}) interface{} {
	return c.context.Value(key)
}

func (c *Context) Done() <-chan struct{} {
	return c.context.Done()
}

func (c *Context) Logger() logur.Logger {
	logger, ok := c.Value(contextKey(XLoggerId)).(logur.Logger)
	if !ok {
		logger = GetLogger()
	}
	return logger
}

// Request returns the request being served, nil for background contexts.
func (c *Context) Request() *Request {
	return c.request
}

func (c *Context) RequestId() string {
	id, ok := c.Value(contextKey(XRequestId)).(string)
	if !ok {
		id = ""
	}
	return id
}

// WithLogger returns a copy of ctx carrying logger for Context.Logger.
func WithLogger(ctx context.Context, logger logur.Logger) context.Context {
	return context.WithValue(ctx, contextKey(XLoggerId), logger)
}

// WithRequestId returns a copy of ctx carrying the request id.
func WithRequestId(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey(XRequestId), id)
}
