// Package nats serves relay handlers to requests that arrive as NATS
// messages instead of TCP connections.
package nats

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	oNats "github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"logur.dev/logur"

	"gitlab.com/silenteer-oss/relay"
	"gitlab.com/silenteer-oss/relay/log"
)

const (
	NatsEnabled = "Nats.Enabled"
	NatsServers = "Nats.Servers"
	NatsSubject = "Nats.Subject"
	NatsQueue   = "Nats.Queue"
)

func init() {
	viper.SetDefault(NatsEnabled, false)
	viper.SetDefault(NatsServers, oNats.DefaultURL)
	viper.SetDefault(NatsSubject, "relay")
	viper.SetDefault(NatsQueue, "relay")
}

// Enabled reports whether the NATS bridge is switched on.
func Enabled() bool {
	return viper.GetBool(NatsEnabled)
}

// Option is a function on the options for a bridge server.
type Option func(*Options) error

// Options can be used to create a customized bridge server.
type Options struct {
	Addr         string
	Subject      string
	Queue        string
	ReadTimeout  time.Duration
	DrainTimeout time.Duration
	Logger       logur.Logger
	Pool         *relay.WorkerPool
}

func GetDefaultOptions() Options {
	return Options{
		Addr:         viper.GetString(NatsServers),
		Subject:      viper.GetString(NatsSubject),
		Queue:        viper.GetString(NatsQueue),
		ReadTimeout:  relay.GetServerConfig().GetReadTimeoutDuration(),
		DrainTimeout: relay.GetServerConfig().GetDrainTimeoutDuration(),
		Logger:       relay.GetLogger(),
	}
}

func Address(address string) Option {
	return func(o *Options) error {
		o.Addr = address
		return nil
	}
}

func Subject(subject string) Option {
	return func(o *Options) error {
		o.Subject = subject
		return nil
	}
}

func Queue(queue string) Option {
	return func(o *Options) error {
		o.Queue = queue
		return nil
	}
}

func ReadTimeout(timeout time.Duration) Option {
	return func(o *Options) error {
		o.ReadTimeout = timeout
		return nil
	}
}

func Logger(logger logur.Logger) Option {
	return func(o *Options) error {
		o.Logger = logger
		return nil
	}
}

// Pool shares the admission pool of an HTTP server, so both transports
// count against the same cap.
func Pool(pool *relay.WorkerPool) Option {
	return func(o *Options) error {
		o.Pool = pool
		return nil
	}
}

type Server struct {
	handler http.Handler
	opts    Options
	logger  logur.Logger

	mu   sync.Mutex
	conn *Connection
	sub  *oNats.Subscription

	// requests taken from the subscription, not other pool holders
	inflight sync.WaitGroup
}

// NewServer bridges handler to the configured subject.
func NewServer(handler http.Handler, options ...Option) (*Server, error) {
	if handler == nil {
		return nil, errors.New("nats: Handler not found")
	}
	opts := GetDefaultOptions()
	for _, opt := range options {
		if opt != nil {
			if err := opt(&opts); err != nil {
				return nil, errors.WithMessage(err, "nats server creation error")
			}
		}
	}
	if opts.Subject == "" {
		return nil, errors.New("nats: Subject can not be empty")
	}
	if opts.Addr == "" {
		return nil, errors.New("nats: Address can not be empty")
	}
	if opts.Logger == nil {
		return nil, errors.New("nats: Logger can not be empty")
	}
	if opts.Pool == nil {
		opts.Pool = relay.NewWorkerPool(relay.GetServerConfig().Workers)
	}

	if opts.ReadTimeout > 0 {
		handler = http.TimeoutHandler(handler, opts.ReadTimeout, "nats handler timeout")
	}
	return &Server{
		handler: handler,
		opts:    opts,
		logger:  log.WithFields(opts.Logger, map[string]interface{}{"subject": opts.Subject}),
	}, nil
}

// Start connects and subscribes. Messages are served until Stop.
func (srv *Server) Start() error {
	srv.logger.Info("Connecting to NATS Server", map[string]interface{}{"addr": srv.opts.Addr})
	conn, err := NewConnection(srv.opts.Addr, oNats.Name("relay "+relay.Hostname()))
	if err != nil {
		return errors.WithMessage(err, "nats connection error")
	}

	sub, err := conn.Conn.QueueSubscribe(srv.opts.Subject, srv.opts.Queue, func(subject, reply string, rq *Request) {
		srv.dispatch(conn.Conn, reply, rq)
	})
	if err != nil {
		conn.Close()
		return errors.WithMessage(err, "nats subscribe error")
	}

	srv.mu.Lock()
	srv.conn = conn
	srv.sub = sub
	srv.mu.Unlock()
	srv.logger.Info("Nats server started", map[string]interface{}{"queue": srv.opts.Queue})
	return nil
}

// dispatch blocks the subscription while the pool is full.
func (srv *Server) dispatch(enc *oNats.EncodedConn, reply string, rq *Request) {
	srv.inflight.Add(1)
	err := srv.opts.Pool.Go(context.Background(), func() {
		defer srv.inflight.Done()
		rp := srv.Handle(rq)
		if reply == "" {
			return
		}
		if err := enc.Publish(reply, rp); err != nil {
			srv.logger.Error(fmt.Sprintf("Nats error on publish result back: %+v\n ", err))
		}
	})
	if err != nil {
		srv.inflight.Done()
		srv.logger.Error(fmt.Sprintf("Nats dispatch error: %+v\n ", err))
	}
}

// waitInflight reports whether every dispatched request finished in time.
func (srv *Server) waitInflight(timeout time.Duration) bool {
	waited := make(chan struct{})
	go func() {
		srv.inflight.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Handle serves one bridged request through the handler. Panics and request
// conversion failures become 500 replies.
func (srv *Server) Handle(rq *Request) (rp *Response) {
	t1 := time.Now()
	rp = NewResponse()

	requestID := rq.Headers.Get(relay.XRequestId)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	l := log.WithFields(srv.logger, map[string]interface{}{"id": requestID, "method": rq.Method, "url": rq.URL})

	defer func() {
		if r := recover(); r != nil {
			l.Error(fmt.Sprintf("Nats handler panic: %v", r))
			rp = errorResponse(requestID)
		}
		l.Info("Nats request complete", map[string]interface{}{
			"status":     rp.StatusCode,
			"elapsed_ms": float64(time.Since(t1).Nanoseconds()) / 1000000.0},
		)
	}()

	ctx := relay.WithLogger(context.Background(), l)
	ctx = relay.WithRequestId(ctx, requestID)

	request, err := rq.ToHttpRequest(ctx)
	if err != nil {
		l.Error(fmt.Sprintf("Nats error: %+v\n ", err))
		return errorResponse(requestID)
	}
	request.Header.Set(relay.XRequestId, requestID)

	srv.handler.ServeHTTP(rp, request)
	rp.Headers.Set(relay.XRequestId, requestID)
	return rp
}

func errorResponse(requestID string) *Response {
	rp := NewResponse()
	rp.Headers.Set(relay.XRequestId, requestID)
	rp.Headers.Set("Content-Type", "application/json")
	rp.WriteHeader(http.StatusInternalServerError)
	body, _ := relay.ToJSON(&relay.DefaultJsonError{
		Message: "Internal server error",
		Code:    http.StatusInternalServerError,
		TraceId: requestID,
	})
	_, _ = rp.Write([]byte(body))
	return rp
}

// Stop drains the subscription, waits for in-flight requests up to the drain
// timeout and closes the connection.
func (srv *Server) Stop() {
	srv.mu.Lock()
	conn, sub := srv.conn, srv.sub
	srv.conn, srv.sub = nil, nil
	srv.mu.Unlock()
	if conn == nil {
		return
	}

	srv.logger.Info("Nats server is being closed")
	if err := sub.Drain(); err != nil {
		srv.logger.Warn("nats drain error", map[string]interface{}{"err": err.Error()})
	}

	if !srv.waitInflight(srv.opts.DrainTimeout) {
		srv.logger.Warn("nats requests still running after drain timeout", map[string]interface{}{"timeout": srv.opts.DrainTimeout.String()})
	}
	conn.Close()
	srv.logger.Info("Nats server is down now")
}
