package relay

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/cors"
	"github.com/pkg/errors"
	"gitlab.com/silenteer-oss/relay/log"
	"logur.dev/logur"
)

// BindAddr returns the host and port to listen on. An empty host means all
// interfaces and an empty port falls back to defaultPort.
func BindAddr(host, port, defaultPort string) (string, string) {
	if host == "" {
		host = "0.0.0.0"
	}
	if port == "" {
		port = defaultPort
	}
	return host, port
}

// Option is a function on the options for a server.
type Option func(*Options) error

// Options can be used to create a customized server.
type Options struct {
	logger      logur.Logger
	config      *ServerConfig
	router      *Mapper
	middlewares []func(http.Handler) http.Handler
}

func Logger(logger logur.Logger) Option {
	return func(o *Options) error {
		o.logger = logger
		return nil
	}
}

func Config(config *ServerConfig) Option {
	return func(o *Options) error {
		if config == nil {
			return errors.New("server config can not be nil")
		}
		o.config = config
		return nil
	}
}

// Routes registers resources on the server router.
func Routes(r func(*Mapper)) Option {
	return func(o *Options) error {
		r(o.router)
		return nil
	}
}

// Use adds middlewares applied before routing.
func Use(middlewares ...func(http.Handler) http.Handler) Option {
	return func(o *Options) error {
		o.middlewares = append(o.middlewares, middlewares...)
		return nil
	}
}

type IServer interface {
	Stop()
	Start(started ...chan interface{})
}

// Server accepts connections under a WorkerPool cap and serves them through
// the routed Resources.
type Server struct {
	config  *ServerConfig
	handler http.Handler
	pool    *WorkerPool
	logger  logur.Logger

	mu       sync.Mutex
	listener net.Listener
	http     *http.Server
	stop     chan interface{}
	stopped  chan interface{}
}

func NewServer(options ...Option) (*Server, error) {
	config := GetServerConfig()
	opts := Options{
		logger: GetLogger(),
		config: config,
	}

	r := chi.NewRouter()
	opts.router = NewMapper(r)

	for _, opt := range options {
		if opt != nil {
			if err := opt(&opts); err != nil {
				return nil, errors.WithMessage(err, "server creation error")
			}
		}
	}

	logger := log.WithFields(opts.logger, map[string]interface{}{"addr": opts.config.Addr()})

	var handler http.Handler = opts.router
	for i := len(opts.middlewares) - 1; i >= 0; i-- {
		handler = opts.middlewares[i](handler)
	}
	if len(opts.config.AllowedOrigins) > 0 {
		handler = cors.Handler(cors.Options{
			AllowedOrigins:   opts.config.AllowedOrigins,
			AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", XRequestId},
			AllowCredentials: false,
		})(handler)
	}
	handler = NewMiddleware("Http", logger)(handler)

	return &Server{
		config:  opts.config,
		handler: handler,
		pool:    NewWorkerPool(opts.config.Workers),
		logger:  logger,
		stop:    make(chan interface{}, 1),
		stopped: make(chan interface{}),
	}, nil
}

// Pool returns the admission pool.
func (srv *Server) Pool() *WorkerPool {
	return srv.pool
}

// Handler returns the full handler chain.
func (srv *Server) Handler() http.Handler {
	return srv.handler
}

// Addr returns the bound address once the server listens, nil before.
func (srv *Server) Addr() net.Addr {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.listener == nil {
		return nil
	}
	return srv.listener.Addr()
}

func (srv *Server) Start(started ...chan interface{}) {
	l, err := net.Listen("tcp", srv.config.Addr())
	if err != nil {
		srv.logger.Error(fmt.Sprintf("Http server listen error: %+v\n ", err))
		os.Exit(1)
	}
	if err := srv.Serve(l, started...); err != nil {
		srv.logger.Error(fmt.Sprintf("Http server error: %+v\n ", err))
		os.Exit(1)
	}
}

// Serve accepts connections on l until Stop is called or SIGINT/SIGTERM is
// received, then drains in-flight requests for at most the drain timeout.
func (srv *Server) Serve(l net.Listener, started ...chan interface{}) error {
	if srv.handler == nil {
		return errors.New("Handler not found")
	}
	if srv.logger == nil {
		return errors.New("Logger can not be empty")
	}

	pl := newPoolListener(l, srv.pool)
	h := &http.Server{
		Handler:     srv.handler,
		ReadTimeout: srv.config.GetReadTimeoutDuration(),
	}

	srv.mu.Lock()
	srv.listener = pl
	srv.http = h
	srv.mu.Unlock()

	serveErr := make(chan error, 1)
	go func() {
		if err := h.Serve(pl); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	srv.logger.Info("Http server started", map[string]interface{}{"workers": srv.pool.Size(), "listen": l.Addr().String()})
	for i := range started {
		started[i] <- true
	}

	// Handle SIGINT and SIGTERM.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(done)

	var err error
	select {
	case <-srv.stop:
	case <-done:
	case err = <-serveErr:
	}

	srv.logger.Info("Http server is closing")
	srv.shutdown()

	close(srv.stopped)
	srv.logger.Info("Http server stopped")
	return errors.WithMessage(err, "http serve")
}

func (srv *Server) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), srv.config.GetDrainTimeoutDuration())
	defer cancel()

	if err := srv.http.Shutdown(ctx); err != nil {
		srv.logger.Error(fmt.Sprintf("server Shutdown Failed:%+s", err))
		_ = srv.http.Close()
	}

	waited := make(chan struct{})
	go func() {
		srv.pool.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(time.Second):
		srv.logger.Warn("connections still open after shutdown", map[string]interface{}{"active": srv.pool.Active()})
	}
}

// Stop asks Serve to shut down and waits until it has.
func (srv *Server) Stop() {
	if srv == nil {
		return
	}
	srv.mu.Lock()
	serving := srv.http != nil
	srv.mu.Unlock()
	if !serving {
		return
	}
	select {
	case srv.stop <- "stop":
	default:
	}
	<-srv.stopped
}
