// Package test holds helpers for running a relay server inside tests.
package test

import (
	"net"
	"sync"
	"testing"
	"time"

	"gitlab.com/silenteer-oss/relay"
)

type TestServer struct {
	*relay.Server
	t        *testing.T
	listener net.Listener
}

// NewTestServer wraps server, listening on a free loopback port.
func NewTestServer(t *testing.T, server *relay.Server) *TestServer {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("test server listen: %v", err)
	}
	return &TestServer{server, t, l}
}

func (s *TestServer) Start() {
	started := make(chan interface{}, 1)
	go func() { _ = s.Server.Serve(s.listener, started) }()

	WaitOrTimedOut(s.t, started, "Server start timed out")
}

// URL is the base url of the running server.
func (s *TestServer) URL() string {
	return "http://" + s.listener.Addr().String()
}

type TestWaitGroup struct {
	*sync.WaitGroup
	t    *testing.T
	done chan interface{}
}

func NewTestWaitGroup(t *testing.T, n int) *TestWaitGroup {
	wg := sync.WaitGroup{}
	wg.Add(n)

	done := make(chan interface{}, 1)

	return &TestWaitGroup{&wg, t, done}
}

func (wg *TestWaitGroup) Wait() {
	go func() {
		wg.WaitGroup.Wait()
		close(wg.done)
	}()

	WaitOrTimedOut(wg.t, wg.done, "WaitGroup timed out")
}

func WaitOrTimedOut(t *testing.T, ch chan interface{}, msg string) {
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Error(msg + " after 2 seconds")
	}
}
