package nats

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/silenteer-oss/relay"
)

func newBridge(t *testing.T, routes func(m *relay.Mapper)) *Server {
	t.Helper()
	m := relay.NewMapper(chi.NewRouter())
	routes(m)
	srv, err := NewServer(m,
		Address("nats://127.0.0.1:4222"),
		Subject("images"),
		Pool(relay.NewWorkerPool(2)),
	)
	require.NoError(t, err)
	return srv
}

func TestHandleRoutesThroughResource(t *testing.T) {
	var requestID string
	images := relay.Actions{"create": func(c *relay.Context, p relay.Params) (interface{}, error) {
		requestID = c.RequestId()
		body := p.Named["body"].(map[string]interface{})
		return map[string]interface{}{"name": body["name"]}, nil
	}}
	srv := newBridge(t, func(m *relay.Mapper) {
		m.Collection("images", relay.NewResource(images, nil, nil))
	})

	rp := srv.Handle(&Request{
		Method:  http.MethodPost,
		URL:     "/images",
		Headers: http.Header{"Content-Type": {"application/json"}},
		Body:    []byte(`{"name": "cirros"}`),
	})

	assert.Equal(t, http.StatusOK, rp.StatusCode)
	assert.Equal(t, `{"name": "cirros"}`, string(rp.Body))
	assert.NotEmpty(t, requestID)
	assert.Equal(t, requestID, rp.Headers.Get(relay.XRequestId))
}

func TestHandleKeepsRequestId(t *testing.T) {
	srv := newBridge(t, func(m *relay.Mapper) {})

	rp := srv.Handle(&Request{
		Method:  http.MethodGet,
		URL:     "/missing",
		Headers: http.Header{relay.XRequestId: {"abc"}},
	})

	assert.Equal(t, http.StatusNotFound, rp.StatusCode)
	assert.Equal(t, "abc", rp.Headers.Get(relay.XRequestId))
}

func TestHandleRecoversPanics(t *testing.T) {
	srv := newBridge(t, func(m *relay.Mapper) {
		m.Router.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})
	})

	rp := srv.Handle(&Request{Method: http.MethodGet, URL: "/boom"})

	assert.Equal(t, http.StatusInternalServerError, rp.StatusCode)
	var body relay.DefaultJsonError
	require.NoError(t, json.Unmarshal(rp.Body, &body))
	assert.Equal(t, http.StatusInternalServerError, body.Code)
}

func TestHandleInvalidRequest(t *testing.T) {
	srv := newBridge(t, func(m *relay.Mapper) {})

	rp := srv.Handle(&Request{Method: "BAD METHOD", URL: "/"})

	assert.Equal(t, http.StatusInternalServerError, rp.StatusCode)
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)

	_, err = NewServer(http.NotFoundHandler(), Subject(""))
	assert.Error(t, err)

	_, err = NewServer(http.NotFoundHandler(), Address(""))
	assert.Error(t, err)
}

func TestStopBeforeStart(t *testing.T) {
	srv := newBridge(t, func(m *relay.Mapper) {})
	srv.Stop()
}

func TestToHttpRequest(t *testing.T) {
	rq := &Request{
		Method:  http.MethodPut,
		URL:     "/images/1?force=true",
		Headers: http.Header{"X-Image-Meta-Name": {"cirros"}},
		Body:    []byte("abc"),
	}

	r, err := rq.ToHttpRequest(context.Background())

	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, r.Method)
	assert.Equal(t, "/images/1", r.URL.Path)
	assert.Equal(t, "true", r.URL.Query().Get("force"))
	assert.Equal(t, "cirros", r.Header.Get("X-Image-Meta-Name"))
	assert.Equal(t, "3", r.Header.Get("Content-Length"))
	assert.True(t, relay.HasBody(relay.NewRequest(r)))
	assert.Empty(t, rq.Headers.Get("Content-Length"), "carried headers are not modified")
}

func TestResponseWriter(t *testing.T) {
	rp := NewResponse()
	rp.Header().Set("Content-Type", "text/plain")
	rp.WriteHeader(http.StatusCreated)
	rp.WriteHeader(http.StatusTeapot)
	_, _ = rp.Write([]byte("ab"))
	_, _ = rp.Write([]byte("c"))

	assert.Equal(t, http.StatusCreated, rp.StatusCode)
	assert.Equal(t, "Created", rp.Status)
	assert.Equal(t, "abc", string(rp.Body))
}

func TestClientOpensCircuit(t *testing.T) {
	cl := NewClientWithLogger("nats://127.0.0.1:1", "images", relay.GetLogger())
	cl.Timeout = 50 * time.Millisecond

	for i := 0; i < 3; i++ {
		_, err := cl.SendRequest(&Request{Method: http.MethodGet, URL: "/images"})
		require.Error(t, err)
	}

	_, err := cl.SendRequest(&Request{Method: http.MethodGet, URL: "/images"})
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState), "%v", err)
}

func TestToHttpRequestCanonicalisesHeaders(t *testing.T) {
	rq := &Request{
		Method:  http.MethodPost,
		URL:     "/images",
		Headers: http.Header{"content-type": {"application/json"}, "x-image-meta-name": {"a", "b"}},
		Body:    []byte(`{"a": 1}`),
	}

	r, err := rq.ToHttpRequest(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
	assert.Equal(t, []string{"a", "b"}, r.Header.Values("X-Image-Meta-Name"))
	_, lowerKept := r.Header["content-type"]
	assert.False(t, lowerKept)
}

func TestHandleLowercaseHeadersFromForeignPublishers(t *testing.T) {
	create := relay.Actions{"create": func(c *relay.Context, p relay.Params) (interface{}, error) {
		return p.Named["body"], nil
	}}
	srv := newBridge(t, func(m *relay.Mapper) {
		m.Collection("images", relay.NewResource(create, nil,
			&relay.JSONRequestDeserializer{SupportedTypes: []string{"application/json"}}))
	})

	rp := srv.Handle(&Request{
		Method:  http.MethodPost,
		URL:     "/images",
		Headers: http.Header{"content-type": {"application/json"}},
		Body:    []byte(`{"a": 1}`),
	})

	assert.Equal(t, http.StatusOK, rp.StatusCode, string(rp.Body))
	assert.Equal(t, `{"a": 1}`, string(rp.Body))
}

func TestStopWaitsOnlyForBridgedRequests(t *testing.T) {
	pool := relay.NewWorkerPool(2)
	m := relay.NewMapper(chi.NewRouter())
	done := make(chan struct{})
	m.Router.Get("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		close(done)
	})
	srv, err := NewServer(m, Address("nats://127.0.0.1:4222"), Subject("images"), Pool(pool))
	require.NoError(t, err)

	// an idle keep-alive connection of the http server
	require.NoError(t, pool.Acquire(context.Background()))
	defer pool.Release()

	srv.dispatch(nil, "", &Request{Method: http.MethodGet, URL: "/slow"})

	start := time.Now()
	assert.True(t, srv.waitInflight(5*time.Second))
	assert.Less(t, time.Since(start), 2*time.Second)
	select {
	case <-done:
	default:
		t.Fatal("bridged request did not finish before the wait returned")
	}
	assert.Eventually(t, func() bool { return pool.Active() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWaitInflightTimesOut(t *testing.T) {
	srv := newBridge(t, func(m *relay.Mapper) {})
	srv.inflight.Add(1)
	defer srv.inflight.Done()

	assert.False(t, srv.waitInflight(10*time.Millisecond))
}
