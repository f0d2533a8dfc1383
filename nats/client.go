package nats

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"logur.dev/logur"

	"gitlab.com/silenteer-oss/relay"
)

// Client sends requests to a bridged relay server over NATS. After
// consecutive transport failures the client stops trying for a while and
// fails fast with gobreaker.ErrOpenState.
type Client struct {
	Addr    string
	Subject string
	Timeout time.Duration

	cb *gobreaker.CircuitBreaker
}

func NewClient(addr, subject string) *Client {
	return NewClientWithLogger(addr, subject, relay.GetLogger())
}

func NewClientWithLogger(addr, subject string, logger logur.Logger) *Client {
	return &Client{
		Addr:    addr,
		Subject: subject,
		Timeout: 3 * time.Second,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "nats " + subject,
			Timeout: 10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("nats client circuit changed", map[string]interface{}{
					"circuit": name,
					"from":    from.String(),
					"to":      to.String(),
				})
			},
		}),
	}
}

func (cl *Client) request(rq *Request) (*Response, error) {
	c, err := NewConnection(cl.Addr)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	return c.SendRequest(cl.Subject, rq, cl.Timeout)
}

// SendRequest returns the reply, or an error when the status is not 2xx.
// The reply is returned with that error so callers can still read it.
func (cl *Client) SendRequest(rq *Request) (*Response, error) {
	result, err := cl.cb.Execute(func() (interface{}, error) {
		return cl.request(rq)
	})
	if err != nil {
		return nil, errors.WithMessage(err, "nats client error")
	}
	msg := result.(*Response)
	if msg.StatusCode < 200 || msg.StatusCode > 299 {
		return msg, errors.Errorf("nats client error, status code %d", msg.StatusCode)
	}
	return msg, nil
}

// SendAndReceiveJson decodes the reply body into receive.
func (cl *Client) SendAndReceiveJson(rq *Request, receive interface{}) error {
	msg, err := cl.SendRequest(rq)
	if err != nil {
		return err
	}
	if len(msg.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg.Body, receive); err != nil {
		return errors.WithMessage(err, "nats client json parsing error")
	}
	return nil
}
