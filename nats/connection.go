package nats

import (
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

type Connection struct {
	Conn *nats.EncodedConn
}

// NewConnection connects to address with a JSON encoded connection.
func NewConnection(address string, options ...nats.Option) (*Connection, error) {
	conn, err := nats.Connect(address, options...)
	if err != nil {
		return nil, errors.WithMessage(err, "error connecting to NATS")
	}

	enc, err := nats.NewEncodedConn(conn, nats.JSON_ENCODER)
	if err != nil {
		conn.Close()
		return nil, errors.WithMessage(err, "cannot construct JSON encoded connection to NATS")
	}

	return &Connection{Conn: enc}, nil
}

// SendRequest publishes rq on subject and waits for the reply.
func (c *Connection) SendRequest(subject string, rq *Request, timeout time.Duration) (*Response, error) {
	rp := Response{}
	err := c.Conn.Request(subject, rq, &rp, timeout)
	return &rp, err
}

func (c *Connection) Close() {
	_ = c.Conn.Flush()
	c.Conn.Close()
}
