package relay

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// WorkerPool admits at most Size concurrent units of work. Acquiring a slot
// blocks while the pool is full; there is no queue beyond the blocked callers.
type WorkerPool struct {
	size   int64
	sem    *semaphore.Weighted
	active int64
	wg     sync.WaitGroup
}

func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size: int64(size),
		sem:  semaphore.NewWeighted(int64(size)),
	}
}

// Size is the number of slots.
func (p *WorkerPool) Size() int {
	return int(p.size)
}

// Active is the number of slots in use.
func (p *WorkerPool) Active() int {
	return int(atomic.LoadInt64(&p.active))
}

// Acquire takes a slot, blocking until one is free or ctx is done.
func (p *WorkerPool) Acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return errors.WithMessage(err, "worker pool acquire")
	}
	p.wg.Add(1)
	atomic.AddInt64(&p.active, 1)
	return nil
}

// Release frees a slot taken by Acquire.
func (p *WorkerPool) Release() {
	atomic.AddInt64(&p.active, -1)
	p.sem.Release(1)
	p.wg.Done()
}

// Go runs fn in its own goroutine once a slot is free. It blocks the caller
// until then.
func (p *WorkerPool) Go(ctx context.Context, fn func()) error {
	if err := p.Acquire(ctx); err != nil {
		return err
	}
	go func() {
		defer p.Release()
		fn()
	}()
	return nil
}

// Wait blocks until every acquired slot has been released.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

// poolListener takes a pool slot before each Accept and gives it back when
// the accepted connection is closed.
type poolListener struct {
	net.Listener
	pool   *WorkerPool
	ctx    context.Context
	cancel context.CancelFunc
}

func newPoolListener(l net.Listener, pool *WorkerPool) *poolListener {
	ctx, cancel := context.WithCancel(context.Background())
	return &poolListener{Listener: l, pool: pool, ctx: ctx, cancel: cancel}
}

func (l *poolListener) Accept() (net.Conn, error) {
	if err := l.pool.Acquire(l.ctx); err != nil {
		return nil, net.ErrClosed
	}
	c, err := l.Listener.Accept()
	if err != nil {
		l.pool.Release()
		return nil, err
	}
	return &poolConn{Conn: c, release: l.pool.Release}, nil
}

func (l *poolListener) Close() error {
	l.cancel()
	return l.Listener.Close()
}

type poolConn struct {
	net.Conn
	once    sync.Once
	release func()
}

func (c *poolConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(c.release)
	return err
}
