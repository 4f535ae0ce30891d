package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"tablekit/envelope"
)

var ErrClosed = errors.New("connection closed")

// Handler receives each decoded envelope on the connection's receive goroutine.
type Handler func(c *Conn, env *envelope.Envelope)

// Conn is one participant's connection: a single receive loop, a mutex
// serialized send path and a cleanup that runs exactly once.
type Conn struct {
	ID string

	stream  Stream
	handler Handler

	sendMu sync.Mutex

	stopped atomic.Bool
	closed  atomic.Bool

	hookMu    sync.Mutex
	onCleanup []func(*Conn)
	cleanOnce sync.Once
	done      chan struct{}
}

func NewConn(stream Stream, h Handler) *Conn {
	return &Conn{
		ID:      uuid.NewString(),
		stream:  stream,
		handler: h,
		done:    make(chan struct{}),
	}
}

// OnCleanup registers fn to run once the receive loop has exited. Hooks run
// in registration order on the receive goroutine.
func (c *Conn) OnCleanup(fn func(*Conn)) {
	c.hookMu.Lock()
	c.onCleanup = append(c.onCleanup, fn)
	c.hookMu.Unlock()
}

// Run reads envelopes until Stop is called, ctx is cancelled or the stream
// fails. Malformed envelopes are logged and dropped without closing the
// connection. Cleanup hooks have run by the time Run returns.
func (c *Conn) Run(ctx context.Context) error {
	defer c.cleanup()

	go func() {
		select {
		case <-ctx.Done():
			c.Stop()
		case <-c.done:
		}
	}()

	for !c.stopped.Load() {
		raw, err := c.stream.ReadMessage()
		if err != nil {
			if c.stopped.Load() {
				return nil
			}
			return fmt.Errorf("conn %s read: %w", c.ID, err)
		}
		env, err := envelope.Unmarshal(raw)
		if err != nil {
			log.Printf("[Conn] %s dropped malformed envelope: %v", c.ID, err)
			continue
		}
		if c.stopped.Load() {
			return nil
		}
		c.handler(c, env)
	}
	return nil
}

// Send encodes and writes env.
func (c *Conn) Send(env *envelope.Envelope) error {
	b, err := envelope.Marshal(env)
	if err != nil {
		return err
	}
	return c.SendRaw(b)
}

// SendRaw writes an already encoded envelope. Concurrent callers are
// serialized so envelopes never interleave on the stream.
func (c *Conn) SendRaw(b []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed.Load() {
		return ErrClosed
	}
	return c.stream.WriteMessage(b)
}

// Stop asks the receive loop to exit and unblocks it by closing the stream.
func (c *Conn) Stop() {
	if c.stopped.Swap(true) {
		return
	}
	c.stream.Close()
}

// Closed reports whether cleanup has begun.
func (c *Conn) Closed() bool { return c.closed.Load() }

// Done is closed after cleanup has finished.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) cleanup() {
	c.cleanOnce.Do(func() {
		c.stopped.Store(true)
		c.closed.Store(true)
		c.stream.Close()

		c.hookMu.Lock()
		hooks := append(([]func(*Conn))(nil), c.onCleanup...)
		c.hookMu.Unlock()
		for _, fn := range hooks {
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Printf("[Conn] %s cleanup hook panic: %v", c.ID, r)
					}
				}()
				fn(c)
			}()
		}
		close(c.done)
	})
}
