package transport

import (
	"log"
	"sync"

	"tablekit/envelope"
)

// Outbox decouples producers such as table actors from a connection's
// socket. Enqueue never blocks; a connection whose queue overflows has missed
// messages its mirror cannot recover from, so it is stopped.
type Outbox struct {
	conn  *Conn
	queue chan []byte

	mu     sync.Mutex
	closed bool
}

func NewOutbox(conn *Conn, size int) *Outbox {
	if size <= 0 {
		size = 256
	}
	o := &Outbox{conn: conn, queue: make(chan []byte, size)}
	go o.writePump()
	conn.OnCleanup(func(*Conn) { o.close() })
	return o
}

func (o *Outbox) Enqueue(b []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	select {
	case o.queue <- b:
		return true
	default:
		log.Printf("[Conn] %s outbox full, closing slow connection", o.conn.ID)
		o.closed = true
		close(o.queue)
		go o.conn.Stop()
		return false
	}
}

// EnqueueEnvelope encodes env and queues it.
func (o *Outbox) EnqueueEnvelope(env *envelope.Envelope) bool {
	b, err := envelope.Marshal(env)
	if err != nil {
		log.Printf("[Conn] %s encode failed: %v", o.conn.ID, err)
		return false
	}
	return o.Enqueue(b)
}

func (o *Outbox) writePump() {
	for b := range o.queue {
		if err := o.conn.SendRaw(b); err != nil {
			o.conn.Stop()
			// drain so producers never see a stuck queue
			for range o.queue {
			}
			return
		}
	}
}

func (o *Outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
}
