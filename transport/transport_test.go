package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tablekit/envelope"
)

func pipe(t *testing.T) (Stream, Stream) {
	t.Helper()
	a, b := net.Pipe()
	return NewFramedStream(a), NewFramedStream(b)
}

func waitDone(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("connection %s did not finish cleanup", c.ID)
	}
}

func TestConn_DispatchesAndDropsMalformed(t *testing.T) {
	local, remote := pipe(t)
	got := make(chan *envelope.Envelope, 4)
	c := NewConn(local, func(_ *Conn, env *envelope.Envelope) { got <- env })
	errc := make(chan error, 1)
	go func() { errc <- c.Run(context.Background()) }()

	if err := remote.WriteMessage([]byte{0xff, 0xff}); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	b, _ := envelope.Marshal(envelope.New("chat").SetContent("hi"))
	if err := remote.WriteMessage(b); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case env := <-got:
		if env.Name != "chat" || env.Content != "hi" {
			t.Fatalf("unexpected envelope %+v", env)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("valid envelope after a malformed one was not dispatched")
	}
	if c.Closed() {
		t.Fatalf("a malformed envelope must not close the connection")
	}

	remote.Close()
	waitDone(t, c)
	if err := <-errc; err == nil {
		t.Fatalf("expected a read error after the peer closed")
	}
}

func TestConn_CleanupRunsOnceAndStopsDispatch(t *testing.T) {
	local, remote := pipe(t)
	var cleanups, afterCleanup atomic.Int32
	c := NewConn(local, func(c *Conn, _ *envelope.Envelope) {
		if c.Closed() {
			afterCleanup.Add(1)
		}
	})
	c.OnCleanup(func(*Conn) { cleanups.Add(1) })
	c.OnCleanup(func(*Conn) { panic("hook failure must not escape") })

	go c.Run(context.Background())
	c.Stop()
	c.Stop()
	waitDone(t, c)
	remote.Close()

	if n := cleanups.Load(); n != 1 {
		t.Fatalf("cleanup ran %d times", n)
	}
	if afterCleanup.Load() != 0 {
		t.Fatalf("dispatch happened after cleanup began")
	}
	if err := c.Send(envelope.New("late")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after cleanup, got %v", err)
	}
}

func TestConn_ContextCancelStops(t *testing.T) {
	local, remote := pipe(t)
	defer remote.Close()
	c := NewConn(local, func(*Conn, *envelope.Envelope) {})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()
	cancel()
	waitDone(t, c)
	if err := <-errc; err != nil {
		t.Fatalf("a requested stop is not an error, got %v", err)
	}
}

func TestConn_ConcurrentSendsDoNotInterleave(t *testing.T) {
	local, remote := pipe(t)
	c := NewConn(local, func(*Conn, *envelope.Envelope) {})
	go c.Run(context.Background())
	defer c.Stop()

	const senders, each = 8, 25
	payload := strings.Repeat("x", 2048)
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < each; j++ {
				env := envelope.New("msg").SetInt("from", i).SetInt("n", j).SetContent(payload)
				if err := c.Send(env); err != nil {
					t.Errorf("send: %v", err)
					return
				}
			}
		}(i)
	}

	seen := map[string]bool{}
	for k := 0; k < senders*each; k++ {
		raw, err := remote.ReadMessage()
		if err != nil {
			t.Fatalf("read %d: %v", k, err)
		}
		env, err := envelope.Unmarshal(raw)
		if err != nil {
			t.Fatalf("envelope %d corrupted: %v", k, err)
		}
		if env.Content != payload {
			t.Fatalf("envelope %d content damaged", k)
		}
		seen[fmt.Sprintf("%s/%s", env.Attr("from"), env.Attr("n"))] = true
	}
	wg.Wait()
	if len(seen) != senders*each {
		t.Fatalf("expected %d distinct envelopes, got %d", senders*each, len(seen))
	}
}

func TestOutbox_OverflowStopsConnection(t *testing.T) {
	local, remote := pipe(t)
	defer remote.Close()
	c := NewConn(local, func(*Conn, *envelope.Envelope) {})
	go c.Run(context.Background())
	o := NewOutbox(c, 1)

	// nobody reads the remote end, so the pump blocks on the first write
	accepted := 0
	for i := 0; i < 10; i++ {
		if o.EnqueueEnvelope(envelope.New("tick").SetInt("n", i)) {
			accepted++
		}
	}
	if accepted == 10 {
		t.Fatalf("outbox should refuse once full")
	}
	waitDone(t, c)
	if o.Enqueue([]byte{1}) {
		t.Fatalf("enqueue after close must fail")
	}
}

func TestWebSocketStream_RoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		var c *Conn
		c = NewConn(NewWebSocketStream(ws, DefaultWebSocketOptions()), func(_ *Conn, env *envelope.Envelope) {
			c.Send(envelope.New("echo").Set("of", env.Name))
		})
		c.Run(r.Context())
	}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	client := NewWebSocketStream(ws, WebSocketOptions{PongWait: time.Second})
	defer client.Close()

	// text frames are not envelopes and are skipped
	if err := ws.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	b, _ := envelope.Marshal(envelope.New("ping"))
	if err := client.WriteMessage(b); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	env, err := envelope.Unmarshal(raw)
	if err != nil {
		t.Fatal(err)
	}
	if env.Name != "echo" || env.Attr("of") != "ping" {
		t.Fatalf("unexpected reply %+v", env)
	}
}
