package gateway

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"sort"
	"sync"

	"github.com/gorilla/websocket"

	"tablekit/apps/server/internal/auth"
	"tablekit/apps/server/internal/lobby"
	"tablekit/envelope"
	"tablekit/game"
	"tablekit/protocol"
	"tablekit/transport"
)

// Error codes sent in <error> replies to game-scoped requests.
const (
	CodeNotLoggedIn     = "not_logged_in"
	CodeAlreadyLoggedIn = "already_logged_in"
	CodeUnknownGame     = "unknown_game"
	CodeUnknownUser     = "unknown_user"
	CodeInternal        = "internal"
)

type Options struct {
	Auth auth.Service
	// AuthRequired rejects logins that do not carry a valid session token.
	AuthRequired  bool
	OutboxSize    int
	WebSocket     transport.WebSocketOptions
	OriginAllowed func(origin string) bool
}

// Gateway owns every participant connection and the lobby they share.
type Gateway struct {
	mu       sync.RWMutex
	sessions map[string]*Session // logged-in sessions by username

	lobby    *lobby.Lobby
	registry *protocol.Registry
	opts     Options
	upgrader websocket.Upgrader
}

// New builds the gateway and its lobby. The lobby's delivery and table
// list callbacks are bound to the gateway.
func New(catalog *game.Catalog, lobbyOpts lobby.Options, opts Options) *Gateway {
	if opts.OriginAllowed == nil {
		opts.OriginAllowed = func(string) bool { return true }
	}
	g := &Gateway{
		sessions: make(map[string]*Session),
		registry: catalog.Registry(),
		opts:     opts,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return g.opts.OriginAllowed(r.Header.Get("Origin"))
		},
	}
	lobbyOpts.Catalog = catalog
	lobbyOpts.Deliver = g.deliver
	lobbyOpts.OnTableUpdate = g.tableUpdated
	lobbyOpts.OnTableClosed = g.tableClosed
	g.lobby = lobby.New(lobbyOpts)
	return g
}

func (g *Gateway) Lobby() *lobby.Lobby { return g.lobby }

// HandleWebSocket upgrades the request and serves the connection until it
// closes. A bearer token on the upgrade request is remembered and used if the
// login message carries none.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Gateway] Upgrade error: %v", err)
		return
	}
	token := auth.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	go g.serve(context.Background(), transport.NewWebSocketStream(ws, g.opts.WebSocket), token)
}

// ListenTCP accepts framed connections on ln until ctx is done or ln fails.
func (g *Gateway) ListenTCP(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go g.serve(ctx, transport.NewFramedStream(nc), "")
	}
}

// Serve runs one participant connection over stream and returns when it has
// been cleaned up.
func (g *Gateway) Serve(ctx context.Context, stream transport.Stream) error {
	return g.serve(ctx, stream, "")
}

func (g *Gateway) serve(ctx context.Context, stream transport.Stream, token string) error {
	s := &Session{gw: g, token: token}
	s.conn = transport.NewConn(stream, s.receive)
	s.outbox = transport.NewOutbox(s.conn, g.opts.OutboxSize)
	s.conn.OnCleanup(func(*transport.Conn) { g.cleanup(s) })
	log.Printf("[Gateway] Client connected: %s", s.conn.ID)

	err := s.conn.Run(ctx)
	if err != nil && !transport.IsNormalClose(err) {
		log.Printf("[Gateway] %s closed: %v", s.conn.ID, err)
	}
	return err
}

// Users lists the logged-in usernames.
func (g *Gateway) Users() []string {
	g.mu.RLock()
	users := make([]string, 0, len(g.sessions))
	for u := range g.sessions {
		users = append(users, u)
	}
	g.mu.RUnlock()
	sort.Strings(users)
	return users
}

// Shutdown stops every table and connection.
func (g *Gateway) Shutdown() {
	g.lobby.Shutdown()
	g.mu.RLock()
	sessions := make([]*Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		sessions = append(sessions, s)
	}
	g.mu.RUnlock()
	for _, s := range sessions {
		s.conn.Stop()
	}
}

func (g *Gateway) session(username string) *Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sessions[username]
}

// register claims username for s. It fails if another live connection holds
// the name.
func (g *Gateway) register(s *Session, username string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, taken := g.sessions[username]; taken {
		return false
	}
	g.sessions[username] = s
	return true
}

func (g *Gateway) cleanup(s *Session) {
	username := s.Username()
	if username == "" {
		log.Printf("[Gateway] Client disconnected: %s", s.conn.ID)
		return
	}
	// The name stays claimed until every table has seen the loss, so a
	// re-login cannot rejoin before a stale ConnLost lands.
	g.lobby.Disconnect(username)

	g.mu.Lock()
	if g.sessions[username] == s {
		delete(g.sessions, username)
	}
	total := len(g.sessions)
	g.mu.Unlock()

	g.broadcast(&protocol.UserLeft{User: username}, "")
	log.Printf("[Gateway] %s disconnected (%s), total: %d", username, s.conn.ID, total)
}

// broadcast sends msg to every logged-in session except the one named skip.
func (g *Gateway) broadcast(msg protocol.Message, skip string) {
	env := msg.Flatten()
	g.mu.RLock()
	targets := make([]*Session, 0, len(g.sessions))
	for u, s := range g.sessions {
		if u != skip {
			targets = append(targets, s)
		}
	}
	g.mu.RUnlock()
	for _, s := range targets {
		s.outbox.EnqueueEnvelope(env)
	}
}

// deliver is the lobby's delivery function. It runs on table actors and must
// not call back into a table.
func (g *Gateway) deliver(username string, env *envelope.Envelope) {
	if s := g.session(username); s != nil {
		s.outbox.EnqueueEnvelope(env)
	}
}

func (g *Gateway) tableUpdated(info protocol.TableInfo) {
	g.broadcast(&protocol.TableUpdate{Info: info}, "")
}

func (g *Gateway) tableClosed(num int) {
	g.broadcast(&protocol.TableClosed{Num: num}, "")
}
