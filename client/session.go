// Package client keeps a participant's mirror of the server: the user list,
// the lobby table list and every joined table with its game model. The mirror
// only changes when a server message arrives.
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"

	"github.com/gorilla/websocket"

	"tablekit/envelope"
	"tablekit/game"
	"tablekit/protocol"
	"tablekit/seat"
	"tablekit/transport"
)

var (
	ErrNotJoined = errors.New("table not joined")
	ErrNoCatalog = errors.New("no game catalog")
)

type ChangeKind int

const (
	ChangeLogin ChangeKind = iota
	ChangeUsers
	ChangeTables
	ChangeTable
	ChangePlayers
	ChangeTurn
	ChangeModel
	ChangeGameStarted
	ChangeGameOver
	ChangeChat
	ChangeError
	ChangeDisconnected
)

// Change tells a view layer what to redraw. Table is -1 for lobby changes.
type Change struct {
	Kind  ChangeKind
	Table int
	Msg   protocol.Message
}

// Table is the mirror of one joined table.
type Table struct {
	Num        int
	Game       string
	GameID     string
	Players    *seat.PlayerList
	Model      game.Model
	LastResult *protocol.GameOver
}

// Started reports whether a game instance is running.
func (t *Table) Started() bool { return t.Players.Started() }

type Options struct {
	Username string
	Token    string
	Catalog  *game.Catalog
	// ChangeBuffer sizes the Changes channel. Events are dropped, not
	// queued, once it is full; readers re-query the mirror.
	ChangeBuffer int
	WebSocket    transport.WebSocketOptions
}

type Session struct {
	opts    Options
	conn    *transport.Conn
	reg     *protocol.Registry
	changes chan Change

	mu       sync.RWMutex
	loggedIn bool
	users    map[string]bool
	tables   map[int]protocol.TableInfo
	mirrors  map[int]*Table
}

// New builds a session over an open stream. Call Run to start receiving.
func New(stream transport.Stream, opts Options) (*Session, error) {
	if opts.Catalog == nil {
		return nil, ErrNoCatalog
	}
	if opts.ChangeBuffer <= 0 {
		opts.ChangeBuffer = 64
	}
	s := &Session{
		opts:    opts,
		reg:     opts.Catalog.Registry(),
		changes: make(chan Change, opts.ChangeBuffer),
		users:   make(map[string]bool),
		tables:  make(map[int]protocol.TableInfo),
		mirrors: make(map[int]*Table),
	}
	s.conn = transport.NewConn(stream, s.receive)
	s.conn.OnCleanup(func(*transport.Conn) {
		s.notify(Change{Kind: ChangeDisconnected, Table: -1})
		close(s.changes)
	})
	return s, nil
}

// Dial connects to a server's websocket endpoint.
func Dial(ctx context.Context, url string, opts Options) (*Session, error) {
	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	s, err := New(transport.NewWebSocketStream(ws, opts.WebSocket), opts)
	if err != nil {
		ws.Close()
		return nil, err
	}
	return s, nil
}

// Run receives until the connection ends.
func (s *Session) Run(ctx context.Context) error { return s.conn.Run(ctx) }

func (s *Session) Close() { s.conn.Stop() }

// Done is closed once the connection has been cleaned up.
func (s *Session) Done() <-chan struct{} { return s.conn.Done() }

// Changes delivers change events until the connection closes.
func (s *Session) Changes() <-chan Change { return s.changes }

func (s *Session) Username() string { return s.opts.Username }

func (s *Session) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedIn
}

func (s *Session) notify(c Change) {
	select {
	case s.changes <- c:
	default:
	}
}

func (s *Session) receive(_ *transport.Conn, env *envelope.Envelope) {
	if err := protocol.Dispatch(s.reg, env, s); err != nil {
		log.Printf("[Client] Dropped <%s>: %v", env.Name, err)
	}
}

func (s *Session) send(msg protocol.Message) error {
	return s.conn.Send(msg.Flatten())
}

func (s *Session) tableHeader(n int) protocol.TableHeader {
	return protocol.NewTableHeader(s.opts.Username, n)
}

func (s *Session) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.users))
	for u := range s.users {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func (s *Session) Tables() []protocol.TableInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.TableInfo, 0, len(s.tables))
	for _, t := range s.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Num < out[j].Num })
	return out
}

// Joined lists the tables this session mirrors.
func (s *Session) Joined() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int, 0, len(s.mirrors))
	for n := range s.mirrors {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// View runs fn against the mirror of table n while holding the read lock.
// fn must not retain the mirror or call back into the session.
func (s *Session) View(n int, fn func(t *Table)) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.mirrors[n]
	if !ok {
		return ErrNotJoined
	}
	fn(t)
	return nil
}

// Players returns a copy of table n's player list.
func (s *Session) Players(n int) (*seat.PlayerList, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.mirrors[n]
	if !ok {
		return nil, false
	}
	return t.Players.Clone(), true
}

// ModelSnapshot flattens table n's mirrored model, or nil while no game runs.
func (s *Session) ModelSnapshot(n int) *envelope.Envelope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.mirrors[n]
	if !ok || t.Model == nil {
		return nil
	}
	return t.Model.Flatten(game.Authority)
}

// CurrentPlayer is the username holding the turn at table n, or "".
func (s *Session) CurrentPlayer(n int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.mirrors[n]; ok {
		return t.Players.TurnPlayer()
	}
	return ""
}

// SeatNum is this session's seat at table n, or seat.NoPlayer.
func (s *Session) SeatNum(n int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.mirrors[n]; ok {
		return t.Players.Seat(s.opts.Username)
	}
	return seat.NoPlayer
}

func (s *Session) IsMyTurn(n int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.mirrors[n]
	if !ok {
		return false
	}
	mine := t.Players.Seat(s.opts.Username)
	return mine != seat.NoPlayer && mine == t.Players.Turn()
}

// PlayerState is this session's seat state at table n.
func (s *Session) PlayerState(n int) (seat.State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.mirrors[n]
	if !ok {
		return seat.Viewing, false
	}
	p, ok := t.Players.Player(s.opts.Username)
	return p.State, ok
}
