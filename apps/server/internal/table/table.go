package table

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"tablekit/envelope"
	"tablekit/game"
	"tablekit/protocol"
	"tablekit/seat"
)

// Table is the authority for one table number. All state below mu is owned by
// the actor goroutine; mu only guards what other goroutines read.
type Table struct {
	num int
	def game.Definition

	mu       sync.RWMutex
	players  *seat.PlayerList
	ctrl     game.Controller
	gameID   string
	seq      uint64
	closed   bool
	stopOnce sync.Once

	// GameOver already issued for the running instance
	over      bool
	drawOffer int

	// effects of the event being handled; released only on success
	pending  []delivery
	overInfo *GameOverInfo
	vacated  []seat.Player

	events chan Event
	done   chan struct{}

	deliver    DeliverFunc
	emptySince time.Time
	info       protocol.TableInfo

	gameOverHooks []GameOverHook
	vacancyHooks  []VacancyHook
	changeHooks   []ChangeHook
}

// DeliverFunc hands an envelope to username's connection. It must not block.
type DeliverFunc func(username string, env *envelope.Envelope)

type delivery struct {
	to  string
	env *envelope.Envelope
}

type EventType int

const (
	EventJoin EventType = iota
	EventLeave
	EventMessage
	EventConnLost
	EventAbort
	EventClose
)

func (e EventType) String() string {
	switch e {
	case EventJoin:
		return "join"
	case EventLeave:
		return "leave"
	case EventMessage:
		return "message"
	case EventConnLost:
		return "conn_lost"
	case EventAbort:
		return "abort"
	case EventClose:
		return "close"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// Event is one unit of work for the table actor.
type Event struct {
	Type      EventType
	Username  string
	Msg       protocol.TableMessage
	Timestamp time.Time
	Response  chan error
}

// GameOverInfo is handed to persistence once per finished game instance.
type GameOverInfo struct {
	Table   int
	Game    string
	GameID  string
	Players []string
	Seats   []int
	Codes   []protocol.ResultCode
	Score   string
	EndedAt time.Time
}

type GameOverHook func(info GameOverInfo)

// VacancyHook reports a player who lost its connection while its seat is in a
// running game. The seat is left in place; the hook decides what happens next.
type VacancyHook func(tableNum int, username string, seatNum int)

// ChangeHook receives the lobby summary whenever it changes. It runs on the
// actor goroutine and must not call back into the table.
type ChangeHook func(info protocol.TableInfo)

var (
	ErrTableClosed = errors.New("table closed")
	ErrNotMember   = errors.New("not at this table")
	ErrNotSeated   = errors.New("action requires a seat")
	ErrGuard       = errors.New("not allowed in current state")
	ErrNoGame      = errors.New("no game running")
)

func New(num int, def game.Definition, deliver DeliverFunc) (*Table, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	t := &Table{
		num:        num,
		def:        def,
		players:    seat.NewPlayerList(def.MaxPlayers),
		drawOffer:  seat.NoPlayer,
		events:     make(chan Event, 256),
		done:       make(chan struct{}),
		deliver:    deliver,
		emptySince: time.Now(),
	}
	t.info = t.buildInfo()
	go t.run()
	log.Printf("[Table %d] Created (game=%s, players=%d-%d)", num, def.Name, def.MinPlayers, def.MaxPlayers)
	return t, nil
}

func (t *Table) run() {
	for {
		select {
		case event := <-t.events:
			err := t.handleEvent(event)
			if event.Response != nil {
				event.Response <- err
			}
		case <-t.done:
			log.Printf("[Table %d] Actor stopped", t.num)
			return
		}
	}
}

func (t *Table) handleEvent(e Event) (err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed && e.Type != EventClose {
		return ErrTableClosed
	}

	cp := t.checkpointLocked()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Table %d] %s from %q panicked: %v", t.num, e.Type, e.Username, r)
			err = fmt.Errorf("table %d: internal error", t.num)
		}
		if err != nil {
			t.restoreLocked(cp)
			return
		}
		t.commitLocked()
	}()

	switch e.Type {
	case EventJoin:
		return t.handleJoin(e.Username)
	case EventLeave:
		return t.handleLeave(e.Username)
	case EventMessage:
		return t.handleMessage(e.Username, e.Msg)
	case EventConnLost:
		return t.handleConnLost(e.Username)
	case EventAbort:
		return t.handleAbort()
	case EventClose:
		t.stopLocked()
		return nil
	default:
		return fmt.Errorf("unknown event type: %d", e.Type)
	}
}

// SubmitEvent hands e to the actor and waits for it to be processed.
func (t *Table) SubmitEvent(e Event) error {
	e.Timestamp = time.Now()
	if e.Response == nil {
		e.Response = make(chan error, 1)
	}

	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return ErrTableClosed
	}

	select {
	case t.events <- e:
	case <-t.done:
		return ErrTableClosed
	}

	select {
	case err := <-e.Response:
		return err
	case <-t.done:
		return ErrTableClosed
	}
}

// Submit routes a decoded table message from username.
func (t *Table) Submit(username string, msg protocol.TableMessage) error {
	return t.SubmitEvent(Event{Type: EventMessage, Username: username, Msg: msg})
}

func (t *Table) Join(username string) error {
	return t.SubmitEvent(Event{Type: EventJoin, Username: username})
}

func (t *Table) Leave(username string) error {
	return t.SubmitEvent(Event{Type: EventLeave, Username: username})
}

func (t *Table) ConnLost(username string) error {
	return t.SubmitEvent(Event{Type: EventConnLost, Username: username})
}

// Abort ends the running game with every seat marked aborted.
func (t *Table) Abort() error {
	return t.SubmitEvent(Event{Type: EventAbort})
}

func (t *Table) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Table) stopLocked() {
	t.closed = true
	t.stopOnce.Do(func() {
		close(t.done)
	})
}

func (t *Table) IsClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

// IsIdleFor reports whether nobody has been attached for at least ttl.
func (t *Table) IsIdleFor(ttl time.Duration) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return true
	}
	if len(t.players.Members()) > 0 || t.emptySince.IsZero() {
		return false
	}
	return time.Since(t.emptySince) >= ttl
}

// Info is the latest lobby summary.
func (t *Table) Info() protocol.TableInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info
}

// Snapshot flattens the table for v, as a joining participant would see it.
func (t *Table) Snapshot(v game.Viewer) *protocol.TableState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tableStateLocked(v)
}

func (t *Table) AddGameOverHook(hook GameOverHook) {
	if hook == nil {
		return
	}
	t.mu.Lock()
	t.gameOverHooks = append(t.gameOverHooks, hook)
	t.mu.Unlock()
}

func (t *Table) AddVacancyHook(hook VacancyHook) {
	if hook == nil {
		return
	}
	t.mu.Lock()
	t.vacancyHooks = append(t.vacancyHooks, hook)
	t.mu.Unlock()
}

func (t *Table) AddChangeHook(hook ChangeHook) {
	if hook == nil {
		return
	}
	t.mu.Lock()
	t.changeHooks = append(t.changeHooks, hook)
	t.mu.Unlock()
}

// --- game.Table, called by the controller on the actor goroutine ---

func (t *Table) Num() int                  { return t.num }
func (t *Table) GameID() string            { return t.gameID }
func (t *Table) Players() *seat.PlayerList { return t.players }
func (t *Table) Turn() int                 { return t.players.Turn() }

func (t *Table) SetTurn(seatNum int) {
	t.players.SetTurn(seatNum)
	t.Broadcast(&protocol.NextPlayer{TableHeader: t.header(""), Seat: t.players.Turn()})
}

func (t *Table) Broadcast(msg protocol.TableMessage) {
	env := msg.Flatten()
	for _, p := range t.players.Members() {
		t.pending = append(t.pending, delivery{to: p.Username, env: env})
	}
}

func (t *Table) BroadcastModel() {
	if t.ctrl == nil {
		return
	}
	for _, p := range t.players.Members() {
		model := t.ctrl.Model().Flatten(viewerFor(p))
		msg := &protocol.ModelState{TableHeader: t.header(""), Model: model}
		t.pending = append(t.pending, delivery{to: p.Username, env: msg.Flatten()})
	}
}

func (t *Table) Send(username string, msg protocol.TableMessage) {
	t.pending = append(t.pending, delivery{to: username, env: msg.Flatten()})
}

func (t *Table) GameOver(r game.Result) {
	if t.ctrl == nil || t.over {
		return
	}
	t.over = true

	info := GameOverInfo{Table: t.num, Game: t.def.Name, GameID: t.gameID, Score: r.Score, EndedAt: time.Now().UTC()}
	msg := &protocol.GameOver{TableHeader: t.header(""), GameID: t.gameID, Game: t.def.Name, Score: r.Score}
	for _, s := range r.Seats() {
		p, ok := t.players.AtSeat(s)
		if !ok {
			continue
		}
		info.Players = append(info.Players, p.Username)
		info.Seats = append(info.Seats, s)
		info.Codes = append(info.Codes, r.Codes[s])
		msg.Players = append(msg.Players, p.Username)
		msg.Results = append(msg.Results, r.Codes[s])
	}
	t.Broadcast(msg)

	// vacated players leave with the instance
	for _, p := range t.players.Members() {
		if p.Vacant {
			t.Broadcast(&protocol.PlayerState{TableHeader: t.header(""), Player: p.Username, Seat: seat.NoPlayer, State: seat.Viewing, Left: true})
		}
	}
	t.players.EndGame()
	t.ctrl = nil
	t.drawOffer = seat.NoPlayer
	t.overInfo = &info
}

// --- helpers ---

func viewerFor(p seat.Player) game.Viewer {
	if p.Seat == seat.NoPlayer {
		return game.Spectator
	}
	return game.SeatViewer(p.Seat)
}

func (t *Table) header(username string) protocol.TableHeader {
	return protocol.NewTableHeader(username, t.num)
}

func (t *Table) tableStateLocked(v game.Viewer) *protocol.TableState {
	st := &protocol.TableState{TableHeader: t.header(""), Game: t.def.Name, GameID: t.gameID, Players: t.players.Clone()}
	if t.ctrl != nil {
		st.Model = t.ctrl.Model().Flatten(v)
	}
	return st
}

func (t *Table) playerStateMsg(p seat.Player) *protocol.PlayerState {
	return &protocol.PlayerState{TableHeader: t.header(""), Player: p.Username, Seat: p.Seat, State: p.State, Vacant: p.Vacant}
}

// checkpoint is everything an event may change before it is known to succeed.
type checkpoint struct {
	players   *seat.PlayerList
	ctrl      game.Controller
	model     *envelope.Envelope
	gameID    string
	over      bool
	drawOffer int
}

func (t *Table) checkpointLocked() checkpoint {
	t.pending = t.pending[:0]
	t.overInfo = nil
	t.vacated = t.vacated[:0]
	cp := checkpoint{
		players:   t.players.Clone(),
		ctrl:      t.ctrl,
		gameID:    t.gameID,
		over:      t.over,
		drawOffer: t.drawOffer,
	}
	if t.ctrl != nil {
		cp.model = t.ctrl.Model().Flatten(game.Authority)
	}
	return cp
}

func (t *Table) restoreLocked(cp checkpoint) {
	t.players = cp.players
	t.ctrl = cp.ctrl
	t.gameID = cp.gameID
	t.over = cp.over
	t.drawOffer = cp.drawOffer
	if cp.ctrl != nil && cp.model != nil {
		if err := cp.ctrl.Model().SetState(cp.model); err != nil {
			// the model cannot take back its own snapshot; nothing else is consistent
			log.Printf("[Table %d] model restore failed: %v", t.num, err)
			t.ctrl = nil
			t.players.EndGame()
		}
	}
	t.pending = t.pending[:0]
	t.overInfo = nil
	t.vacated = t.vacated[:0]
}

func (t *Table) commitLocked() {
	if len(t.pending) > 0 {
		t.seq++
	}
	if t.deliver != nil {
		for _, d := range t.pending {
			t.deliver(d.to, d.env)
		}
	}
	t.pending = t.pending[:0]

	if t.overInfo != nil {
		log.Printf("[Table %d] Game %s over: %s", t.num, t.overInfo.GameID, t.overInfo.Score)
		t.dispatchGameOverHooks(*t.overInfo)
		t.overInfo = nil
	}
	for _, p := range t.vacated {
		t.dispatchVacancyHooks(p.Username, p.Seat)
	}
	t.vacated = t.vacated[:0]

	t.updateEmptySinceLocked(time.Now())
	info := t.buildInfo()
	if cmp.Equal(info, t.info) {
		return
	}
	t.info = info
	for _, hook := range t.changeHooks {
		hook(info)
	}
}

// Seq counts committed events that sent anything.
func (t *Table) Seq() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.seq
}

func (t *Table) buildInfo() protocol.TableInfo {
	info := protocol.TableInfo{
		Num:        t.num,
		Game:       t.def.Name,
		MinPlayers: t.def.MinPlayers,
		MaxPlayers: t.def.MaxPlayers,
		Started:    t.ctrl != nil,
	}
	for _, p := range t.players.Members() {
		if p.Seat == seat.NoPlayer {
			info.Observers++
		}
	}
	for _, p := range t.players.Seated() {
		info.Seats = append(info.Seats, protocol.SeatSummary{Seat: p.Seat, Username: p.Username, State: p.State, Vacant: p.Vacant})
	}
	return info
}

func (t *Table) updateEmptySinceLocked(now time.Time) {
	if len(t.players.Members()) == 0 {
		if t.emptySince.IsZero() {
			t.emptySince = now
		}
		return
	}
	t.emptySince = time.Time{}
}

func (t *Table) newGameID() string {
	return fmt.Sprintf("%d-%s", t.num, uuid.NewString()[:8])
}

func (t *Table) dispatchGameOverHooks(info GameOverInfo) {
	if len(t.gameOverHooks) == 0 {
		return
	}
	hooks := append([]GameOverHook(nil), t.gameOverHooks...)
	for _, hook := range hooks {
		go func(cb GameOverHook) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[Table %d] game over hook panic: %v", t.num, r)
				}
			}()
			cb(info)
		}(hook)
	}
}

func (t *Table) dispatchVacancyHooks(username string, seatNum int) {
	hooks := append([]VacancyHook(nil), t.vacancyHooks...)
	for _, hook := range hooks {
		go func(cb VacancyHook) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[Table %d] vacancy hook panic: %v", t.num, r)
				}
			}()
			cb(t.num, username, seatNum)
		}(hook)
	}
}
