// Package game declares the seam between the table core and the pluggable
// rule engines: the snapshot-able Model, the server-side Controller and the
// Table container a controller acts through.
package game

import (
	"errors"
	"fmt"
	"sort"

	"tablekit/envelope"
	"tablekit/protocol"
	"tablekit/seat"
)

var (
	ErrIllegalMove   = errors.New("illegal move")
	ErrNotYourTurn   = errors.New("not your turn")
	ErrUnexpectedMsg = errors.New("unexpected message for this game")
	ErrUnknownGame   = errors.New("unknown game")
)

// Viewer selects what a Model flatten may reveal. All is the server's own
// view; otherwise only data owned by Seat is shown in full.
type Viewer struct {
	Seat int
	All  bool
}

var (
	Authority = Viewer{Seat: seat.NoPlayer, All: true}
	Spectator = Viewer{Seat: seat.NoPlayer}
)

func SeatViewer(n int) Viewer { return Viewer{Seat: n} }

// CanSee reports whether data private to owner is visible to v.
func (v Viewer) CanSee(owner int) bool {
	return v.All || (owner != seat.NoPlayer && owner == v.Seat)
}

func (v Viewer) String() string {
	switch {
	case v.All:
		return "authority"
	case v.Seat == seat.NoPlayer:
		return "spectator"
	default:
		return fmt.Sprintf("seat %d", v.Seat)
	}
}

// Model is a game's table-scoped state. SetState(Flatten(Authority)) must
// restore an observably equal model; SetState of a filtered flatten restores
// the mirror that viewer is entitled to.
type Model interface {
	Flatten(v Viewer) *envelope.Envelope
	SetState(e *envelope.Envelope) error
}

// DeltaApplier is implemented by mirrors that accept incremental updates
// instead of a full model_state on every change.
type DeltaApplier interface {
	Apply(msg protocol.Message) error
}

// Table is the container a controller mutates through. Every call happens on
// the table's own goroutine; none of them block on the network.
type Table interface {
	Num() int
	GameID() string
	Players() *seat.PlayerList
	Turn() int
	// SetTurn moves the cursor and announces it with next_player.
	SetTurn(seatNum int)
	Broadcast(msg protocol.TableMessage)
	// BroadcastModel sends a model_state to every participant, flattened for
	// that participant's seat.
	BroadcastModel()
	Send(username string, msg protocol.TableMessage)
	// GameOver ends the running instance. Only the first call per instance counts.
	GameOver(r Result)
}

// Controller is the server-side rule engine for one table instance. StartGame
// is always called before ParseTableMessage, and calls are never concurrent.
// A returned error rejects the message; the core then restores the model and
// drops anything the controller tried to send.
type Controller interface {
	StartGame(t Table) error
	ParseTableMessage(t Table, from seat.Player, msg protocol.TableMessage) error
	Model() Model
}

// Result is a finished game's outcome, keyed by seat.
type Result struct {
	Codes map[int]protocol.ResultCode
	Score string
}

// Uniform gives every seat the same code.
func Uniform(seats []int, code protocol.ResultCode, score string) Result {
	r := Result{Codes: make(map[int]protocol.ResultCode, len(seats)), Score: score}
	for _, s := range seats {
		r.Codes[s] = code
	}
	return r
}

// Winners marks the given seats as winners and everyone else as losers.
func Winners(seats []int, winners []int, score string) Result {
	r := Uniform(seats, protocol.ResultLose, score)
	for _, w := range winners {
		r.Codes[w] = protocol.ResultWin
	}
	if len(winners) == len(seats) && len(seats) > 1 {
		return Uniform(seats, protocol.ResultDraw, score)
	}
	return r
}

// Seats returns the result's seats in ascending order.
func (r Result) Seats() []int {
	out := make([]int, 0, len(r.Codes))
	for s := range r.Codes {
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}

// PlayingSeats lists the seats of a running game in order.
func PlayingSeats(l *seat.PlayerList) []int {
	var out []int
	for _, p := range l.Seated() {
		if p.State == seat.GameStarted {
			out = append(out, p.Seat)
		}
	}
	return out
}
