// Package gametest provides an in-memory game.Table for controller tests.
package gametest

import (
	"tablekit/envelope"
	"tablekit/game"
	"tablekit/protocol"
	"tablekit/seat"
)

// Delivery is one recorded outbound message. To is empty for broadcasts.
type Delivery struct {
	To  string
	Msg protocol.TableMessage
}

// Table records everything a controller does to it.
type Table struct {
	num     int
	players *seat.PlayerList
	model   game.Model

	Sent   []Delivery
	Models map[string][]*envelope.Envelope
	Result *game.Result
	Overs  int
}

// New seats usernames in order and moves them all into a running game.
func New(num int, model game.Model, usernames ...string) *Table {
	l := seat.NewPlayerList(len(usernames))
	for i, u := range usernames {
		l.Add(u)
		l.Sit(u, i)
		l.Apply(u, seat.EventStart)
	}
	l.Begin()
	return &Table{num: num, players: l, model: model, Models: make(map[string][]*envelope.Envelope)}
}

func (t *Table) Num() int                  { return t.num }
func (t *Table) GameID() string            { return "test-game" }
func (t *Table) Players() *seat.PlayerList { return t.players }
func (t *Table) Turn() int                 { return t.players.Turn() }

func (t *Table) SetTurn(seatNum int) {
	t.players.SetTurn(seatNum)
	t.Broadcast(&protocol.NextPlayer{TableHeader: protocol.NewTableHeader("", t.num), Seat: t.players.Turn()})
}

func (t *Table) Broadcast(msg protocol.TableMessage) {
	t.Sent = append(t.Sent, Delivery{Msg: msg})
}

// BroadcastModel records one flatten per member, keyed by username.
func (t *Table) BroadcastModel() {
	for _, p := range t.players.Members() {
		v := game.Spectator
		if p.Seated() {
			v = game.SeatViewer(p.Seat)
		}
		t.Models[p.Username] = append(t.Models[p.Username], t.model.Flatten(v))
	}
}

func (t *Table) Send(username string, msg protocol.TableMessage) {
	t.Sent = append(t.Sent, Delivery{To: username, Msg: msg})
}

func (t *Table) GameOver(r game.Result) {
	t.Overs++
	if t.Result == nil {
		t.Result = &r
	}
}

// Player returns the seated player record for username.
func (t *Table) Player(username string) seat.Player {
	p, _ := t.players.Player(username)
	return p
}

// LastModel is the most recent model flatten sent to username.
func (t *Table) LastModel(username string) *envelope.Envelope {
	ms := t.Models[username]
	if len(ms) == 0 {
		return nil
	}
	return ms[len(ms)-1]
}

// Kinds lists the kinds of every recorded message in order.
func (t *Table) Kinds() []protocol.Kind {
	out := make([]protocol.Kind, len(t.Sent))
	for i, d := range t.Sent {
		out[i] = d.Msg.Kind()
	}
	return out
}
