// Package highcard is a small trick-taking game with hidden hands. Each seat
// is dealt HandSize cards; everyone plays one card per trick in seat order and
// the highest card (aces high, first played wins ties) takes the trick. Most
// tricks wins.
package highcard

import (
	"fmt"
	"sort"
	"strings"

	"tablekit/card"
	"tablekit/envelope"
	"tablekit/game"
	"tablekit/protocol"
	"tablekit/seat"
)

const (
	HandSize = 5

	elemModel = "highcard"
	elemHand  = "hand"
	elemPlay  = "play"
	elemWon   = "won"
)

type Play struct {
	Seat int
	Card card.Card
}

// Model is shared by the server controller and the client mirrors. A mirror
// restored from a filtered flatten holds card.Rear for cards it cannot see.
type Model struct {
	seats  []int
	hands  map[int]card.List
	trick  []Play
	won    map[int]int
	leader int
	round  int
}

func NewModel() *Model {
	return &Model{hands: map[int]card.List{}, won: map[int]int{}, leader: seat.NoPlayer}
}

// Deal starts a game for seats from a shuffled deck.
func (m *Model) Deal(seats []int, deck card.List) error {
	if len(deck) < len(seats)*HandSize {
		return fmt.Errorf("deck too small for %d seats", len(seats))
	}
	*m = *NewModel()
	m.seats = append([]int(nil), seats...)
	for _, s := range seats {
		hand, _ := deck.Deal(HandSize)
		m.hands[s] = hand
		m.won[s] = 0
	}
	if len(seats) > 0 {
		m.leader = seats[0]
	}
	return nil
}

func (m *Model) Seats() []int { return append([]int(nil), m.seats...) }

func (m *Model) Hand(seatNum int) card.List { return append(card.List(nil), m.hands[seatNum]...) }

func (m *Model) Trick() []Play { return append([]Play(nil), m.trick...) }

func (m *Model) Won(seatNum int) int { return m.won[seatNum] }

func (m *Model) Leader() int { return m.leader }

func (m *Model) Round() int { return m.round }

// Done reports whether every hand has been played out.
func (m *Model) Done() bool {
	if len(m.seats) == 0 {
		return false
	}
	for _, s := range m.seats {
		if len(m.hands[s]) > 0 {
			return false
		}
	}
	return len(m.trick) == 0
}

// ToPlay is the seat expected to play next.
func (m *Model) ToPlay() int {
	if len(m.seats) == 0 || m.Done() {
		return seat.NoPlayer
	}
	start := 0
	for i, s := range m.seats {
		if s == m.leader {
			start = i
		}
	}
	return m.seats[(start+len(m.trick))%len(m.seats)]
}

// Play plays c from seatNum's hand. When the trick completes it is resolved
// and the winning seat is returned, otherwise NoPlayer. A mirror that cannot
// see the hand drops one face-down card instead.
func (m *Model) Play(seatNum int, c card.Card) (int, error) {
	if seatNum != m.ToPlay() {
		return seat.NoPlayer, fmt.Errorf("%w: seat %d, expected %d", game.ErrNotYourTurn, seatNum, m.ToPlay())
	}
	if !c.Valid() {
		return seat.NoPlayer, fmt.Errorf("%w: card %v", game.ErrIllegalMove, c)
	}
	hand := m.hands[seatNum]
	if !hand.Remove(c) && !hand.Remove(card.Rear) {
		return seat.NoPlayer, fmt.Errorf("%w: %v not in hand", game.ErrIllegalMove, c)
	}
	m.hands[seatNum] = hand
	m.trick = append(m.trick, Play{Seat: seatNum, Card: c})
	if len(m.trick) < len(m.seats) {
		return seat.NoPlayer, nil
	}
	best := m.trick[0]
	for _, p := range m.trick[1:] {
		if p.Card.Value() > best.Card.Value() {
			best = p
		}
	}
	m.won[best.Seat]++
	m.leader = best.Seat
	m.round++
	m.trick = nil
	return best.Seat, nil
}

// Winners lists the seats with the most tricks.
func (m *Model) Winners() []int {
	top := -1
	var out []int
	for _, s := range m.seats {
		switch n := m.won[s]; {
		case n > top:
			top, out = n, []int{s}
		case n == top:
			out = append(out, s)
		}
	}
	return out
}

// Score renders "0:3 1:2" as seat:tricks pairs.
func (m *Model) Score() string {
	parts := make([]string, 0, len(m.seats))
	for _, s := range m.seats {
		parts = append(parts, fmt.Sprintf("%d:%d", s, m.won[s]))
	}
	return strings.Join(parts, " ")
}

func (m *Model) Flatten(v game.Viewer) *envelope.Envelope {
	e := envelope.New(elemModel).
		SetInt("leader", m.leader).
		SetInt("round", m.round)
	for _, s := range m.seats {
		hand := m.hands[s]
		if !v.CanSee(s) {
			hand = hand.Hidden()
		}
		e.Add(envelope.New(elemHand).
			SetInt("seat", s).
			Set("cards", card.Join(hand)).
			SetInt("won", m.won[s]))
	}
	for _, p := range m.trick {
		e.Add(envelope.New(elemPlay).SetInt("seat", p.Seat).Set("card", p.Card.String()))
	}
	return e
}

func (m *Model) SetState(e *envelope.Envelope) error {
	if e == nil || e.Name != elemModel {
		return fmt.Errorf("expected <%s>: %w", elemModel, envelope.ErrMalformed)
	}
	next := NewModel()
	var err error
	if next.leader, err = e.Int("leader"); err != nil {
		return err
	}
	if next.round, err = e.Int("round"); err != nil {
		return err
	}
	for _, h := range e.ChildrenNamed(elemHand) {
		s, err := h.Int("seat")
		if err != nil {
			return err
		}
		cards, err := card.Split(h.Attr("cards"))
		if err != nil {
			return &envelope.AttrError{Element: h.Name, Attr: "cards", Value: h.Attr("cards"), Err: err}
		}
		won, err := h.IntOr("won", 0)
		if err != nil {
			return err
		}
		if _, dup := next.hands[s]; dup {
			return fmt.Errorf("seat %d listed twice: %w", s, envelope.ErrMalformed)
		}
		next.seats = append(next.seats, s)
		next.hands[s] = cards
		next.won[s] = won
	}
	sort.Ints(next.seats)
	for _, p := range e.ChildrenNamed(elemPlay) {
		s, err := p.Int("seat")
		if err != nil {
			return err
		}
		c, err := card.Parse(p.Attr("card"))
		if err != nil {
			return &envelope.AttrError{Element: p.Name, Attr: "card", Value: p.Attr("card"), Err: err}
		}
		next.trick = append(next.trick, Play{Seat: s, Card: c})
	}
	*m = *next
	return nil
}

// Apply keeps a mirror current from played deltas.
func (m *Model) Apply(msg protocol.Message) error {
	p, ok := msg.(*Played)
	if !ok {
		return fmt.Errorf("%w: %s", game.ErrUnexpectedMsg, msg.Kind())
	}
	_, err := m.Play(p.Seat, p.Card)
	return err
}
