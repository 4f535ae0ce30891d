package seat

import (
	"errors"
	"fmt"
	"sort"

	"tablekit/envelope"
)

var (
	ErrNotMember = errors.New("not at table")
	ErrBadSeat   = errors.New("invalid seat")
	ErrSeatTaken = errors.New("seat occupied")
	ErrSeated    = errors.New("already seated")
	ErrNoSeat    = errors.New("no free seat")
	ErrInGame    = errors.New("seat is in a running game")
)

const (
	elemPlayers = "players"
	elemPlayer  = "player"
)

// Player is one participant attached to a table. Observers have Seat == NoPlayer.
// A vacant player lost its connection while its seat was in a running game.
type Player struct {
	Username string
	Seat     int
	State    State
	Vacant   bool
}

func (p Player) Seated() bool { return p.Seat != NoPlayer }

// PlayerList maps seats to players and owns the turn cursor. It is not safe
// for concurrent use; the owning table actor or client mirror serializes access.
type PlayerList struct {
	numSeats int
	members  map[string]*Player
	seats    map[int]string
	turn     int
}

func NewPlayerList(numSeats int) *PlayerList {
	return &PlayerList{
		numSeats: numSeats,
		members:  make(map[string]*Player),
		seats:    make(map[int]string),
		turn:     NoPlayer,
	}
}

func (l *PlayerList) NumSeats() int { return l.numSeats }

// Add attaches username as an observer. An existing member is returned as is,
// with its vacancy cleared.
func (l *PlayerList) Add(username string) Player {
	if p, ok := l.members[username]; ok {
		p.Vacant = false
		return *p
	}
	p := &Player{Username: username, Seat: NoPlayer, State: Viewing}
	l.members[username] = p
	return *p
}

// Remove detaches username and frees its seat.
func (l *PlayerList) Remove(username string) {
	p, ok := l.members[username]
	if !ok {
		return
	}
	if p.Seat != NoPlayer {
		delete(l.seats, p.Seat)
	}
	delete(l.members, username)
}

func (l *PlayerList) Player(username string) (Player, bool) {
	p, ok := l.members[username]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

func (l *PlayerList) Has(username string) bool {
	_, ok := l.members[username]
	return ok
}

// Seat returns username's seat, or NoPlayer for observers and strangers.
func (l *PlayerList) Seat(username string) int {
	if p, ok := l.members[username]; ok {
		return p.Seat
	}
	return NoPlayer
}

func (l *PlayerList) AtSeat(seatNum int) (Player, bool) {
	username, ok := l.seats[seatNum]
	if !ok {
		return Player{}, false
	}
	return *l.members[username], true
}

// FreeSeat returns the lowest unoccupied seat or NoPlayer.
func (l *PlayerList) FreeSeat() int {
	for i := 0; i < l.numSeats; i++ {
		if _, taken := l.seats[i]; !taken {
			return i
		}
	}
	return NoPlayer
}

// Sit places username at seatNum. Pass NoPlayer to take the lowest free seat.
// The caller is expected to have checked the Sit guard.
func (l *PlayerList) Sit(username string, seatNum int) (int, error) {
	p, ok := l.members[username]
	if !ok {
		return NoPlayer, ErrNotMember
	}
	if p.Seat != NoPlayer {
		return NoPlayer, ErrSeated
	}
	if seatNum == NoPlayer {
		seatNum = l.FreeSeat()
		if seatNum == NoPlayer {
			return NoPlayer, ErrNoSeat
		}
	}
	if seatNum < 0 || seatNum >= l.numSeats {
		return NoPlayer, fmt.Errorf("%w: %d", ErrBadSeat, seatNum)
	}
	if _, taken := l.seats[seatNum]; taken {
		return NoPlayer, fmt.Errorf("%w: %d", ErrSeatTaken, seatNum)
	}
	p.Seat = seatNum
	p.State = Next(p.State, EventSit)
	l.seats[seatNum] = username
	return seatNum, nil
}

// Stand returns username to observer status.
func (l *PlayerList) Stand(username string) error {
	p, ok := l.members[username]
	if !ok {
		return ErrNotMember
	}
	if p.Seat == NoPlayer {
		return nil
	}
	if !CanStand(p.State) {
		return ErrInGame
	}
	delete(l.seats, p.Seat)
	p.Seat = NoPlayer
	p.State = Next(p.State, EventStand)
	return nil
}

// Apply runs ev through the transition table for username.
func (l *PlayerList) Apply(username string, ev Event) (State, error) {
	p, ok := l.members[username]
	if !ok {
		return Viewing, ErrNotMember
	}
	p.State = Next(p.State, ev)
	return p.State, nil
}

// Put records p as reported by the authority, moving it to p.Seat. Mirrors
// use it to apply player_state; it checks seat bounds but no guards.
func (l *PlayerList) Put(p Player) error {
	if p.Seat != NoPlayer && (p.Seat < 0 || p.Seat >= l.numSeats) {
		return fmt.Errorf("%w: %d", ErrBadSeat, p.Seat)
	}
	if holder, taken := l.seats[p.Seat]; taken && holder != p.Username {
		return fmt.Errorf("%w: %d", ErrSeatTaken, p.Seat)
	}
	if old, ok := l.members[p.Username]; ok && old.Seat != NoPlayer {
		delete(l.seats, old.Seat)
	}
	cp := p
	l.members[p.Username] = &cp
	if p.Seat != NoPlayer {
		l.seats[p.Seat] = p.Username
	} else {
		cp.State = Viewing
	}
	return nil
}

func (l *PlayerList) MarkVacant(username string) {
	if p, ok := l.members[username]; ok {
		p.Vacant = true
	}
}

// Count returns the number of seated players in any of the given states.
func (l *PlayerList) Count(states ...State) int {
	n := 0
	for _, username := range l.seats {
		p := l.members[username]
		for _, s := range states {
			if p.State == s {
				n++
				break
			}
		}
	}
	return n
}

// Started reports whether any seat is in a running game.
func (l *PlayerList) Started() bool {
	return l.Count(GameStarted) > 0
}

// Seated returns seated players ordered by seat.
func (l *PlayerList) Seated() []Player {
	out := make([]Player, 0, len(l.seats))
	for _, username := range l.seats {
		out = append(out, *l.members[username])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seat < out[j].Seat })
	return out
}

// Members returns every attached participant ordered by username.
func (l *PlayerList) Members() []Player {
	out := make([]Player, 0, len(l.members))
	for _, p := range l.members {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// Turn is the seat currently allowed to act, or NoPlayer.
func (l *PlayerList) Turn() int { return l.turn }

func (l *PlayerList) SetTurn(seatNum int) {
	if seatNum < 0 || seatNum >= l.numSeats {
		seatNum = NoPlayer
	}
	l.turn = seatNum
}

// TurnPlayer returns the username holding the turn, or "".
func (l *PlayerList) TurnPlayer() string {
	if l.turn == NoPlayer {
		return ""
	}
	return l.seats[l.turn]
}

// NextSeat returns the first seat after from, wrapping, whose player is in a
// running game. Vacant seats are not skipped; the table lifecycle decides
// what happens to them.
func (l *PlayerList) NextSeat(from int) int {
	if l.numSeats == 0 {
		return NoPlayer
	}
	start := from
	if start < 0 {
		start = l.numSeats - 1
	}
	for i := 1; i <= l.numSeats; i++ {
		s := (start + i) % l.numSeats
		username, ok := l.seats[s]
		if ok && l.members[username].State == GameStarted {
			return s
		}
	}
	return NoPlayer
}

// Begin moves every ready seat into the running game and returns how many moved.
func (l *PlayerList) Begin() int {
	n := 0
	for _, username := range l.seats {
		p := l.members[username]
		if p.State == ReadyToStart {
			p.State = Next(p.State, EventBegin)
			n++
		}
	}
	return n
}

// AllReady reports whether every seated player is ReadyToStart.
func (l *PlayerList) AllReady() bool {
	if len(l.seats) == 0 {
		return false
	}
	return l.Count(ReadyToStart) == len(l.seats)
}

// EndGame closes the current game instance: vacant players are dropped,
// remaining seats return to Seated and the turn cursor is cleared.
func (l *PlayerList) EndGame() {
	for username, p := range l.members {
		if p.Vacant {
			l.Remove(username)
			continue
		}
		if p.Seat != NoPlayer {
			p.State = Seated
		}
	}
	l.turn = NoPlayer
}

func (l *PlayerList) Clone() *PlayerList {
	out := NewPlayerList(l.numSeats)
	out.turn = l.turn
	for username, p := range l.members {
		cp := *p
		out.members[username] = &cp
	}
	for s, username := range l.seats {
		out.seats[s] = username
	}
	return out
}

// Flatten encodes the list, including observers and the turn cursor.
func (l *PlayerList) Flatten() *envelope.Envelope {
	e := envelope.New(elemPlayers).
		SetInt("seats", l.numSeats).
		SetInt("turn", l.turn)
	for _, p := range l.Members() {
		child := envelope.New(elemPlayer).
			Set("username", p.Username).
			SetInt("seat", p.Seat).
			Set("state", p.State.String())
		if p.Vacant {
			child.SetBool("vacant", true)
		}
		e.Add(child)
	}
	return e
}

// ParsePlayerList restores a list produced by Flatten.
func ParsePlayerList(e *envelope.Envelope) (*PlayerList, error) {
	if e == nil || e.Name != elemPlayers {
		return nil, fmt.Errorf("expected <%s>: %w", elemPlayers, envelope.ErrMalformed)
	}
	numSeats, err := e.Int("seats")
	if err != nil {
		return nil, err
	}
	turn, err := e.IntOr("turn", NoPlayer)
	if err != nil {
		return nil, err
	}
	l := NewPlayerList(numSeats)
	l.SetTurn(turn)
	for _, c := range e.ChildrenNamed(elemPlayer) {
		username, err := c.String("username")
		if err != nil {
			return nil, err
		}
		seatNum, err := c.Int("seat")
		if err != nil {
			return nil, err
		}
		rawState, err := c.String("state")
		if err != nil {
			return nil, err
		}
		state, err := ParseState(rawState)
		if err != nil {
			return nil, err
		}
		vacant, err := c.BoolOr("vacant", false)
		if err != nil {
			return nil, err
		}
		if _, dup := l.members[username]; dup {
			return nil, fmt.Errorf("duplicate player %q: %w", username, envelope.ErrMalformed)
		}
		if seatNum != NoPlayer {
			if seatNum < 0 || seatNum >= numSeats {
				return nil, fmt.Errorf("%w: %d", ErrBadSeat, seatNum)
			}
			if _, taken := l.seats[seatNum]; taken {
				return nil, fmt.Errorf("%w: %d", ErrSeatTaken, seatNum)
			}
			l.seats[seatNum] = username
		}
		l.members[username] = &Player{Username: username, Seat: seatNum, State: state, Vacant: vacant}
	}
	return l, nil
}
