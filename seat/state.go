package seat

import "fmt"

// NoPlayer marks "no seat": an observer's seat number, or a turn cursor that
// names nobody.
const NoPlayer = -1

// State is the lifecycle of one participant at one table.
type State uint8

const (
	Viewing State = iota
	Seated
	ReadyToStart
	GameStarted
)

var stateNames = map[State]string{
	Viewing:      "viewing",
	Seated:       "seated",
	ReadyToStart: "ready",
	GameStarted:  "started",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

func ParseState(raw string) (State, error) {
	for s, name := range stateNames {
		if name == raw {
			return s, nil
		}
	}
	return Viewing, fmt.Errorf("unknown player state %q", raw)
}

// Event is a transition request against a State.
type Event uint8

const (
	EventSit Event = iota
	EventStand
	EventStart
	// EventBegin is issued by the table, not the seat owner, once every
	// seated player is ready.
	EventBegin
)

var eventNames = map[Event]string{
	EventSit:   "sit",
	EventStand: "stand",
	EventStart: "start",
	EventBegin: "begin",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", uint8(e))
}

type transitionKey struct {
	from State
	ev   Event
}

var transitions = map[transitionKey]State{
	{Viewing, EventSit}:        Seated,
	{Seated, EventStand}:       Viewing,
	{Seated, EventStart}:       ReadyToStart,
	{ReadyToStart, EventStand}: Viewing,
	{ReadyToStart, EventBegin}: GameStarted,
}

// Next is total: pairs without an entry leave the state unchanged.
func Next(s State, ev Event) State {
	if to, ok := transitions[transitionKey{s, ev}]; ok {
		return to
	}
	return s
}

// Constraints are the table/game limits the guards are evaluated against.
type Constraints struct {
	MinPlayers int
	MaxPlayers int
}

func (c Constraints) Validate() error {
	if c.MinPlayers <= 0 {
		return fmt.Errorf("MinPlayers must be > 0")
	}
	if c.MaxPlayers < c.MinPlayers {
		return fmt.Errorf("MaxPlayers must be >= MinPlayers")
	}
	return nil
}

// CanSit is true while no game is running and the seated count is below the cap.
func CanSit(l *PlayerList, c Constraints) bool {
	return !l.Started() && l.Count(Seated, ReadyToStart, GameStarted) < c.MaxPlayers
}

// CanStand is false once the game has started.
func CanStand(s State) bool {
	return s == Seated || s == ReadyToStart
}

func CanStart(l *PlayerList, c Constraints) bool {
	return l.Count(Seated, ReadyToStart) >= c.MinPlayers
}

func CanOfferDrawResign(s State) bool {
	return s == GameStarted
}

// Allowed evaluates the guard that protects ev for a participant currently in s.
func Allowed(l *PlayerList, c Constraints, s State, ev Event) bool {
	switch ev {
	case EventSit:
		return s == Viewing && CanSit(l, c)
	case EventStand:
		return CanStand(s)
	case EventStart:
		return s == Seated && CanStart(l, c)
	case EventBegin:
		return s == ReadyToStart
	default:
		return false
	}
}
