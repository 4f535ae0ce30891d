package seat

import (
	"errors"
	"testing"

	"tablekit/envelope"
)

var allStates = []State{Viewing, Seated, ReadyToStart, GameStarted}
var allEvents = []Event{EventSit, EventStand, EventStart, EventBegin}

func TestNext_IsTotal(t *testing.T) {
	want := map[transitionKey]State{
		{Viewing, EventSit}:        Seated,
		{Seated, EventStand}:       Viewing,
		{Seated, EventStart}:       ReadyToStart,
		{ReadyToStart, EventStand}: Viewing,
		{ReadyToStart, EventBegin}: GameStarted,
	}
	for _, s := range allStates {
		for _, ev := range allEvents {
			got := Next(s, ev)
			expected, ok := want[transitionKey{s, ev}]
			if !ok {
				expected = s
			}
			if got != expected {
				t.Fatalf("Next(%v, %v) = %v, want %v", s, ev, got, expected)
			}
		}
	}
}

func TestGameStarted_HasNoOutgoingTransition(t *testing.T) {
	for _, ev := range allEvents {
		if got := Next(GameStarted, ev); got != GameStarted {
			t.Fatalf("Next(GameStarted, %v) = %v", ev, got)
		}
	}
	if CanStand(GameStarted) {
		t.Fatalf("standing out of a running game must be refused")
	}
	if !CanOfferDrawResign(GameStarted) {
		t.Fatalf("draw/resign must be allowed while started")
	}
	for _, s := range []State{Viewing, Seated, ReadyToStart} {
		if CanOfferDrawResign(s) {
			t.Fatalf("draw/resign must be refused in %v", s)
		}
	}
}

func newTable7(t *testing.T) (*PlayerList, Constraints) {
	t.Helper()
	c := Constraints{MinPlayers: 2, MaxPlayers: 2}
	if err := c.Validate(); err != nil {
		t.Fatalf("constraints: %v", err)
	}
	return NewPlayerList(c.MaxPlayers), c
}

func TestScenarioA_CanStartAfterBothSeated(t *testing.T) {
	l, c := newTable7(t)
	l.Add("alice")
	l.Add("bob")

	if CanStart(l, c) {
		t.Fatalf("canStart must be false with nobody seated")
	}
	if !Allowed(l, c, Viewing, EventSit) {
		t.Fatalf("alice should be allowed to sit")
	}
	if _, err := l.Sit("alice", NoPlayer); err != nil {
		t.Fatalf("alice sit: %v", err)
	}
	if CanStart(l, c) {
		t.Fatalf("canStart must be false after one seated player")
	}
	if _, err := l.Sit("bob", NoPlayer); err != nil {
		t.Fatalf("bob sit: %v", err)
	}
	if !CanStart(l, c) {
		t.Fatalf("canStart must be true after both seated")
	}
	// idempotent read
	for i := 0; i < 3; i++ {
		if !CanStart(l, c) {
			t.Fatalf("canStart flipped on repeated read")
		}
	}
}

func TestCanStart_CountsReadyPlayers(t *testing.T) {
	l, c := newTable7(t)
	l.Add("alice")
	l.Add("bob")
	mustSit(t, l, "alice", 0)
	mustSit(t, l, "bob", 1)

	if _, err := l.Apply("alice", EventStart); err != nil {
		t.Fatal(err)
	}
	if !CanStart(l, c) {
		t.Fatalf("ready players still count towards canStart")
	}
	if err := l.Stand("bob"); err != nil {
		t.Fatal(err)
	}
	if CanStart(l, c) {
		t.Fatalf("canStart must drop below the minimum after a stand")
	}
}

func TestCanSit_CapAndStartedGame(t *testing.T) {
	l, c := newTable7(t)
	for _, u := range []string{"alice", "bob", "carol"} {
		l.Add(u)
	}
	mustSit(t, l, "alice", NoPlayer)
	if !CanSit(l, c) {
		t.Fatalf("one free seat left, canSit should hold")
	}
	mustSit(t, l, "bob", NoPlayer)
	if CanSit(l, c) {
		t.Fatalf("table is at cap, canSit must be false")
	}

	wide := Constraints{MinPlayers: 2, MaxPlayers: 3}
	l = NewPlayerList(wide.MaxPlayers)
	for _, u := range []string{"alice", "bob", "carol"} {
		l.Add(u)
	}
	mustSit(t, l, "alice", NoPlayer)
	mustSit(t, l, "bob", NoPlayer)
	l.Apply("alice", EventStart)
	l.Apply("bob", EventStart)
	if !l.AllReady() {
		t.Fatalf("expected all ready")
	}
	if n := l.Begin(); n != 2 {
		t.Fatalf("expected 2 players to begin, got %d", n)
	}
	if CanSit(l, wide) {
		t.Fatalf("canSit must be false once the game has started, even with a free seat")
	}
	if err := l.Stand("alice"); !errors.Is(err, ErrInGame) {
		t.Fatalf("expected ErrInGame standing from a running game, got %v", err)
	}
}

func TestSit_Errors(t *testing.T) {
	l := NewPlayerList(2)
	if _, err := l.Sit("ghost", 0); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
	l.Add("alice")
	l.Add("bob")
	mustSit(t, l, "alice", 1)
	if _, err := l.Sit("alice", 0); !errors.Is(err, ErrSeated) {
		t.Fatalf("expected ErrSeated, got %v", err)
	}
	if _, err := l.Sit("bob", 1); !errors.Is(err, ErrSeatTaken) {
		t.Fatalf("expected ErrSeatTaken, got %v", err)
	}
	if _, err := l.Sit("bob", 5); !errors.Is(err, ErrBadSeat) {
		t.Fatalf("expected ErrBadSeat, got %v", err)
	}
	if got := l.Seat("bob"); got != NoPlayer {
		t.Fatalf("failed sit must leave bob unseated, got %d", got)
	}
}

func TestNextSeat_SkipsNonPlaying(t *testing.T) {
	l := NewPlayerList(4)
	for _, u := range []string{"a", "b", "c"} {
		l.Add(u)
	}
	mustSit(t, l, "a", 0)
	mustSit(t, l, "b", 2)
	mustSit(t, l, "c", 3)
	l.Apply("a", EventStart)
	l.Apply("b", EventStart)
	l.Begin()

	if got := l.NextSeat(0); got != 2 {
		t.Fatalf("NextSeat(0) = %d, want 2", got)
	}
	if got := l.NextSeat(2); got != 0 {
		t.Fatalf("NextSeat(2) = %d, want 0 (seat 3 is not playing)", got)
	}
	if got := l.NextSeat(NoPlayer); got != 0 {
		t.Fatalf("NextSeat(NoPlayer) = %d, want 0", got)
	}
}

func TestEndGame_DropsVacantAndReseats(t *testing.T) {
	l := NewPlayerList(2)
	l.Add("a")
	l.Add("b")
	mustSit(t, l, "a", 0)
	mustSit(t, l, "b", 1)
	l.Apply("a", EventStart)
	l.Apply("b", EventStart)
	l.Begin()
	l.SetTurn(1)
	l.MarkVacant("b")

	l.EndGame()

	if l.Has("b") {
		t.Fatalf("vacant player should be dropped at game end")
	}
	p, _ := l.Player("a")
	if p.State != Seated || p.Seat != 0 {
		t.Fatalf("expected a back to Seated at 0, got %+v", p)
	}
	if l.Turn() != NoPlayer {
		t.Fatalf("turn cursor should be cleared")
	}
}

func TestFlatten_RoundTrip(t *testing.T) {
	l := NewPlayerList(3)
	for _, u := range []string{"a", "b", "watcher"} {
		l.Add(u)
	}
	mustSit(t, l, "a", 0)
	mustSit(t, l, "b", 2)
	l.Apply("a", EventStart)
	l.Apply("b", EventStart)
	l.Begin()
	l.SetTurn(2)
	l.MarkVacant("a")

	restored, err := ParsePlayerList(l.Flatten())
	if err != nil {
		t.Fatalf("ParsePlayerList: %v", err)
	}
	if !restored.Flatten().Equal(l.Flatten()) {
		t.Fatalf("round trip mismatch")
	}
	if restored.TurnPlayer() != "b" {
		t.Fatalf("expected turn player b, got %q", restored.TurnPlayer())
	}
	if p, _ := restored.Player("a"); !p.Vacant {
		t.Fatalf("vacancy lost in round trip")
	}
}

func TestParsePlayerList_RejectsDuplicateSeat(t *testing.T) {
	l := NewPlayerList(2)
	l.Add("a")
	mustSit(t, l, "a", 0)
	e := l.Flatten()
	dup := e.Children[0].Clone().Set("username", "z")
	e.Add(dup)
	if _, err := ParsePlayerList(e); !errors.Is(err, ErrSeatTaken) {
		t.Fatalf("expected ErrSeatTaken, got %v", err)
	}
}

func TestParsePlayerList_RejectsDuplicateUsername(t *testing.T) {
	l := NewPlayerList(2)
	l.Add("a")
	mustSit(t, l, "a", 0)
	e := l.Flatten()
	dup := e.Children[0].Clone().Set("seat", "1")
	e.Add(dup)
	if _, err := ParsePlayerList(e); !errors.Is(err, envelope.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestPut_MovesAndRejectsConflicts(t *testing.T) {
	l := NewPlayerList(2)
	if err := l.Put(Player{Username: "a", Seat: 1, State: Seated}); err != nil {
		t.Fatal(err)
	}
	if err := l.Put(Player{Username: "b", Seat: 1, State: Seated}); !errors.Is(err, ErrSeatTaken) {
		t.Fatalf("expected ErrSeatTaken, got %v", err)
	}
	if err := l.Put(Player{Username: "a", Seat: 0, State: ReadyToStart}); err != nil {
		t.Fatal(err)
	}
	if p, ok := l.AtSeat(0); !ok || p.Username != "a" || p.State != ReadyToStart {
		t.Fatalf("a should have moved to seat 0: %+v", p)
	}
	if _, ok := l.AtSeat(1); ok {
		t.Fatalf("seat 1 should be free")
	}
	if err := l.Put(Player{Username: "a", Seat: NoPlayer, State: Seated}); err != nil {
		t.Fatal(err)
	}
	if p, _ := l.Player("a"); p.State != Viewing || l.Count(Seated, ReadyToStart) != 0 {
		t.Fatalf("observer must be Viewing: %+v", p)
	}
	if err := l.Put(Player{Username: "c", Seat: 5}); !errors.Is(err, ErrBadSeat) {
		t.Fatalf("expected ErrBadSeat, got %v", err)
	}
}

func mustSit(t *testing.T, l *PlayerList, username string, seatNum int) int {
	t.Helper()
	got, err := l.Sit(username, seatNum)
	if err != nil {
		t.Fatalf("Sit(%s, %d): %v", username, seatNum, err)
	}
	return got
}
