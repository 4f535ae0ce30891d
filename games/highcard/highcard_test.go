package highcard

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tablekit/card"
	"tablekit/game"
	"tablekit/game/gametest"
	"tablekit/protocol"
)

var players = []string{"alice", "bob", "carol"}

func started(t *testing.T) (*Controller, *gametest.Table) {
	t.Helper()
	c := WithSeed(42).NewController().(*Controller)
	tbl := gametest.New(3, c.Model(), players...)
	if err := c.StartGame(tbl); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	return c, tbl
}

func TestStartGame_HidesOpponentHands(t *testing.T) {
	c, tbl := started(t)
	snap := tbl.LastModel("alice")
	if snap == nil {
		t.Fatalf("alice got no model")
	}
	for _, h := range snap.ChildrenNamed(elemHand) {
		cards := h.Attr("cards")
		seatNum, _ := h.Int("seat")
		hidden := strings.Trim(strings.ReplaceAll(cards, " ", ""), "?") == ""
		if seatNum == 0 && hidden {
			t.Fatalf("alice must see her own cards, got %q", cards)
		}
		if seatNum != 0 && !hidden {
			t.Fatalf("alice must not see seat %d cards %q", seatNum, cards)
		}
	}
	spec := c.model.Flatten(game.Spectator)
	for _, h := range spec.ChildrenNamed(elemHand) {
		if strings.Contains(strings.ReplaceAll(h.Attr("cards"), "??", ""), "s") {
			t.Fatalf("spectator view leaked a card: %q", h.Attr("cards"))
		}
	}
	if tbl.Turn() != 0 {
		t.Fatalf("seat 0 leads the first trick, turn=%d", tbl.Turn())
	}
}

func TestPlayCard_RejectsCardsNotHeld(t *testing.T) {
	c, tbl := started(t)
	var foreign card.Card
	for _, x := range c.model.Hand(1) {
		foreign = x
	}
	req := &PlayCard{TableHeader: protocol.NewTableHeader("alice", 3), Card: foreign}
	if err := c.ParseTableMessage(tbl, tbl.Player("alice"), req); !errors.Is(err, game.ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	own := c.model.Hand(1)[0]
	req = &PlayCard{TableHeader: protocol.NewTableHeader("bob", 3), Card: own}
	if err := c.ParseTableMessage(tbl, tbl.Player("bob"), req); !errors.Is(err, game.ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
}

// A mirror restored from its own filtered snapshot and fed only the played
// deltas stays equal to the server's flatten for that viewer.
func TestMirror_ConvergesThroughDeltas(t *testing.T) {
	c, tbl := started(t)
	mirror := NewModel()
	if err := mirror.SetState(tbl.LastModel("bob")); err != nil {
		t.Fatalf("restore: %v", err)
	}
	applied := len(tbl.Sent)

	for !c.model.Done() {
		if err := game.RoundTrip(c.model, NewModel()); err != nil {
			t.Fatalf("round %d: %v", c.model.Round(), err)
		}
		s := c.model.ToPlay()
		username := players[s]
		req := &PlayCard{TableHeader: protocol.NewTableHeader(username, 3), Card: c.model.Hand(s)[0]}
		if err := c.ParseTableMessage(tbl, tbl.Player(username), req); err != nil {
			t.Fatalf("%s play: %v", username, err)
		}
		for _, d := range tbl.Sent[applied:] {
			if d.Msg.Kind() == KindPlayed {
				if err := mirror.Apply(d.Msg); err != nil {
					t.Fatalf("apply: %v", err)
				}
			}
		}
		applied = len(tbl.Sent)
		want := c.model.Flatten(game.SeatViewer(1))
		if diff := cmp.Diff(want, mirror.Flatten(game.SeatViewer(1))); diff != "" {
			t.Fatalf("mirror diverged (-want +got):\n%s", diff)
		}
	}

	if tbl.Overs != 1 {
		t.Fatalf("expected one game over, got %d", tbl.Overs)
	}
	total := 0
	for _, s := range c.model.Seats() {
		total += c.model.Won(s)
	}
	if total != HandSize || c.model.Round() != HandSize {
		t.Fatalf("expected %d tricks, got %d over %d rounds", HandSize, total, c.model.Round())
	}
	wins := 0
	for _, code := range tbl.Result.Codes {
		if code == protocol.ResultWin || code == protocol.ResultDraw {
			wins++
		}
	}
	if wins == 0 {
		t.Fatalf("someone must win: %+v", tbl.Result)
	}
}

func TestTrick_FirstPlayedWinsTies(t *testing.T) {
	m := NewModel()
	deck := card.List{
		card.New(card.Spade, 13), card.New(card.Spade, 2), card.New(card.Spade, 3), card.New(card.Spade, 4), card.New(card.Spade, 5),
		card.New(card.Heart, 13), card.New(card.Heart, 2), card.New(card.Heart, 3), card.New(card.Heart, 4), card.New(card.Heart, 5),
	}
	if err := m.Deal([]int{0, 1}, deck); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Play(0, card.New(card.Spade, 13)); err != nil {
		t.Fatal(err)
	}
	winner, err := m.Play(1, card.New(card.Heart, 13))
	if err != nil {
		t.Fatal(err)
	}
	if winner != 0 || m.Leader() != 0 || m.Won(0) != 1 {
		t.Fatalf("first king should take the trick, winner=%d", winner)
	}
}

func TestMessages_WireRoundTrip(t *testing.T) {
	reg := protocol.NewRegistry()
	register(reg)
	in := &Played{TableHeader: protocol.NewTableHeader("bob", 9), Seat: 1, Card: card.New(card.Diamond, 12)}
	out, err := reg.Decode(in.Flatten())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("played mismatch:\n%s", diff)
	}
	bad := (&PlayCard{TableHeader: protocol.NewTableHeader("bob", 9), Card: card.New(card.Club, 1)}).Flatten().Set("card", "Zz")
	if _, err := reg.Decode(bad); err == nil {
		t.Fatalf("garbage card must not decode")
	}
}
