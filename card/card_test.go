package card

import (
	"math/rand"
	"testing"
)

func TestParse_RoundTrip(t *testing.T) {
	for _, c := range NewDeck() {
		got, err := Parse(c.String())
		if err != nil {
			t.Fatalf("Parse(%s): %v", c, err)
		}
		if got != c {
			t.Fatalf("Parse(%s) = %v", c, got)
		}
	}
	if c, err := Parse("10h"); err != nil || c != New(Heart, 10) {
		t.Fatalf("Parse(10h) = %v, %v", c, err)
	}
	for _, bad := range []string{"", "A", "1s", "Ax", "Zs"} {
		if _, err := Parse(bad); err == nil {
			t.Fatalf("Parse(%q) should fail", bad)
		}
	}
}

func TestValue_AceHigh(t *testing.T) {
	if New(Spade, 1).Value() != 14 || New(Spade, 13).Value() != 13 {
		t.Fatalf("unexpected values")
	}
	if Rear.Rank() != 0 || Rear.Valid() {
		t.Fatalf("rear must not carry a rank")
	}
}

func TestDeck_ShuffleDealRemove(t *testing.T) {
	d := NewDeck()
	if len(d) != 52 {
		t.Fatalf("deck size %d", len(d))
	}
	d.Shuffle(rand.New(rand.NewSource(1)))
	hand, ok := d.Deal(5)
	if !ok || len(hand) != 5 || len(d) != 47 {
		t.Fatalf("deal: ok=%v hand=%d left=%d", ok, len(hand), len(d))
	}
	if !hand.Remove(hand[2]) || len(hand) != 4 {
		t.Fatalf("remove failed")
	}
	if _, ok := d.Deal(100); ok {
		t.Fatalf("dealing past the end must fail")
	}
	got, err := Split(Join(hand))
	if err != nil || len(got) != 4 {
		t.Fatalf("split: %v %v", got, err)
	}
	if Join(hand.Hidden()) != "?? ?? ?? ??" {
		t.Fatalf("hidden = %q", Join(hand.Hidden()))
	}
}
