package card

import "math/rand"

type List []Card

// NewDeck returns the 52 cards in suit then rank order.
func NewDeck() List {
	out := make(List, 0, 52)
	for s := Spade; s <= Diamond; s++ {
		for r := byte(1); r <= 13; r++ {
			out = append(out, New(s, r))
		}
	}
	return out
}

func (l List) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(l), func(i, j int) {
		l[i], l[j] = l[j], l[i]
	})
}

// Deal removes n cards from the top of the list.
func (l *List) Deal(n int) (List, bool) {
	if n > len(*l) {
		return nil, false
	}
	out := make(List, n)
	copy(out, (*l)[:n])
	*l = (*l)[n:]
	return out, true
}

func (l List) Contains(c Card) bool {
	return l.Index(c) >= 0
}

func (l List) Index(c Card) int {
	for i, x := range l {
		if x == c {
			return i
		}
	}
	return -1
}

// Remove drops the first occurrence of c.
func (l *List) Remove(c Card) bool {
	i := l.Index(c)
	if i < 0 {
		return false
	}
	*l = append((*l)[:i], (*l)[i+1:]...)
	return true
}

// Hidden returns a list of the same length made of face-down cards.
func (l List) Hidden() List {
	out := make(List, len(l))
	for i := range out {
		out[i] = Rear
	}
	return out
}
