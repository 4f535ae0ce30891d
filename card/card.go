// Package card encodes playing cards in a single byte.
//
// High nibble: suit (0 spades, 1 hearts, 2 clubs, 3 diamonds).
// Low nibble: rank (1 ace .. 13 king).
package card

import (
	"fmt"
	"strings"
)

type Card byte

const (
	Invalid Card = 0
	// Rear is a face-down card.
	Rear Card = 0xFF
)

type Suit byte

const (
	Spade Suit = iota
	Heart
	Club
	Diamond
)

const suitLetters = "shcd"

func (s Suit) String() string {
	if int(s) < len(suitLetters) {
		return suitLetters[s : s+1]
	}
	return "?"
}

func New(s Suit, rank byte) Card {
	return Card(byte(s)<<4 | rank&0x0F)
}

// Rank returns 1..13 (A=1, K=13), or 0 for Invalid and Rear.
func (c Card) Rank() byte {
	if c == Invalid || c == Rear {
		return 0
	}
	return byte(c & 0x0F)
}

func (c Card) Suit() Suit { return Suit(c >> 4) }

// Value is the comparison value with aces high.
func (c Card) Value() int {
	r := int(c.Rank())
	if r == 1 {
		return 14
	}
	return r
}

func (c Card) Valid() bool {
	r := c.Rank()
	return r >= 1 && r <= 13 && c.Suit() <= Diamond
}

// String renders "As", "Td", "9h", or "??" for a face-down card.
func (c Card) String() string {
	if c == Rear {
		return "??"
	}
	if !c.Valid() {
		return "--"
	}
	var rank string
	switch c.Rank() {
	case 1:
		rank = "A"
	case 10:
		rank = "T"
	case 11:
		rank = "J"
	case 12:
		rank = "Q"
	case 13:
		rank = "K"
	default:
		rank = fmt.Sprintf("%d", c.Rank())
	}
	return rank + c.Suit().String()
}

// Parse accepts the String form ("As", "Td", "10h") and "??" for Rear.
func Parse(s string) (Card, error) {
	if s == "??" {
		return Rear, nil
	}
	if len(s) < 2 {
		return Invalid, fmt.Errorf("invalid card %q", s)
	}
	suit := strings.IndexByte(suitLetters, strings.ToLower(s[len(s)-1:])[0])
	if suit < 0 {
		return Invalid, fmt.Errorf("invalid suit in %q", s)
	}
	var rank byte
	switch r := strings.ToUpper(s[:len(s)-1]); r {
	case "A":
		rank = 1
	case "T", "10":
		rank = 10
	case "J":
		rank = 11
	case "Q":
		rank = 12
	case "K":
		rank = 13
	default:
		if len(r) != 1 || r[0] < '2' || r[0] > '9' {
			return Invalid, fmt.Errorf("invalid rank in %q", s)
		}
		rank = r[0] - '0'
	}
	return New(Suit(suit), rank), nil
}

// Join renders cards separated by spaces.
func Join(cs []Card) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

// Split parses the output of Join.
func Split(s string) ([]Card, error) {
	fields := strings.Fields(s)
	out := make([]Card, 0, len(fields))
	for _, f := range fields {
		c, err := Parse(f)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
