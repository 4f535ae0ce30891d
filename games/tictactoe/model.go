// Package tictactoe is a full-state game: every accepted move is followed by
// a complete model_state broadcast instead of an incremental delta.
package tictactoe

import (
	"fmt"
	"strings"

	"tablekit/envelope"
	"tablekit/game"
	"tablekit/seat"
)

const (
	Empty = '.'
	X     = 'x'
	O     = 'o'

	elemBoard = "tictactoe"
)

var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Board has no hidden information, so every viewer gets the same flatten.
type Board struct {
	cells [9]byte
	moves int
}

func NewBoard() *Board {
	b := &Board{}
	b.Reset()
	return b
}

func (b *Board) Reset() {
	for i := range b.cells {
		b.cells[i] = Empty
	}
	b.moves = 0
}

func (b *Board) Cell(i int) byte { return b.cells[i] }

func (b *Board) Moves() int { return b.moves }

// ToMove is the mark whose turn it is. X always opens.
func (b *Board) ToMove() byte {
	if b.moves%2 == 0 {
		return X
	}
	return O
}

// Place puts mark at cell after checking legality.
func (b *Board) Place(cell int, mark byte) error {
	if cell < 0 || cell >= len(b.cells) {
		return fmt.Errorf("%w: cell %d", game.ErrIllegalMove, cell)
	}
	if b.Winner() != Empty || b.Full() {
		return fmt.Errorf("%w: game is over", game.ErrIllegalMove)
	}
	if mark != b.ToMove() {
		return fmt.Errorf("%w: %c to move", game.ErrNotYourTurn, b.ToMove())
	}
	if b.cells[cell] != Empty {
		return fmt.Errorf("%w: cell %d taken", game.ErrIllegalMove, cell)
	}
	b.cells[cell] = mark
	b.moves++
	return nil
}

// Winner returns the mark holding a full line, or Empty.
func (b *Board) Winner() byte {
	for _, l := range lines {
		c := b.cells[l[0]]
		if c != Empty && c == b.cells[l[1]] && c == b.cells[l[2]] {
			return c
		}
	}
	return Empty
}

func (b *Board) Full() bool { return b.moves == len(b.cells) }

func (b *Board) Legal() []int {
	if b.Winner() != Empty {
		return nil
	}
	var out []int
	for i, c := range b.cells {
		if c == Empty {
			out = append(out, i)
		}
	}
	return out
}

func (b *Board) String() string { return string(b.cells[:]) }

func (b *Board) Flatten(game.Viewer) *envelope.Envelope {
	return envelope.New(elemBoard).Set("cells", b.String())
}

func (b *Board) SetState(e *envelope.Envelope) error {
	if e == nil || e.Name != elemBoard {
		return fmt.Errorf("expected <%s>: %w", elemBoard, envelope.ErrMalformed)
	}
	raw, err := e.String("cells")
	if err != nil {
		return err
	}
	if len(raw) != len(b.cells) || strings.Trim(raw, ".xo") != "" {
		return &envelope.AttrError{Element: e.Name, Attr: "cells", Value: raw, Err: fmt.Errorf("want 9 of '.', 'x', 'o'")}
	}
	xs, os := strings.Count(raw, "x"), strings.Count(raw, "o")
	if xs != os && xs != os+1 {
		return &envelope.AttrError{Element: e.Name, Attr: "cells", Value: raw, Err: fmt.Errorf("unreachable position")}
	}
	copy(b.cells[:], raw)
	b.moves = xs + os
	return nil
}

// MarkFor maps a seat to its mark.
func MarkFor(seatNum int) byte {
	if seatNum == 0 {
		return X
	}
	return O
}

// SeatFor maps a mark back to its seat.
func SeatFor(mark byte) int {
	switch mark {
	case X:
		return 0
	case O:
		return 1
	}
	return seat.NoPlayer
}
