package tictactoe

import (
	"fmt"

	"tablekit/envelope"
	"tablekit/game"
	"tablekit/protocol"
	"tablekit/seat"
)

const (
	Name = "tictactoe"

	KindPlace = protocol.KindGameDefined + 1

	msgPlace = "ttt_place"
)

// Place asks to mark a cell, numbered 0..8 row by row.
type Place struct {
	protocol.TableHeader
	Cell int
}

func (*Place) Kind() protocol.Kind { return KindPlace }

func (m *Place) Flatten() *envelope.Envelope {
	return protocol.StampTable(envelope.New(msgPlace), m.TableHeader).SetInt("cell", m.Cell)
}

func decodePlace(e *envelope.Envelope) (protocol.Message, error) {
	h, err := protocol.ReadTableHeader(e)
	if err != nil {
		return nil, err
	}
	cell, err := e.Int("cell")
	if err != nil {
		return nil, err
	}
	return &Place{TableHeader: h, Cell: cell}, nil
}

var Definition = game.Definition{
	Name:       Name,
	MinPlayers: 2,
	MaxPlayers: 2,
	TurnBased:  true,
	Register: func(reg *protocol.Registry) {
		reg.Register(msgPlace, KindPlace, decodePlace)
	},
	NewController: func() game.Controller { return &Controller{board: NewBoard()} },
	NewModel:      func() game.Model { return NewBoard() },
}

type Controller struct {
	board *Board
}

func (c *Controller) Model() game.Model { return c.board }

func (c *Controller) StartGame(t game.Table) error {
	seats := game.PlayingSeats(t.Players())
	if len(seats) != 2 || seats[0] != 0 || seats[1] != 1 {
		return fmt.Errorf("tictactoe needs seats 0 and 1, got %v", seats)
	}
	c.board.Reset()
	t.BroadcastModel()
	t.SetTurn(0)
	return nil
}

func (c *Controller) ParseTableMessage(t game.Table, from seat.Player, msg protocol.TableMessage) error {
	place, ok := msg.(*Place)
	if !ok {
		return fmt.Errorf("%w: %s", game.ErrUnexpectedMsg, msg.Kind())
	}
	if from.Seat != t.Turn() {
		return game.ErrNotYourTurn
	}
	if err := c.board.Place(place.Cell, MarkFor(from.Seat)); err != nil {
		return err
	}
	t.BroadcastModel()

	seats := game.PlayingSeats(t.Players())
	if w := c.board.Winner(); w != Empty {
		t.GameOver(game.Winners(seats, []int{SeatFor(w)}, fmt.Sprintf("%c wins in %d", w, c.board.Moves())))
		return nil
	}
	if c.board.Full() {
		t.GameOver(game.Uniform(seats, protocol.ResultDraw, "draw"))
		return nil
	}
	t.SetTurn(t.Players().NextSeat(from.Seat))
	return nil
}
