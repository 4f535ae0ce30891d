package highcard

import (
	"fmt"
	"math/rand"
	"time"

	"tablekit/card"
	"tablekit/envelope"
	"tablekit/game"
	"tablekit/protocol"
	"tablekit/seat"
)

const (
	Name = "highcard"

	KindPlayCard = protocol.KindGameDefined + 16
	KindPlayed   = protocol.KindGameDefined + 17

	msgPlayCard = "hc_play"
	msgPlayed   = "hc_played"
)

// PlayCard is a player's request to play a card.
type PlayCard struct {
	protocol.TableHeader
	Card card.Card
}

func (*PlayCard) Kind() protocol.Kind { return KindPlayCard }

func (m *PlayCard) Flatten() *envelope.Envelope {
	return protocol.StampTable(envelope.New(msgPlayCard), m.TableHeader).Set("card", m.Card.String())
}

// Played is the server's delta once a card has been accepted.
type Played struct {
	protocol.TableHeader
	Seat int
	Card card.Card
}

func (*Played) Kind() protocol.Kind { return KindPlayed }

func (m *Played) Flatten() *envelope.Envelope {
	return protocol.StampTable(envelope.New(msgPlayed), m.TableHeader).
		SetInt("seat", m.Seat).
		Set("card", m.Card.String())
}

func readCard(e *envelope.Envelope) (card.Card, error) {
	raw, err := e.String("card")
	if err != nil {
		return card.Invalid, err
	}
	c, err := card.Parse(raw)
	if err != nil {
		return card.Invalid, &envelope.AttrError{Element: e.Name, Attr: "card", Value: raw, Err: err}
	}
	return c, nil
}

func decodePlayCard(e *envelope.Envelope) (protocol.Message, error) {
	h, err := protocol.ReadTableHeader(e)
	if err != nil {
		return nil, err
	}
	c, err := readCard(e)
	if err != nil {
		return nil, err
	}
	return &PlayCard{TableHeader: h, Card: c}, nil
}

func decodePlayed(e *envelope.Envelope) (protocol.Message, error) {
	h, err := protocol.ReadTableHeader(e)
	if err != nil {
		return nil, err
	}
	s, err := e.Int("seat")
	if err != nil {
		return nil, err
	}
	c, err := readCard(e)
	if err != nil {
		return nil, err
	}
	return &Played{TableHeader: h, Seat: s, Card: c}, nil
}

func register(reg *protocol.Registry) {
	reg.Register(msgPlayCard, KindPlayCard, decodePlayCard)
	reg.Register(msgPlayed, KindPlayed, decodePlayed)
}

// Definition shuffles with a time-seeded source.
var Definition = WithSeed(time.Now().UnixNano())

// WithSeed returns a definition whose controllers shuffle deterministically.
func WithSeed(seed int64) game.Definition {
	src := rand.New(rand.NewSource(seed))
	return game.Definition{
		Name:       Name,
		MinPlayers: 2,
		MaxPlayers: 4,
		TurnBased:  true,
		Register:   register,
		NewController: func() game.Controller {
			return &Controller{model: NewModel(), rng: rand.New(rand.NewSource(src.Int63()))}
		},
		NewModel: func() game.Model { return NewModel() },
	}
}

type Controller struct {
	model *Model
	rng   *rand.Rand
}

func (c *Controller) Model() game.Model { return c.model }

func (c *Controller) StartGame(t game.Table) error {
	seats := game.PlayingSeats(t.Players())
	deck := card.NewDeck()
	deck.Shuffle(c.rng)
	if err := c.model.Deal(seats, deck); err != nil {
		return err
	}
	t.BroadcastModel()
	t.SetTurn(c.model.ToPlay())
	return nil
}

func (c *Controller) ParseTableMessage(t game.Table, from seat.Player, msg protocol.TableMessage) error {
	req, ok := msg.(*PlayCard)
	if !ok {
		return fmt.Errorf("%w: %s", game.ErrUnexpectedMsg, msg.Kind())
	}
	if !c.model.Hand(from.Seat).Contains(req.Card) {
		return fmt.Errorf("%w: %v not in hand", game.ErrIllegalMove, req.Card)
	}
	if _, err := c.model.Play(from.Seat, req.Card); err != nil {
		return err
	}
	t.Broadcast(&Played{TableHeader: protocol.NewTableHeader(from.Username, t.Num()), Seat: from.Seat, Card: req.Card})
	if c.model.Done() {
		t.GameOver(game.Winners(c.model.Seats(), c.model.Winners(), c.model.Score()))
		return nil
	}
	t.SetTurn(c.model.ToPlay())
	return nil
}
