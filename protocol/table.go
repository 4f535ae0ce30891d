package protocol

import (
	"fmt"
	"strings"

	"tablekit/envelope"
	"tablekit/seat"
)

type JoinTable struct {
	TableHeader
}

func (*JoinTable) Kind() Kind { return KindJoinTable }

func (m *JoinTable) Flatten() *envelope.Envelope {
	return m.stamp(envelope.New(KindJoinTable.String()))
}

type LeaveTable struct {
	TableHeader
}

func (*LeaveTable) Kind() Kind { return KindLeaveTable }

func (m *LeaveTable) Flatten() *envelope.Envelope {
	return m.stamp(envelope.New(KindLeaveTable.String()))
}

// Sit requests a seat; Seat == seat.NoPlayer takes the lowest free one.
type Sit struct {
	TableHeader
	Seat int
}

func (*Sit) Kind() Kind { return KindSit }

func (m *Sit) Flatten() *envelope.Envelope {
	return m.stamp(envelope.New(KindSit.String())).SetInt("seat", m.Seat)
}

func decodeSit(e *envelope.Envelope) (Message, error) {
	h, err := readTableHeader(e)
	if err != nil {
		return nil, err
	}
	n, err := e.IntOr("seat", seat.NoPlayer)
	if err != nil {
		return nil, err
	}
	return &Sit{TableHeader: h, Seat: n}, nil
}

type Stand struct {
	TableHeader
}

func (*Stand) Kind() Kind { return KindStand }

func (m *Stand) Flatten() *envelope.Envelope {
	return m.stamp(envelope.New(KindStand.String()))
}

// Start marks the sender ready to start.
type Start struct {
	TableHeader
}

func (*Start) Kind() Kind { return KindStart }

func (m *Start) Flatten() *envelope.Envelope {
	return m.stamp(envelope.New(KindStart.String()))
}

// PlayerState broadcasts one participant's seat and state. Left is set when
// the participant detached from the table.
type PlayerState struct {
	TableHeader
	Player string
	Seat   int
	State  seat.State
	Vacant bool
	Left   bool
}

func (*PlayerState) Kind() Kind { return KindPlayerState }

func (m *PlayerState) Flatten() *envelope.Envelope {
	e := m.stamp(envelope.New(KindPlayerState.String())).
		Set("player", m.Player).
		SetInt("seat", m.Seat).
		Set("state", m.State.String())
	if m.Vacant {
		e.SetBool("vacant", true)
	}
	if m.Left {
		e.SetBool("left", true)
	}
	return e
}

func decodePlayerState(e *envelope.Envelope) (Message, error) {
	h, err := readTableHeader(e)
	if err != nil {
		return nil, err
	}
	m := &PlayerState{TableHeader: h}
	if m.Player, err = e.String("player"); err != nil {
		return nil, err
	}
	if m.Seat, err = e.Int("seat"); err != nil {
		return nil, err
	}
	raw, err := e.String("state")
	if err != nil {
		return nil, err
	}
	if m.State, err = seat.ParseState(raw); err != nil {
		return nil, err
	}
	if m.Vacant, err = e.BoolOr("vacant", false); err != nil {
		return nil, err
	}
	if m.Left, err = e.BoolOr("left", false); err != nil {
		return nil, err
	}
	return m, nil
}

// TableState is the full snapshot handed to a participant that opens a
// table, or that asks for a resync. Model is nil while no game is running.
type TableState struct {
	TableHeader
	Game    string
	GameID  string
	Players *seat.PlayerList
	Model   *envelope.Envelope
}

func (*TableState) Kind() Kind { return KindTableState }

func (m *TableState) Flatten() *envelope.Envelope {
	e := m.stamp(envelope.New(KindTableState.String())).Set("game", m.Game)
	if m.GameID != "" {
		e.Set("game_id", m.GameID)
	}
	if m.Players != nil {
		e.Add(m.Players.Flatten())
	}
	if m.Model != nil {
		e.Add(envelope.New("model").Add(m.Model.Clone()))
	}
	return e
}

func decodeTableState(e *envelope.Envelope) (Message, error) {
	h, err := readTableHeader(e)
	if err != nil {
		return nil, err
	}
	m := &TableState{TableHeader: h, GameID: e.Attr("game_id")}
	if m.Game, err = e.String("game"); err != nil {
		return nil, err
	}
	pe, err := e.RequireChild("players")
	if err != nil {
		return nil, err
	}
	if m.Players, err = seat.ParsePlayerList(pe); err != nil {
		return nil, err
	}
	if me := e.Child("model"); me != nil {
		if len(me.Children) != 1 {
			return nil, fmt.Errorf("<model>: expected one child: %w", envelope.ErrMalformed)
		}
		m.Model = me.Children[0]
	}
	return m, nil
}

// ModelState replaces a mirror's whole game model.
type ModelState struct {
	TableHeader
	Model *envelope.Envelope
}

func (*ModelState) Kind() Kind { return KindModelState }

func (m *ModelState) Flatten() *envelope.Envelope {
	return m.stamp(envelope.New(KindModelState.String())).Add(m.Model.Clone())
}

func decodeModelState(e *envelope.Envelope) (Message, error) {
	h, err := readTableHeader(e)
	if err != nil {
		return nil, err
	}
	if len(e.Children) != 1 {
		return nil, fmt.Errorf("<%s>: expected one model child: %w", e.Name, envelope.ErrMalformed)
	}
	return &ModelState{TableHeader: h, Model: e.Children[0]}, nil
}

type StartGame struct {
	TableHeader
	GameID string
}

func (*StartGame) Kind() Kind { return KindStartGame }

func (m *StartGame) Flatten() *envelope.Envelope {
	return m.stamp(envelope.New(KindStartGame.String())).Set("game_id", m.GameID)
}

func decodeStartGame(e *envelope.Envelope) (Message, error) {
	h, err := readTableHeader(e)
	if err != nil {
		return nil, err
	}
	id, err := e.String("game_id")
	if err != nil {
		return nil, err
	}
	return &StartGame{TableHeader: h, GameID: id}, nil
}

// NextPlayer moves the turn cursor. Seat may be seat.NoPlayer.
type NextPlayer struct {
	TableHeader
	Seat int
}

func (*NextPlayer) Kind() Kind { return KindNextPlayer }

func (m *NextPlayer) Flatten() *envelope.Envelope {
	return m.stamp(envelope.New(KindNextPlayer.String())).SetInt("seat", m.Seat)
}

func decodeNextPlayer(e *envelope.Envelope) (Message, error) {
	h, err := readTableHeader(e)
	if err != nil {
		return nil, err
	}
	n, err := e.Int("seat")
	if err != nil {
		return nil, err
	}
	return &NextPlayer{TableHeader: h, Seat: n}, nil
}

type OfferDraw struct {
	TableHeader
}

func (*OfferDraw) Kind() Kind { return KindOfferDraw }

func (m *OfferDraw) Flatten() *envelope.Envelope {
	return m.stamp(envelope.New(KindOfferDraw.String()))
}

type RespondDraw struct {
	TableHeader
	Accept bool
}

func (*RespondDraw) Kind() Kind { return KindRespondDraw }

func (m *RespondDraw) Flatten() *envelope.Envelope {
	return m.stamp(envelope.New(KindRespondDraw.String())).SetBool("accept", m.Accept)
}

func decodeRespondDraw(e *envelope.Envelope) (Message, error) {
	h, err := readTableHeader(e)
	if err != nil {
		return nil, err
	}
	accept, err := e.Bool("accept")
	if err != nil {
		return nil, err
	}
	return &RespondDraw{TableHeader: h, Accept: accept}, nil
}

type Resign struct {
	TableHeader
}

func (*Resign) Kind() Kind { return KindResign }

func (m *Resign) Flatten() *envelope.Envelope {
	return m.stamp(envelope.New(KindResign.String()))
}

// ResultCode is one seat's outcome in a finished game.
type ResultCode int

const (
	ResultNone ResultCode = iota
	ResultWin
	ResultLose
	ResultDraw
	ResultAborted
)

var resultNames = map[ResultCode]string{
	ResultNone:    "none",
	ResultWin:     "win",
	ResultLose:    "lose",
	ResultDraw:    "draw",
	ResultAborted: "aborted",
}

func (r ResultCode) String() string {
	if s, ok := resultNames[r]; ok {
		return s
	}
	return fmt.Sprintf("result(%d)", int(r))
}

func ParseResultCode(raw string) (ResultCode, error) {
	for code, name := range resultNames {
		if name == raw {
			return code, nil
		}
	}
	return ResultNone, fmt.Errorf("unknown result code %q", raw)
}

// GameOver is the summary of a finished game instance. Players and Results
// are parallel, ordered by seat.
type GameOver struct {
	TableHeader
	GameID  string
	Game    string
	Players []string
	Results []ResultCode
	Score   string
}

func (*GameOver) Kind() Kind { return KindGameOver }

func (m *GameOver) Flatten() *envelope.Envelope {
	e := m.stamp(envelope.New(KindGameOver.String())).
		Set("game_id", m.GameID).
		Set("game", m.Game).
		Set("score", m.Score)
	for i, p := range m.Players {
		code := ResultNone
		if i < len(m.Results) {
			code = m.Results[i]
		}
		e.Add(envelope.New("result").Set("player", p).Set("code", code.String()))
	}
	return e
}

func decodeGameOver(e *envelope.Envelope) (Message, error) {
	h, err := readTableHeader(e)
	if err != nil {
		return nil, err
	}
	m := &GameOver{TableHeader: h, Game: e.Attr("game"), Score: e.Attr("score")}
	if m.GameID, err = e.String("game_id"); err != nil {
		return nil, err
	}
	for _, c := range e.ChildrenNamed("result") {
		player, err := c.String("player")
		if err != nil {
			return nil, err
		}
		raw, err := c.String("code")
		if err != nil {
			return nil, err
		}
		code, err := ParseResultCode(raw)
		if err != nil {
			return nil, err
		}
		m.Players = append(m.Players, player)
		m.Results = append(m.Results, code)
	}
	return m, nil
}

// Summary renders "alice=win bob=lose".
func (m *GameOver) Summary() string {
	parts := make([]string, 0, len(m.Players))
	for i, p := range m.Players {
		parts = append(parts, p+"="+m.Results[i].String())
	}
	return strings.Join(parts, " ")
}

type TableChat struct {
	TableHeader
	Text string
}

func (*TableChat) Kind() Kind { return KindTableChat }

func (m *TableChat) Flatten() *envelope.Envelope {
	return m.stamp(envelope.New(KindTableChat.String())).SetContent(m.Text)
}

func decodeTableChat(e *envelope.Envelope) (Message, error) {
	h, err := readTableHeader(e)
	if err != nil {
		return nil, err
	}
	return &TableChat{TableHeader: h, Text: e.Content}, nil
}

// Move is an untyped game action for games that do not register their own
// message kinds. Payload holds the original envelope.
type Move struct {
	TableHeader
	Action  string
	Payload *envelope.Envelope
}

func NewMove(h TableHeader, action string) *Move {
	return &Move{TableHeader: h, Action: action, Payload: envelope.New(KindMove.String())}
}

func (*Move) Kind() Kind { return KindMove }

func (m *Move) Flatten() *envelope.Envelope {
	e := m.Payload.Clone()
	if e == nil {
		e = envelope.New(KindMove.String())
	}
	e.Name = KindMove.String()
	return m.stamp(e).Set("action", m.Action)
}

func decodeMove(e *envelope.Envelope) (Message, error) {
	h, err := readTableHeader(e)
	if err != nil {
		return nil, err
	}
	action, err := e.String("action")
	if err != nil {
		return nil, err
	}
	return &Move{TableHeader: h, Action: action, Payload: e.Clone()}, nil
}

// headerOnly builds decoders for table messages that carry nothing but the header.
func headerOnly[T any, PT interface {
	*T
	setTableHeader(TableHeader)
	Message
}]() Decoder {
	return func(e *envelope.Envelope) (Message, error) {
		h, err := readTableHeader(e)
		if err != nil {
			return nil, err
		}
		var m PT = new(T)
		m.setTableHeader(h)
		return m, nil
	}
}

func (h *TableHeader) setTableHeader(v TableHeader) { *h = v }
