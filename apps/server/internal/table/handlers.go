package table

import (
	"fmt"
	"log"

	"tablekit/game"
	"tablekit/protocol"
	"tablekit/seat"
)

// Rejected table messages are never answered; the returned error only reaches
// the submitter's log line.

func (t *Table) handleJoin(username string) error {
	prev, rejoin := t.players.Player(username)
	p := t.players.Add(username)

	v := viewerFor(p)
	t.Send(username, t.tableStateLocked(v))

	if rejoin && !prev.Vacant {
		log.Printf("[Table %d] %s resynced", t.num, username)
		return nil
	}
	t.broadcastExcept(username, t.playerStateMsg(p))
	if rejoin {
		log.Printf("[Table %d] %s reclaimed seat %d", t.num, username, p.Seat)
	} else {
		log.Printf("[Table %d] %s joined", t.num, username)
	}
	return nil
}

// handleLeave detaches username. Leaving a running game resigns it first.
func (t *Table) handleLeave(username string) error {
	p, ok := t.players.Player(username)
	if !ok {
		return ErrNotMember
	}
	if p.State == seat.GameStarted && t.ctrl != nil {
		t.resign(p)
	}
	t.Broadcast(&protocol.PlayerState{TableHeader: t.header(""), Player: username, Seat: seat.NoPlayer, State: seat.Viewing, Left: true})
	t.players.Remove(username)
	log.Printf("[Table %d] %s left", t.num, username)
	return nil
}

// handleConnLost drops a participant whose connection ended. A seat in a
// running game is kept, marked vacant, and reported to the vacancy hooks; the
// turn does not move.
func (t *Table) handleConnLost(username string) error {
	p, ok := t.players.Player(username)
	if !ok {
		return nil
	}
	if p.State == seat.GameStarted && t.ctrl != nil {
		t.players.MarkVacant(username)
		p.Vacant = true
		t.Broadcast(t.playerStateMsg(p))
		t.vacated = append(t.vacated, p)
		log.Printf("[Table %d] %s disconnected, seat %d vacant", t.num, username, p.Seat)
		return nil
	}
	t.players.Remove(username)
	t.Broadcast(&protocol.PlayerState{TableHeader: t.header(""), Player: username, Seat: seat.NoPlayer, State: seat.Viewing, Left: true})
	log.Printf("[Table %d] %s disconnected", t.num, username)
	return nil
}

func (t *Table) handleAbort() error {
	if t.ctrl == nil {
		return ErrNoGame
	}
	t.GameOver(game.Uniform(game.PlayingSeats(t.players), protocol.ResultAborted, "aborted"))
	return nil
}

func (t *Table) handleMessage(username string, msg protocol.TableMessage) error {
	if msg == nil {
		return fmt.Errorf("nil message")
	}
	switch msg.(type) {
	case *protocol.JoinTable:
		return t.handleJoin(username)
	case *protocol.LeaveTable:
		return t.handleLeave(username)
	}

	p, ok := t.players.Player(username)
	if !ok {
		return ErrNotMember
	}
	c := t.def.Constraints()

	switch m := msg.(type) {
	case *protocol.Sit:
		if !seat.Allowed(t.players, c, p.State, seat.EventSit) {
			return fmt.Errorf("sit: %w", ErrGuard)
		}
		if _, err := t.players.Sit(username, m.Seat); err != nil {
			return err
		}
		t.broadcastPlayer(username)

	case *protocol.Stand:
		if !seat.Allowed(t.players, c, p.State, seat.EventStand) {
			return fmt.Errorf("stand: %w", ErrGuard)
		}
		if err := t.players.Stand(username); err != nil {
			return err
		}
		t.broadcastPlayer(username)

	case *protocol.Start:
		if !seat.Allowed(t.players, c, p.State, seat.EventStart) {
			return fmt.Errorf("start: %w", ErrGuard)
		}
		if _, err := t.players.Apply(username, seat.EventStart); err != nil {
			return err
		}
		t.broadcastPlayer(username)
		return t.maybeBegin()

	case *protocol.OfferDraw:
		if err := t.requirePlaying(p); err != nil {
			return err
		}
		if t.drawOffer != seat.NoPlayer {
			return fmt.Errorf("draw already offered by seat %d: %w", t.drawOffer, ErrGuard)
		}
		t.drawOffer = p.Seat
		t.Broadcast(&protocol.OfferDraw{TableHeader: t.header(username)})

	case *protocol.RespondDraw:
		if err := t.requirePlaying(p); err != nil {
			return err
		}
		if t.drawOffer == seat.NoPlayer || t.drawOffer == p.Seat {
			return fmt.Errorf("no draw offer to answer: %w", ErrGuard)
		}
		t.Broadcast(&protocol.RespondDraw{TableHeader: t.header(username), Accept: m.Accept})
		if !m.Accept {
			t.drawOffer = seat.NoPlayer
			return nil
		}
		t.GameOver(game.Uniform(game.PlayingSeats(t.players), protocol.ResultDraw, "draw agreed"))

	case *protocol.Resign:
		if err := t.requirePlaying(p); err != nil {
			return err
		}
		t.resign(p)

	case *protocol.TableChat:
		t.Broadcast(&protocol.TableChat{TableHeader: t.header(username), Text: m.Text})

	default:
		if msg.Kind() != protocol.KindMove && msg.Kind() < protocol.KindGameDefined {
			return fmt.Errorf("%s from a participant: %w", msg.Kind(), game.ErrUnexpectedMsg)
		}
		if err := t.requirePlaying(p); err != nil {
			return err
		}
		if t.def.TurnBased && p.Seat != t.players.Turn() {
			return game.ErrNotYourTurn
		}
		return t.ctrl.ParseTableMessage(t, p, msg)
	}
	return nil
}

func (t *Table) requirePlaying(p seat.Player) error {
	if t.ctrl == nil {
		return ErrNoGame
	}
	if !seat.CanOfferDrawResign(p.State) {
		return ErrNotSeated
	}
	return nil
}

func (t *Table) resign(p seat.Player) {
	seats := game.PlayingSeats(t.players)
	var others []int
	for _, s := range seats {
		if s != p.Seat {
			others = append(others, s)
		}
	}
	t.GameOver(game.Winners(seats, others, fmt.Sprintf("%s resigned", p.Username)))
}

// maybeBegin starts a new instance once every seated player is ready.
func (t *Table) maybeBegin() error {
	if t.ctrl != nil || !t.players.AllReady() || t.players.Count(seat.ReadyToStart) < t.def.MinPlayers {
		return nil
	}
	t.players.Begin()
	t.gameID = t.newGameID()
	t.over = false
	t.drawOffer = seat.NoPlayer
	t.ctrl = t.def.NewController()
	t.players.SetTurn(seat.NoPlayer)

	t.Broadcast(&protocol.StartGame{TableHeader: t.header(""), GameID: t.gameID})
	if err := t.ctrl.StartGame(t); err != nil {
		return fmt.Errorf("start %s: %w", t.def.Name, err)
	}
	log.Printf("[Table %d] Game %s started with %d players", t.num, t.gameID, len(game.PlayingSeats(t.players)))
	return nil
}

func (t *Table) broadcastPlayer(username string) {
	if p, ok := t.players.Player(username); ok {
		t.Broadcast(t.playerStateMsg(p))
	}
}

func (t *Table) broadcastExcept(username string, msg protocol.TableMessage) {
	env := msg.Flatten()
	for _, p := range t.players.Members() {
		if p.Username != username {
			t.pending = append(t.pending, delivery{to: p.Username, env: env})
		}
	}
}
