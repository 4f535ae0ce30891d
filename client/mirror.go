package client

import (
	"log"

	"tablekit/game"
	"tablekit/protocol"
	"tablekit/seat"
)

// HandleGame applies a lobby message.
func (s *Session) HandleGame(msg protocol.Message) {
	change := Change{Table: -1, Msg: msg}
	s.mu.Lock()
	switch m := msg.(type) {
	case *protocol.LoginOK:
		s.loggedIn = true
		change.Kind = ChangeLogin
	case *protocol.LoginError:
		s.loggedIn = false
		change.Kind = ChangeError
	case *protocol.UserList:
		s.users = make(map[string]bool, len(m.Users))
		for _, u := range m.Users {
			s.users[u] = true
		}
		change.Kind = ChangeUsers
	case *protocol.UserJoined:
		s.users[m.User] = true
		change.Kind = ChangeUsers
	case *protocol.UserLeft:
		delete(s.users, m.User)
		change.Kind = ChangeUsers
	case *protocol.TableList:
		s.tables = make(map[int]protocol.TableInfo, len(m.Tables))
		for _, t := range m.Tables {
			s.tables[t.Num] = t
		}
		change.Kind = ChangeTables
	case *protocol.TableUpdate:
		s.tables[m.Info.Num] = m.Info
		change.Kind = ChangeTables
	case *protocol.TableClosed:
		delete(s.tables, m.Num)
		delete(s.mirrors, m.Num)
		change.Kind = ChangeTables
	case *protocol.Chat:
		change.Kind = ChangeChat
	case *protocol.Error:
		log.Printf("[Client] Server error %s: %s", m.Code, m.Text)
		change.Kind = ChangeError
	default:
		s.mu.Unlock()
		log.Printf("[Client] Ignoring game message %s", msg.Kind())
		return
	}
	s.mu.Unlock()
	s.notify(change)
}

// HandleTable applies a table message to its mirror.
func (s *Session) HandleTable(n int, msg protocol.TableMessage) {
	s.mu.Lock()
	change, ok := s.applyTable(n, msg)
	s.mu.Unlock()
	if ok {
		s.notify(change)
	}
}

func (s *Session) applyTable(n int, msg protocol.TableMessage) (Change, bool) {
	change := Change{Table: n, Msg: msg}

	if m, ok := msg.(*protocol.TableState); ok {
		change.Kind = ChangeTable
		return change, s.resync(n, m)
	}

	t, ok := s.mirrors[n]
	if !ok {
		log.Printf("[Client] %s for unjoined table %d dropped", msg.Kind(), n)
		return change, false
	}

	switch m := msg.(type) {
	case *protocol.PlayerState:
		if m.Left {
			if m.Player == s.opts.Username {
				delete(s.mirrors, n)
				change.Kind = ChangeTable
				return change, true
			}
			t.Players.Remove(m.Player)
		} else if err := t.Players.Put(seat.Player{Username: m.Player, Seat: m.Seat, State: m.State, Vacant: m.Vacant}); err != nil {
			log.Printf("[Client] Table %d player_state rejected: %v", n, err)
			return change, false
		}
		change.Kind = ChangePlayers

	case *protocol.NextPlayer:
		t.Players.SetTurn(m.Seat)
		change.Kind = ChangeTurn

	case *protocol.StartGame:
		t.GameID = m.GameID
		t.LastResult = nil
		t.Players.Begin()
		if model, err := s.newModel(t.Game); err == nil {
			t.Model = model
		}
		change.Kind = ChangeGameStarted

	case *protocol.ModelState:
		if t.Model == nil {
			model, err := s.newModel(t.Game)
			if err != nil {
				log.Printf("[Client] Table %d: %v", n, err)
				return change, false
			}
			t.Model = model
		}
		if err := t.Model.SetState(m.Model); err != nil {
			log.Printf("[Client] Table %d model_state rejected: %v", n, err)
			return change, false
		}
		change.Kind = ChangeModel

	case *protocol.GameOver:
		t.LastResult = m
		t.Players.EndGame()
		t.Model = nil
		change.Kind = ChangeGameOver

	case *protocol.TableChat:
		change.Kind = ChangeChat

	default:
		if msg.Kind() < protocol.KindGameDefined {
			log.Printf("[Client] Table %d ignoring %s", n, msg.Kind())
			return change, false
		}
		applier, ok := t.Model.(game.DeltaApplier)
		if !ok {
			log.Printf("[Client] Table %d: model cannot apply %s", n, msg.Kind())
			return change, false
		}
		if err := applier.Apply(msg); err != nil {
			log.Printf("[Client] Table %d delta %s rejected, resync advised: %v", n, msg.Kind(), err)
			return change, false
		}
		change.Kind = ChangeModel
	}
	return change, true
}

// resync replaces the mirror of table n with a server snapshot.
func (s *Session) resync(n int, m *protocol.TableState) bool {
	t := &Table{Num: n, Game: m.Game, GameID: m.GameID, Players: m.Players}
	if t.Players == nil {
		log.Printf("[Client] Table %d snapshot without players dropped", n)
		return false
	}
	if m.Model != nil {
		model, err := s.newModel(m.Game)
		if err != nil {
			log.Printf("[Client] Table %d: %v", n, err)
			return false
		}
		if err := model.SetState(m.Model); err != nil {
			log.Printf("[Client] Table %d snapshot rejected: %v", n, err)
			return false
		}
		t.Model = model
	}
	if old, ok := s.mirrors[n]; ok {
		t.LastResult = old.LastResult
	}
	s.mirrors[n] = t
	return true
}

func (s *Session) newModel(gameName string) (game.Model, error) {
	def, err := s.opts.Catalog.Lookup(gameName)
	if err != nil {
		return nil, err
	}
	return def.NewModel(), nil
}
