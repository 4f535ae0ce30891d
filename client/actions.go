package client

import (
	"tablekit/protocol"
)

// Actions only send requests. Nothing in the mirror changes until the
// server's answer arrives.

func (s *Session) Login() error {
	return s.send(&protocol.Login{Header: protocol.Header{Username: s.opts.Username}, Token: s.opts.Token})
}

func (s *Session) Logout() error {
	return s.send(&protocol.Logout{Header: protocol.Header{Username: s.opts.Username}})
}

func (s *Session) CreateTable(gameName string) error {
	return s.send(&protocol.NewTable{Header: protocol.Header{Username: s.opts.Username}, Game: gameName})
}

func (s *Session) Chat(to, text string) error {
	return s.send(&protocol.Chat{Header: protocol.Header{Username: s.opts.Username}, To: to, Text: text})
}

func (s *Session) JoinTable(n int) error {
	return s.send(&protocol.JoinTable{TableHeader: s.tableHeader(n)})
}

// Resync asks for a fresh table_state, replacing the mirror wholesale.
func (s *Session) Resync(n int) error {
	return s.JoinTable(n)
}

func (s *Session) LeaveTable(n int) error {
	return s.send(&protocol.LeaveTable{TableHeader: s.tableHeader(n)})
}

// Sit requests seatNum, or any free seat with seat.NoPlayer.
func (s *Session) Sit(n, seatNum int) error {
	return s.send(&protocol.Sit{TableHeader: s.tableHeader(n), Seat: seatNum})
}

func (s *Session) Stand(n int) error {
	return s.send(&protocol.Stand{TableHeader: s.tableHeader(n)})
}

func (s *Session) Start(n int) error {
	return s.send(&protocol.Start{TableHeader: s.tableHeader(n)})
}

func (s *Session) OfferDraw(n int) error {
	return s.send(&protocol.OfferDraw{TableHeader: s.tableHeader(n)})
}

func (s *Session) RespondDraw(n int, accept bool) error {
	return s.send(&protocol.RespondDraw{TableHeader: s.tableHeader(n), Accept: accept})
}

func (s *Session) Resign(n int) error {
	return s.send(&protocol.Resign{TableHeader: s.tableHeader(n)})
}

func (s *Session) TableChat(n int, text string) error {
	return s.send(&protocol.TableChat{TableHeader: s.tableHeader(n), Text: text})
}

// SendMove sends a game-defined message. The header is filled in for table n.
func (s *Session) SendMove(n int, msg protocol.TableMessage) error {
	env := msg.Flatten()
	protocol.StampTable(env, s.tableHeader(n))
	return s.conn.Send(env)
}
