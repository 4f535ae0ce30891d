package gateway

import (
	"errors"
	"log"
	"sync"

	"tablekit/apps/server/internal/auth"
	"tablekit/envelope"
	"tablekit/game"
	"tablekit/protocol"
	"tablekit/transport"
)

// Session is one participant connection. It implements protocol.Handler:
// game-scoped messages are handled here, table-scoped ones are forwarded to
// the table actor.
type Session struct {
	gw     *Gateway
	conn   *transport.Conn
	outbox *transport.Outbox
	// token came with the upgrade request
	token string

	mu       sync.RWMutex
	username string
}

func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

func (s *Session) receive(_ *transport.Conn, env *envelope.Envelope) {
	if err := protocol.Dispatch(s.gw.registry, env, s); err != nil {
		log.Printf("[Gateway] %s dropped <%s>: %v", s.conn.ID, env.Name, err)
	}
}

func (s *Session) send(msg protocol.Message) {
	s.outbox.EnqueueEnvelope(msg.Flatten())
}

func (s *Session) sendError(code, text string) {
	s.send(&protocol.Error{Code: code, Text: text})
}

func (s *Session) HandleGame(msg protocol.Message) {
	if login, ok := msg.(*protocol.Login); ok {
		s.handleLogin(login)
		return
	}
	username := s.Username()
	if username == "" {
		s.sendError(CodeNotLoggedIn, "log in first")
		return
	}
	if r, ok := msg.(protocol.Resender); ok {
		r.SetSender(username)
	}

	switch m := msg.(type) {
	case *protocol.Logout:
		log.Printf("[Gateway] %s logged out", username)
		s.conn.Stop()
	case *protocol.NewTable:
		t, err := s.gw.lobby.Create(m.Game)
		if err != nil {
			if errors.Is(err, game.ErrUnknownGame) {
				s.sendError(CodeUnknownGame, err.Error())
				return
			}
			log.Printf("[Gateway] %s create table failed: %v", username, err)
			s.sendError(CodeInternal, "create table failed")
			return
		}
		log.Printf("[Gateway] %s opened table %d", username, t.Num())
	case *protocol.Chat:
		if m.To == "" {
			s.gw.broadcast(m, "")
			return
		}
		to := auth.NormalizeUsername(m.To)
		target := s.gw.session(to)
		if target == nil {
			s.sendError(CodeUnknownUser, "no such user: "+m.To)
			return
		}
		m.To = to
		target.send(m)
		if to != username {
			s.send(m)
		}
	default:
		log.Printf("[Gateway] %s sent unexpected <%s>", username, msg.Kind())
	}
}

// handleLogin binds the connection to a username. A token, from the message
// or the upgrade request, decides the name; without one the requested name is
// accepted as a guest unless authentication is required.
func (s *Session) handleLogin(m *protocol.Login) {
	if s.Username() != "" {
		s.sendError(CodeAlreadyLoggedIn, "already logged in as "+s.Username())
		return
	}
	token := m.Token
	if token == "" {
		token = s.token
	}

	var username string
	switch {
	case token != "" && s.gw.opts.Auth != nil:
		u, ok := s.gw.opts.Auth.ResolveSession(token)
		if !ok {
			s.send(&protocol.LoginError{Header: m.Header, Reason: "invalid session token"})
			return
		}
		username = u
	case s.gw.opts.AuthRequired:
		s.send(&protocol.LoginError{Header: m.Header, Reason: "authentication required"})
		return
	default:
		if err := auth.ValidateUsername(m.Username); err != nil {
			s.send(&protocol.LoginError{Header: m.Header, Reason: err.Error()})
			return
		}
		username = auth.NormalizeUsername(m.Username)
	}

	if !s.gw.register(s, username) {
		s.send(&protocol.LoginError{Header: m.Header, Reason: "username already connected"})
		return
	}
	s.mu.Lock()
	s.username = username
	s.mu.Unlock()

	hdr := protocol.Header{Username: username}
	s.send(&protocol.LoginOK{Header: hdr})
	s.send(&protocol.UserList{Header: hdr, Users: s.gw.Users()})
	s.send(&protocol.TableList{Header: hdr, Tables: s.gw.lobby.List()})
	s.gw.broadcast(&protocol.UserJoined{User: username}, username)
	log.Printf("[Gateway] %s logged in on %s", username, s.conn.ID)
}

// HandleTable forwards msg to its table with the sender rewritten from the
// session. Rejections are only logged; the client learns nothing.
func (s *Session) HandleTable(num int, msg protocol.TableMessage) {
	username := s.Username()
	if username == "" {
		log.Printf("[Gateway] %s table %d <%s> before login", s.conn.ID, num, msg.Kind())
		return
	}
	if r, ok := msg.(protocol.Resender); ok {
		r.SetSender(username)
	}
	t, ok := s.gw.lobby.Get(num)
	if !ok {
		log.Printf("[Gateway] %s table %d <%s>: no such table", username, num, msg.Kind())
		return
	}
	if err := t.Submit(username, msg); err != nil {
		log.Printf("[Gateway] %s table %d <%s> rejected: %v", username, num, msg.Kind(), err)
	}
}

var _ protocol.Handler = (*Session)(nil)
