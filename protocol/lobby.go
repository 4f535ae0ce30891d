package protocol

import (
	"sort"

	"tablekit/envelope"
	"tablekit/seat"
)

type Login struct {
	Header
	Token string
}

func (*Login) Kind() Kind { return KindLogin }

func (m *Login) Flatten() *envelope.Envelope {
	e := m.stamp(envelope.New(KindLogin.String()))
	if m.Token != "" {
		e.Set("token", m.Token)
	}
	return e
}

func decodeLogin(e *envelope.Envelope) (Message, error) {
	username, err := e.String(AttrUsername)
	if err != nil {
		return nil, err
	}
	return &Login{Header: Header{Username: username}, Token: e.Attr("token")}, nil
}

type LoginOK struct {
	Header
}

func (*LoginOK) Kind() Kind { return KindLoginOK }

func (m *LoginOK) Flatten() *envelope.Envelope {
	return m.stamp(envelope.New(KindLoginOK.String()))
}

func decodeLoginOK(e *envelope.Envelope) (Message, error) {
	if _, err := e.String(AttrUsername); err != nil {
		return nil, err
	}
	return &LoginOK{Header: readHeader(e)}, nil
}

type LoginError struct {
	Header
	Reason string
}

func (*LoginError) Kind() Kind { return KindLoginError }

func (m *LoginError) Flatten() *envelope.Envelope {
	return m.stamp(envelope.New(KindLoginError.String())).Set("reason", m.Reason)
}

func decodeLoginError(e *envelope.Envelope) (Message, error) {
	return &LoginError{Header: readHeader(e), Reason: e.Attr("reason")}, nil
}

type Logout struct {
	Header
}

func (*Logout) Kind() Kind { return KindLogout }

func (m *Logout) Flatten() *envelope.Envelope {
	return m.stamp(envelope.New(KindLogout.String()))
}

func decodeLogout(e *envelope.Envelope) (Message, error) {
	return &Logout{Header: readHeader(e)}, nil
}

// UserList is the full set of connected usernames.
type UserList struct {
	Header
	Users []string
}

func (*UserList) Kind() Kind { return KindUserList }

func (m *UserList) Flatten() *envelope.Envelope {
	e := m.stamp(envelope.New(KindUserList.String()))
	users := append([]string(nil), m.Users...)
	sort.Strings(users)
	for _, u := range users {
		e.Add(envelope.New("user").Set("name", u))
	}
	return e
}

func decodeUserList(e *envelope.Envelope) (Message, error) {
	m := &UserList{Header: readHeader(e)}
	for _, c := range e.ChildrenNamed("user") {
		name, err := c.String("name")
		if err != nil {
			return nil, err
		}
		m.Users = append(m.Users, name)
	}
	return m, nil
}

type UserJoined struct {
	Header
	User string
}

func (*UserJoined) Kind() Kind { return KindUserJoined }

func (m *UserJoined) Flatten() *envelope.Envelope {
	return m.stamp(envelope.New(KindUserJoined.String())).Set("user", m.User)
}

func decodeUserJoined(e *envelope.Envelope) (Message, error) {
	user, err := e.String("user")
	if err != nil {
		return nil, err
	}
	return &UserJoined{Header: readHeader(e), User: user}, nil
}

type UserLeft struct {
	Header
	User string
}

func (*UserLeft) Kind() Kind { return KindUserLeft }

func (m *UserLeft) Flatten() *envelope.Envelope {
	return m.stamp(envelope.New(KindUserLeft.String())).Set("user", m.User)
}

func decodeUserLeft(e *envelope.Envelope) (Message, error) {
	user, err := e.String("user")
	if err != nil {
		return nil, err
	}
	return &UserLeft{Header: readHeader(e), User: user}, nil
}

// SeatSummary is the lobby's view of one occupied seat.
type SeatSummary struct {
	Seat     int
	Username string
	State    seat.State
	// Vacant marks a running game's seat whose player has disconnected.
	Vacant bool
}

// TableInfo describes a table in the lobby list. It uses "num" rather than the
// routing attribute so lobby messages stay game-scoped.
type TableInfo struct {
	Num        int
	Game       string
	MinPlayers int
	MaxPlayers int
	Started    bool
	Seats      []SeatSummary
	Observers  int
}

func (t TableInfo) flatten() *envelope.Envelope {
	e := envelope.New("table_info").
		SetInt("num", t.Num).
		Set("game", t.Game).
		SetInt("min", t.MinPlayers).
		SetInt("max", t.MaxPlayers).
		SetBool("started", t.Started).
		SetInt("observers", t.Observers)
	for _, s := range t.Seats {
		c := envelope.New("seat").
			SetInt("n", s.Seat).
			Set("user", s.Username).
			Set("state", s.State.String())
		if s.Vacant {
			c.SetBool("vacant", true)
		}
		e.Add(c)
	}
	return e
}

func parseTableInfo(e *envelope.Envelope) (TableInfo, error) {
	var t TableInfo
	var err error
	if t.Num, err = e.Int("num"); err != nil {
		return t, err
	}
	if t.Game, err = e.String("game"); err != nil {
		return t, err
	}
	if t.MinPlayers, err = e.IntOr("min", 0); err != nil {
		return t, err
	}
	if t.MaxPlayers, err = e.IntOr("max", 0); err != nil {
		return t, err
	}
	if t.Started, err = e.BoolOr("started", false); err != nil {
		return t, err
	}
	if t.Observers, err = e.IntOr("observers", 0); err != nil {
		return t, err
	}
	for _, c := range e.ChildrenNamed("seat") {
		var s SeatSummary
		if s.Seat, err = c.Int("n"); err != nil {
			return t, err
		}
		if s.Username, err = c.String("user"); err != nil {
			return t, err
		}
		raw, err := c.String("state")
		if err != nil {
			return t, err
		}
		if s.State, err = seat.ParseState(raw); err != nil {
			return t, err
		}
		if s.Vacant, err = c.BoolOr("vacant", false); err != nil {
			return t, err
		}
		t.Seats = append(t.Seats, s)
	}
	return t, nil
}

// TableList is the full lobby table list sent after login.
type TableList struct {
	Header
	Tables []TableInfo
}

func (*TableList) Kind() Kind { return KindTableList }

func (m *TableList) Flatten() *envelope.Envelope {
	e := m.stamp(envelope.New(KindTableList.String()))
	tables := append([]TableInfo(nil), m.Tables...)
	sort.Slice(tables, func(i, j int) bool { return tables[i].Num < tables[j].Num })
	for _, t := range tables {
		e.Add(t.flatten())
	}
	return e
}

func decodeTableList(e *envelope.Envelope) (Message, error) {
	m := &TableList{Header: readHeader(e)}
	for _, c := range e.ChildrenNamed("table_info") {
		info, err := parseTableInfo(c)
		if err != nil {
			return nil, err
		}
		m.Tables = append(m.Tables, info)
	}
	return m, nil
}

// NewTable asks the server to open a table for the named game.
type NewTable struct {
	Header
	Game string
}

func (*NewTable) Kind() Kind { return KindNewTable }

func (m *NewTable) Flatten() *envelope.Envelope {
	return m.stamp(envelope.New(KindNewTable.String())).Set("game", m.Game)
}

func decodeNewTable(e *envelope.Envelope) (Message, error) {
	game, err := e.String("game")
	if err != nil {
		return nil, err
	}
	return &NewTable{Header: readHeader(e), Game: game}, nil
}

// TableUpdate announces a new or changed table to the lobby.
type TableUpdate struct {
	Header
	Info TableInfo
}

func (*TableUpdate) Kind() Kind { return KindTableUpdate }

func (m *TableUpdate) Flatten() *envelope.Envelope {
	return m.stamp(envelope.New(KindTableUpdate.String())).Add(m.Info.flatten())
}

func decodeTableUpdate(e *envelope.Envelope) (Message, error) {
	c, err := e.RequireChild("table_info")
	if err != nil {
		return nil, err
	}
	info, err := parseTableInfo(c)
	if err != nil {
		return nil, err
	}
	return &TableUpdate{Header: readHeader(e), Info: info}, nil
}

type TableClosed struct {
	Header
	Num int
}

func (*TableClosed) Kind() Kind { return KindTableClosed }

func (m *TableClosed) Flatten() *envelope.Envelope {
	return m.stamp(envelope.New(KindTableClosed.String())).SetInt("num", m.Num)
}

func decodeTableClosed(e *envelope.Envelope) (Message, error) {
	num, err := e.Int("num")
	if err != nil {
		return nil, err
	}
	return &TableClosed{Header: readHeader(e), Num: num}, nil
}

// Chat is lobby-wide text, or private when To is set.
type Chat struct {
	Header
	To   string
	Text string
}

func (*Chat) Kind() Kind { return KindChat }

func (m *Chat) Flatten() *envelope.Envelope {
	e := m.stamp(envelope.New(KindChat.String())).SetContent(m.Text)
	if m.To != "" {
		e.Set("to", m.To)
	}
	return e
}

func decodeChat(e *envelope.Envelope) (Message, error) {
	return &Chat{Header: readHeader(e), To: e.Attr("to"), Text: e.Content}, nil
}

// Error reports a failed game-scoped request. Table-scoped rejections are
// never answered.
type Error struct {
	Header
	Code string
	Text string
}

func (*Error) Kind() Kind { return KindError }

func (m *Error) Flatten() *envelope.Envelope {
	return m.stamp(envelope.New(KindError.String())).Set("code", m.Code).SetContent(m.Text)
}

func decodeError(e *envelope.Envelope) (Message, error) {
	code, err := e.String("code")
	if err != nil {
		return nil, err
	}
	return &Error{Header: readHeader(e), Code: code, Text: e.Content}, nil
}
