// Package protocol defines the typed messages carried inside envelopes and the
// single routing rule that multiplexes lobby and table traffic over one
// connection.
package protocol

import (
	"fmt"

	"tablekit/envelope"
)

// Kind identifies a message type once it has been decoded.
type Kind uint8

const (
	KindUnknown Kind = iota

	// game scope
	KindLogin
	KindLoginOK
	KindLoginError
	KindLogout
	KindUserList
	KindUserJoined
	KindUserLeft
	KindTableList
	KindNewTable
	KindTableUpdate
	KindTableClosed
	KindChat
	KindError

	// table scope
	KindJoinTable
	KindLeaveTable
	KindSit
	KindStand
	KindStart
	KindPlayerState
	KindTableState
	KindModelState
	KindStartGame
	KindNextPlayer
	KindOfferDraw
	KindRespondDraw
	KindResign
	KindGameOver
	KindTableChat
	KindMove

	// KindGameDefined is the first value games may use for their own messages.
	KindGameDefined Kind = 128
)

const (
	AttrUsername = "username"
	AttrTable    = "table"
)

// Message is a decoded envelope.
type Message interface {
	Kind() Kind
	Sender() string
	Flatten() *envelope.Envelope
}

// TableMessage is a Message bound to one table.
type TableMessage interface {
	Message
	Table() int
}

// Header carries the fields every game-scoped message owns.
type Header struct {
	Username string
}

func (h Header) Sender() string { return h.Username }

func (h *Header) SetSender(username string) { h.Username = username }

func (h Header) stamp(e *envelope.Envelope) *envelope.Envelope {
	if h.Username != "" {
		e.Set(AttrUsername, h.Username)
	}
	return e
}

func readHeader(e *envelope.Envelope) Header {
	return Header{Username: e.Attr(AttrUsername)}
}

// TableHeader adds the table number to Header.
type TableHeader struct {
	Header
	TableNum int
}

func (h TableHeader) Table() int { return h.TableNum }

func (h TableHeader) stamp(e *envelope.Envelope) *envelope.Envelope {
	h.Header.stamp(e)
	return e.SetInt(AttrTable, h.TableNum)
}

func readTableHeader(e *envelope.Envelope) (TableHeader, error) {
	n, err := e.Int(AttrTable)
	if err != nil {
		return TableHeader{}, err
	}
	if n < 0 {
		return TableHeader{}, &envelope.AttrError{Element: e.Name, Attr: AttrTable, Value: e.Attr(AttrTable), Err: fmt.Errorf("negative table number")}
	}
	return TableHeader{Header: readHeader(e), TableNum: n}, nil
}

// NewTableHeader is a convenience for building table-scoped messages.
func NewTableHeader(username string, tableNum int) TableHeader {
	return TableHeader{Header: Header{Username: username}, TableNum: tableNum}
}

// StampTable writes the table-scoped header onto an envelope built by a game
// for its own message types.
func StampTable(e *envelope.Envelope, h TableHeader) *envelope.Envelope {
	return h.stamp(e)
}

// ReadTableHeader exposes header decoding to game-defined decoders.
func ReadTableHeader(e *envelope.Envelope) (TableHeader, error) {
	return readTableHeader(e)
}

// Resender is implemented by messages whose sender the server rewrites from
// the authenticated session before acting on them.
type Resender interface {
	SetSender(username string)
}
