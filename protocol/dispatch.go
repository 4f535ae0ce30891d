package protocol

import (
	"fmt"

	"tablekit/envelope"
)

// Handler receives decoded messages. The same interface serves the server side
// of a connection and the client session.
type Handler interface {
	HandleGame(msg Message)
	HandleTable(tableNum int, msg TableMessage)
}

// Dispatch decodes env and routes it. An envelope carrying the table attribute
// goes to HandleTable, everything else to HandleGame. Nothing is delivered
// when decoding fails.
func Dispatch(reg *Registry, env *envelope.Envelope, h Handler) error {
	msg, err := reg.Decode(env)
	if err != nil {
		return err
	}
	return Route(env.Has(AttrTable), msg, h)
}

// Route delivers an already decoded message.
func Route(tableScoped bool, msg Message, h Handler) error {
	if tableScoped {
		tm, ok := msg.(TableMessage)
		if !ok {
			return fmt.Errorf("%w: <%s> has a table attribute", ErrScopeMismatch, msg.Kind())
		}
		h.HandleTable(tm.Table(), tm)
		return nil
	}
	if _, ok := msg.(TableMessage); ok {
		return fmt.Errorf("%w: <%s> lacks a table attribute", ErrScopeMismatch, msg.Kind())
	}
	h.HandleGame(msg)
	return nil
}
