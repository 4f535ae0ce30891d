package protocol

import (
	"errors"
	"fmt"

	"tablekit/envelope"
)

var (
	ErrUnknownMessage = errors.New("unknown message")
	ErrScopeMismatch  = errors.New("message scope mismatch")
)

var kindNames = map[Kind]string{
	KindLogin:       "login",
	KindLoginOK:     "login_ok",
	KindLoginError:  "login_error",
	KindLogout:      "logout",
	KindUserList:    "user_list",
	KindUserJoined:  "user_joined",
	KindUserLeft:    "user_left",
	KindTableList:   "table_list",
	KindNewTable:    "new_table",
	KindTableUpdate: "table_update",
	KindTableClosed: "table_closed",
	KindChat:        "chat",
	KindError:       "error",

	KindJoinTable:   "join_table",
	KindLeaveTable:  "leave_table",
	KindSit:         "sit",
	KindStand:       "stand",
	KindStart:       "start",
	KindPlayerState: "player_state",
	KindTableState:  "table_state",
	KindModelState:  "model_state",
	KindStartGame:   "start_game",
	KindNextPlayer:  "next_player",
	KindOfferDraw:   "offer_draw",
	KindRespondDraw: "respond_draw",
	KindResign:      "resign",
	KindGameOver:    "game_over",
	KindTableChat:   "table_chat",
	KindMove:        "move",
}

// String is the element name the kind travels under.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// TableScoped reports whether the core kind must carry a table number.
func (k Kind) TableScoped() bool {
	return k >= KindJoinTable
}

// Decoder turns an envelope into a typed message.
type Decoder func(*envelope.Envelope) (Message, error)

type entry struct {
	kind   Kind
	decode Decoder
}

// Registry maps element names to decoders. A registry is built once, before
// any connection starts, and is read-only afterwards.
type Registry struct {
	byName map[string]entry
}

// NewRegistry returns a registry holding every core message kind.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]entry)}
	core := map[Kind]Decoder{
		KindLogin:       decodeLogin,
		KindLoginOK:     decodeLoginOK,
		KindLoginError:  decodeLoginError,
		KindLogout:      decodeLogout,
		KindUserList:    decodeUserList,
		KindUserJoined:  decodeUserJoined,
		KindUserLeft:    decodeUserLeft,
		KindTableList:   decodeTableList,
		KindNewTable:    decodeNewTable,
		KindTableUpdate: decodeTableUpdate,
		KindTableClosed: decodeTableClosed,
		KindChat:        decodeChat,
		KindError:       decodeError,

		KindJoinTable:   headerOnly[JoinTable](),
		KindLeaveTable:  headerOnly[LeaveTable](),
		KindSit:         decodeSit,
		KindStand:       headerOnly[Stand](),
		KindStart:       headerOnly[Start](),
		KindPlayerState: decodePlayerState,
		KindTableState:  decodeTableState,
		KindModelState:  decodeModelState,
		KindStartGame:   decodeStartGame,
		KindNextPlayer:  decodeNextPlayer,
		KindOfferDraw:   headerOnly[OfferDraw](),
		KindRespondDraw: decodeRespondDraw,
		KindResign:      headerOnly[Resign](),
		KindGameOver:    decodeGameOver,
		KindTableChat:   decodeTableChat,
		KindMove:        decodeMove,
	}
	for k, dec := range core {
		r.Register(k.String(), k, dec)
	}
	return r
}

// Register adds a game-defined message. It panics on a duplicate name, since
// that can only be a programming error.
func (r *Registry) Register(name string, kind Kind, dec Decoder) {
	if name == "" || dec == nil {
		panic("protocol: Register with empty name or nil decoder")
	}
	if _, dup := r.byName[name]; dup {
		panic(fmt.Sprintf("protocol: message %q registered twice", name))
	}
	r.byName[name] = entry{kind: kind, decode: dec}
}

func (r *Registry) Clone() *Registry {
	out := &Registry{byName: make(map[string]entry, len(r.byName))}
	for name, e := range r.byName {
		out.byName[name] = e
	}
	return out
}

// Decode turns env into its typed message.
func (r *Registry) Decode(env *envelope.Envelope) (Message, error) {
	if env == nil {
		return nil, fmt.Errorf("nil envelope: %w", envelope.ErrMalformed)
	}
	e, ok := r.byName[env.Name]
	if !ok {
		return nil, fmt.Errorf("%w: <%s>", ErrUnknownMessage, env.Name)
	}
	msg, err := e.decode(env)
	if err != nil {
		return nil, fmt.Errorf("decode <%s>: %w", env.Name, err)
	}
	return msg, nil
}
