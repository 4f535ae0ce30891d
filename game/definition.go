package game

import (
	"fmt"
	"sort"

	"github.com/google/go-cmp/cmp"

	"tablekit/protocol"
	"tablekit/seat"
)

// Definition describes a pluggable game.
type Definition struct {
	Name       string
	MinPlayers int
	MaxPlayers int
	// TurnBased games only accept moves from the seat holding the turn.
	TurnBased bool
	// Register adds the game's typed messages to a registry.
	Register      func(reg *protocol.Registry)
	NewController func() Controller
	// NewModel builds an empty client-side mirror.
	NewModel func() Model
}

func (d Definition) Constraints() seat.Constraints {
	return seat.Constraints{MinPlayers: d.MinPlayers, MaxPlayers: d.MaxPlayers}
}

func (d Definition) Validate() error {
	if d.Name == "" || d.NewController == nil || d.NewModel == nil {
		return fmt.Errorf("game definition %q is incomplete", d.Name)
	}
	return d.Constraints().Validate()
}

// Catalog is the set of games a server or client knows about.
type Catalog struct {
	defs map[string]Definition
}

func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.defs[d.Name]; dup {
			return nil, fmt.Errorf("game %q defined twice", d.Name)
		}
		c.defs[d.Name] = d
	}
	return c, nil
}

func (c *Catalog) Lookup(name string) (Definition, error) {
	d, ok := c.defs[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownGame, name)
	}
	return d, nil
}

func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.defs))
	for name := range c.defs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Registry returns the core registry extended with every game's messages.
func (c *Catalog) Registry() *protocol.Registry {
	reg := protocol.NewRegistry()
	for _, name := range c.Names() {
		if d := c.defs[name]; d.Register != nil {
			d.Register(reg)
		}
	}
	return reg
}

// RoundTrip restores fresh from m's authoritative snapshot and reports any
// difference between the two snapshots.
func RoundTrip(m, fresh Model) error {
	want := m.Flatten(Authority)
	if err := fresh.SetState(want); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	got := fresh.Flatten(Authority)
	if !got.Equal(want) {
		return fmt.Errorf("round trip mismatch (-want +got):\n%s", cmp.Diff(want, got))
	}
	return nil
}
