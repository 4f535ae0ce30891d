package envelope

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

var (
	ErrMissingAttr = errors.New("missing attribute")
	ErrBadAttr     = errors.New("malformed attribute")
)

// MissingAttrError reports a required attribute absent from a decoded envelope.
type MissingAttrError struct {
	Element string
	Attr    string
}

func (e *MissingAttrError) Error() string {
	return fmt.Sprintf("<%s>: missing attribute %q", e.Element, e.Attr)
}

func (e *MissingAttrError) Unwrap() error { return ErrMissingAttr }

// AttrError reports an attribute whose value does not parse as the requested type.
type AttrError struct {
	Element string
	Attr    string
	Value   string
	Err     error
}

func (e *AttrError) Error() string {
	return fmt.Sprintf("<%s>: attribute %q=%q: %v", e.Element, e.Attr, e.Value, e.Err)
}

func (e *AttrError) Unwrap() error { return ErrBadAttr }

// Envelope is the self-describing message tree exchanged between participants.
// Attribute values are always strings; ints and bools are encoded in decimal
// and as "true"/"false".
type Envelope struct {
	Name       string
	Attrs      map[string]string
	Children   []*Envelope
	Content    string
	HasContent bool
}

func New(name string) *Envelope {
	return &Envelope{Name: name}
}

func (e *Envelope) Set(key, value string) *Envelope {
	if e.Attrs == nil {
		e.Attrs = make(map[string]string)
	}
	e.Attrs[key] = value
	return e
}

func (e *Envelope) SetInt(key string, v int) *Envelope {
	return e.Set(key, strconv.Itoa(v))
}

func (e *Envelope) SetBool(key string, v bool) *Envelope {
	return e.Set(key, strconv.FormatBool(v))
}

func (e *Envelope) SetContent(content string) *Envelope {
	e.Content = content
	e.HasContent = true
	return e
}

// Add appends children in order and returns the receiver.
func (e *Envelope) Add(children ...*Envelope) *Envelope {
	for _, c := range children {
		if c != nil {
			e.Children = append(e.Children, c)
		}
	}
	return e
}

func (e *Envelope) Has(key string) bool {
	_, ok := e.Attrs[key]
	return ok
}

// Attr returns the attribute value, or "" when absent.
func (e *Envelope) Attr(key string) string {
	return e.Attrs[key]
}

// String returns a required string attribute.
func (e *Envelope) String(key string) (string, error) {
	v, ok := e.Attrs[key]
	if !ok {
		return "", &MissingAttrError{Element: e.Name, Attr: key}
	}
	return v, nil
}

// Int returns a required integer attribute.
func (e *Envelope) Int(key string) (int, error) {
	raw, err := e.String(key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &AttrError{Element: e.Name, Attr: key, Value: raw, Err: err}
	}
	return v, nil
}

// IntOr returns an optional integer attribute. A present but malformed value
// is still an error.
func (e *Envelope) IntOr(key string, def int) (int, error) {
	if !e.Has(key) {
		return def, nil
	}
	return e.Int(key)
}

// Bool returns a required boolean attribute.
func (e *Envelope) Bool(key string) (bool, error) {
	raw, err := e.String(key)
	if err != nil {
		return false, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &AttrError{Element: e.Name, Attr: key, Value: raw, Err: err}
	}
	return v, nil
}

func (e *Envelope) BoolOr(key string, def bool) (bool, error) {
	if !e.Has(key) {
		return def, nil
	}
	return e.Bool(key)
}

// Child returns the first direct child with the given name.
func (e *Envelope) Child(name string) *Envelope {
	for _, c := range e.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// RequireChild is Child with a decode error when the child is absent.
func (e *Envelope) RequireChild(name string) (*Envelope, error) {
	if c := e.Child(name); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("<%s>: missing child <%s>: %w", e.Name, name, ErrMissingAttr)
}

func (e *Envelope) ChildrenNamed(name string) []*Envelope {
	var out []*Envelope
	for _, c := range e.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Keys returns attribute names in sorted order.
func (e *Envelope) Keys() []string {
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	out := &Envelope{
		Name:       e.Name,
		Content:    e.Content,
		HasContent: e.HasContent,
	}
	if len(e.Attrs) > 0 {
		out.Attrs = make(map[string]string, len(e.Attrs))
		for k, v := range e.Attrs {
			out.Attrs[k] = v
		}
	}
	for _, c := range e.Children {
		out.Children = append(out.Children, c.Clone())
	}
	return out
}

// Equal reports structural equality. Attribute order is irrelevant, child
// order is significant.
func (e *Envelope) Equal(o *Envelope) bool {
	if e == nil || o == nil {
		return e == o
	}
	if e.Name != o.Name || e.HasContent != o.HasContent || e.Content != o.Content {
		return false
	}
	if len(e.Attrs) != len(o.Attrs) || len(e.Children) != len(o.Children) {
		return false
	}
	for k, v := range e.Attrs {
		if ov, ok := o.Attrs[k]; !ok || ov != v {
			return false
		}
	}
	for i := range e.Children {
		if !e.Children[i].Equal(o.Children[i]) {
			return false
		}
	}
	return true
}
