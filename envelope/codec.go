package envelope

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Wire layout, protobuf encoded:
//
//	message Envelope {
//	  string name = 1;
//	  repeated Attr attr = 2;      // message Attr { string key = 1; string value = 2; }
//	  repeated Envelope child = 3;
//	  optional string content = 4;
//	}
const (
	fieldName    protowire.Number = 1
	fieldAttr    protowire.Number = 2
	fieldChild   protowire.Number = 3
	fieldContent protowire.Number = 4

	fieldAttrKey   protowire.Number = 1
	fieldAttrValue protowire.Number = 2
)

// MaxDepth bounds child nesting on both encode and decode.
const MaxDepth = 64

var (
	ErrMalformed = errors.New("malformed envelope")
	ErrTooDeep   = errors.New("envelope nesting too deep")
)

// Marshal encodes e. Attributes are written in sorted key order so equal
// envelopes produce identical bytes.
func Marshal(e *Envelope) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("marshal nil envelope: %w", ErrMalformed)
	}
	return appendEnvelope(nil, e, 0)
}

func appendEnvelope(b []byte, e *Envelope, depth int) ([]byte, error) {
	if depth >= MaxDepth {
		return nil, ErrTooDeep
	}
	if e.Name == "" {
		return nil, fmt.Errorf("empty element name: %w", ErrMalformed)
	}
	b = protowire.AppendTag(b, fieldName, protowire.BytesType)
	b = protowire.AppendString(b, e.Name)

	for _, k := range e.Keys() {
		var attr []byte
		attr = protowire.AppendTag(attr, fieldAttrKey, protowire.BytesType)
		attr = protowire.AppendString(attr, k)
		attr = protowire.AppendTag(attr, fieldAttrValue, protowire.BytesType)
		attr = protowire.AppendString(attr, e.Attrs[k])

		b = protowire.AppendTag(b, fieldAttr, protowire.BytesType)
		b = protowire.AppendBytes(b, attr)
	}

	for _, c := range e.Children {
		if c == nil {
			continue
		}
		child, err := appendEnvelope(nil, c, depth+1)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, fieldChild, protowire.BytesType)
		b = protowire.AppendBytes(b, child)
	}

	if e.HasContent {
		b = protowire.AppendTag(b, fieldContent, protowire.BytesType)
		b = protowire.AppendString(b, e.Content)
	}
	return b, nil
}

// Unmarshal decodes one envelope. Unknown fields are skipped.
func Unmarshal(b []byte) (*Envelope, error) {
	return consumeEnvelope(b, 0)
}

func consumeEnvelope(b []byte, depth int) (*Envelope, error) {
	if depth >= MaxDepth {
		return nil, ErrTooDeep
	}
	e := &Envelope{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: name: %v", ErrMalformed, protowire.ParseError(n))
			}
			e.Name = v
			b = b[n:]
		case num == fieldAttr && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: attr: %v", ErrMalformed, protowire.ParseError(n))
			}
			k, v, err := consumeAttr(raw)
			if err != nil {
				return nil, err
			}
			e.Set(k, v)
			b = b[n:]
		case num == fieldChild && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: child: %v", ErrMalformed, protowire.ParseError(n))
			}
			child, err := consumeEnvelope(raw, depth+1)
			if err != nil {
				return nil, err
			}
			e.Children = append(e.Children, child)
			b = b[n:]
		case num == fieldContent && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: content: %v", ErrMalformed, protowire.ParseError(n))
			}
			e.SetContent(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if e.Name == "" {
		return nil, fmt.Errorf("%w: missing element name", ErrMalformed)
	}
	return e, nil
}

func consumeAttr(b []byte) (key, value string, err error) {
	var haveKey bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", "", fmt.Errorf("%w: attr tag: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		if typ != protowire.BytesType || (num != fieldAttrKey && num != fieldAttrValue) {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", "", fmt.Errorf("%w: attr field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeString(b)
		if n < 0 {
			return "", "", fmt.Errorf("%w: attr value: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		if num == fieldAttrKey {
			key = v
			haveKey = true
		} else {
			value = v
		}
	}
	if !haveKey || key == "" {
		return "", "", fmt.Errorf("%w: attribute without key", ErrMalformed)
	}
	return key, value, nil
}
