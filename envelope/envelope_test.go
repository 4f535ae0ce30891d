package envelope

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/encoding/protowire"
)

func sampleEnvelope() *Envelope {
	board := New("board").SetInt("size", 3)
	board.Add(
		New("cell").SetInt("x", 0).SetInt("y", 2).Set("mark", "X"),
		New("cell").SetInt("x", 1).SetInt("y", 1).Set("mark", "O"),
	)
	return New("model_state").
		Set("username", "alice").
		SetInt("table", 7).
		SetBool("started", true).
		Add(board, New("note").SetContent(""))
}

func TestMarshalUnmarshal_RoundTrip(t *testing.T) {
	in := sampleEnvelope()
	raw, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal err: %v", err)
	}
	out, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal err: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("round trip mismatch (-in +out):\n%s", diff)
	}
	if !in.Equal(out) {
		t.Fatalf("expected Equal after round trip")
	}
}

func TestMarshal_DeterministicAcrossAttrInsertionOrder(t *testing.T) {
	a := New("sit").Set("username", "bob").SetInt("table", 1).SetInt("seat", 0)
	b := New("sit").SetInt("seat", 0).SetInt("table", 1).Set("username", "bob")

	ra, err := Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	rb, err := Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ra, rb) {
		t.Fatalf("expected identical encodings")
	}
}

func TestUnmarshal_EmptyContentKeepsPresence(t *testing.T) {
	raw, err := Marshal(New("chat").SetContent(""))
	if err != nil {
		t.Fatal(err)
	}
	out, err := Unmarshal(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !out.HasContent {
		t.Fatalf("expected content presence to survive")
	}

	raw, err = Marshal(New("chat"))
	if err != nil {
		t.Fatal(err)
	}
	out, err = Unmarshal(raw)
	if err != nil {
		t.Fatal(err)
	}
	if out.HasContent {
		t.Fatalf("expected no content")
	}
}

func TestUnmarshal_SkipsUnknownFields(t *testing.T) {
	raw, err := Marshal(New("stand").Set("username", "carol").SetInt("table", 3))
	if err != nil {
		t.Fatal(err)
	}
	raw = protowire.AppendTag(raw, 15, protowire.VarintType)
	raw = protowire.AppendVarint(raw, 42)
	raw = protowire.AppendTag(raw, 16, protowire.BytesType)
	raw = protowire.AppendString(raw, "future")

	out, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal err: %v", err)
	}
	if out.Name != "stand" || out.Attr("username") != "carol" {
		t.Fatalf("unexpected decode: %+v", out)
	}
}

func TestUnmarshal_Malformed(t *testing.T) {
	cases := map[string][]byte{
		"truncated":    {0x0a, 0x05, 'a'},
		"no name":      protowire.AppendVarint(protowire.AppendTag(nil, 9, protowire.VarintType), 1),
		"bad tag":      {0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		"keyless attr": protowire.AppendBytes(protowire.AppendTag(protowire.AppendString(protowire.AppendTag(nil, 1, protowire.BytesType), "x"), 2, protowire.BytesType), nil),
	}
	for name, raw := range cases {
		if _, err := Unmarshal(raw); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}

func TestMarshal_RejectsDeepNesting(t *testing.T) {
	root := New("n")
	cur := root
	for i := 0; i < MaxDepth+1; i++ {
		next := New("n")
		cur.Add(next)
		cur = next
	}
	if _, err := Marshal(root); !errors.Is(err, ErrTooDeep) {
		t.Fatalf("expected ErrTooDeep, got %v", err)
	}
}

func TestAttributeAccessors(t *testing.T) {
	e := New("sit").Set("seat", "two").SetBool("ready", true)

	if _, err := e.Int("table"); !errors.Is(err, ErrMissingAttr) {
		t.Fatalf("expected ErrMissingAttr, got %v", err)
	}
	var missing *MissingAttrError
	if _, err := e.Int("table"); !errors.As(err, &missing) || missing.Attr != "table" {
		t.Fatalf("expected MissingAttrError for table, got %v", err)
	}
	if _, err := e.Int("seat"); !errors.Is(err, ErrBadAttr) {
		t.Fatalf("expected ErrBadAttr, got %v", err)
	}
	if v, err := e.IntOr("absent", 5); err != nil || v != 5 {
		t.Fatalf("expected default 5, got %d err=%v", v, err)
	}
	if v, err := e.Bool("ready"); err != nil || !v {
		t.Fatalf("expected ready=true, got %v err=%v", v, err)
	}
	if _, err := e.RequireChild("board"); !errors.Is(err, ErrMissingAttr) {
		t.Fatalf("expected missing child error, got %v", err)
	}
}

func TestClone_IsDeep(t *testing.T) {
	in := sampleEnvelope()
	cp := in.Clone()
	cp.Child("board").Children[0].Set("mark", "O")
	if in.Child("board").Children[0].Attr("mark") != "X" {
		t.Fatalf("clone shares child attributes with original")
	}
	if in.Equal(cp) {
		t.Fatalf("expected modified clone to differ")
	}
}

func TestFrameReader_ReadsSequentialFrames(t *testing.T) {
	var buf bytes.Buffer
	first := New("sit").SetInt("table", 1)
	second := sampleEnvelope()
	if err := WriteEnvelope(&buf, first); err != nil {
		t.Fatal(err)
	}
	if err := WriteEnvelope(&buf, second); err != nil {
		t.Fatal(err)
	}

	fr := NewFrameReader(&buf)
	got1, err := fr.ReadEnvelope()
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	got2, err := fr.ReadEnvelope()
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if !got1.Equal(first) || !got2.Equal(second) {
		t.Fatalf("frames decoded out of order or corrupted")
	}
	if _, err := fr.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestFrameReader_TruncatedAndOversize(t *testing.T) {
	payload, err := Marshal(sampleEnvelope())
	if err != nil {
		t.Fatal(err)
	}
	framed := Frame(payload)
	fr := NewFrameReader(bytes.NewReader(framed[:len(framed)-2]))
	if _, err := fr.ReadFrame(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}

	huge := protowire.AppendVarint(nil, MaxFrameSize+1)
	fr = NewFrameReader(bytes.NewReader(huge))
	if _, err := fr.ReadFrame(); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}
