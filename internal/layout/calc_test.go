package layout

import (
	"testing"

	"github.com/pdlc-project/pdlc/internal/model"
	"github.com/pdlc-project/pdlc/internal/parser"
	"github.com/pdlc-project/pdlc/internal/resolve"
	"github.com/pdlc-project/pdlc/internal/token"
)

func resolveSrc(t *testing.T, src string) *model.File {
	t.Helper()
	f, err := parser.New(token.Tokenize(src), "test.pdl").Parse()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	m, err := resolve.New(f).Resolve()
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	return m
}

func TestCalculateScalarChunkPacking(t *testing.T) {
	m := resolveSrc(t, `little_endian_packets
packet Packet_Scalar_Field {
  a: 7,
  c: 57,
}
`)
	rl, err := NewCalculator().Calculate(m, "Packet_Scalar_Field")
	if err != nil {
		t.Fatalf("Calculate() error: %v", err)
	}
	if len(rl.Chunks) != 1 {
		t.Fatalf("len(Chunks) = %d, want 1", len(rl.Chunks))
	}
	if rl.Chunks[0].Width != 8 {
		t.Fatalf("Chunks[0].Width = %d, want 8", rl.Chunks[0].Width)
	}
	a := rl.FieldChunk["a"]
	if a.Packing.BitOffset != 0 || a.Packing.Bits != 7 {
		t.Fatalf("a packing = %+v", a.Packing)
	}
	c := rl.FieldChunk["c"]
	if c.Packing.BitOffset != 7 || c.Packing.Bits != 57 {
		t.Fatalf("c packing = %+v", c.Packing)
	}
}

func TestCalculateChunkNotByteAligned(t *testing.T) {
	m := resolveSrc(t, `little_endian_packets
struct Foo {
  a: 3,
  b: Bar,
}
struct Bar {
  x: 8,
}
`)
	_, err := NewCalculator().Calculate(m, "Foo")
	if err == nil {
		t.Fatal("expected a chunk-not-byte-aligned error")
	}
}

func TestCalculateByteArrayConstantSize(t *testing.T) {
	m := resolveSrc(t, `little_endian_packets
struct Foo {
  a: 8[4],
}
`)
	rl, err := NewCalculator().Calculate(m, "Foo")
	if err != nil {
		t.Fatalf("Calculate() error: %v", err)
	}
	al := rl.Arrays["a"]
	if al.Category != ArrayByteElement || al.Sizing != ArraySizingConstantSize || al.Count != 4 {
		t.Fatalf("got %+v", al)
	}
}

func TestCalculateArrayVariableSize(t *testing.T) {
	m := resolveSrc(t, `little_endian_packets
packet Packet_Array_Field_ByteElement_VariableSize {
  _size_(array): 8,
  array: 8[],
}
`)
	rl, err := NewCalculator().Calculate(m, "Packet_Array_Field_ByteElement_VariableSize")
	if err != nil {
		t.Fatalf("Calculate() error: %v", err)
	}
	al := rl.Arrays["array"]
	if al.Sizing != ArraySizingVariableSize || al.BoundByField != "_size_(array)" {
		t.Fatalf("got %+v", al)
	}
	loc, ok := rl.FieldChunk["_size_(array)"]
	if !ok || loc.Packing.Bits != 8 {
		t.Fatalf("size field packing missing: %+v", loc)
	}
}

func TestCalculatePayloadUnknownTerminal(t *testing.T) {
	m := resolveSrc(t, `little_endian_packets
packet ScalarParent {
  a: 8,
  _payload_,
}
`)
	rl, err := NewCalculator().Calculate(m, "ScalarParent")
	if err != nil {
		t.Fatalf("Calculate() error: %v", err)
	}
	if rl.Payload == nil || rl.Payload.Discipline != PayloadUnknownTerminal {
		t.Fatalf("got %+v", rl.Payload)
	}
}

func TestCalculatePayloadVariableSize(t *testing.T) {
	m := resolveSrc(t, `little_endian_packets
packet Foo {
  _size_(_payload_): 8,
  _payload_,
}
`)
	rl, err := NewCalculator().Calculate(m, "Foo")
	if err != nil {
		t.Fatalf("Calculate() error: %v", err)
	}
	if rl.Payload.Discipline != PayloadVariableSize || rl.Payload.SizeField != "_size_(_payload_)" {
		t.Fatalf("got %+v", rl.Payload)
	}
}

func TestCalculatePayloadWithTrailer(t *testing.T) {
	m := resolveSrc(t, `little_endian_packets
packet Foo {
  _payload_,
  trailer: 16,
}
`)
	rl, err := NewCalculator().Calculate(m, "Foo")
	if err != nil {
		t.Fatalf("Calculate() error: %v", err)
	}
	if rl.Payload.Discipline != PayloadUnknownWithTrailer || rl.Payload.TrailerBytes != 2 {
		t.Fatalf("got %+v", rl.Payload)
	}
}

func TestCalculateOptionalBitmap(t *testing.T) {
	m := resolveSrc(t, `little_endian_packets
packet Packet_Optional_Scalar_Field {
  a: 32 if !flag_a,
  b: 32 if flag_b,
}
`)
	rl, err := NewCalculator().Calculate(m, "Packet_Optional_Scalar_Field")
	if err != nil {
		t.Fatalf("Calculate() error: %v", err)
	}
	if rl.OptionalBitmapWidth != 1 {
		t.Fatalf("OptionalBitmapWidth = %d, want 1", rl.OptionalBitmapWidth)
	}
	if len(rl.Optionals) != 2 {
		t.Fatalf("len(Optionals) = %d, want 2", len(rl.Optionals))
	}
	if rl.Optionals[0].FieldName != "a" || rl.Optionals[0].PresentWhenSet {
		t.Fatalf("got %+v", rl.Optionals[0])
	}
	if rl.Optionals[1].FieldName != "b" || !rl.Optionals[1].PresentWhenSet {
		t.Fatalf("got %+v", rl.Optionals[1])
	}
	if rl.Optionals[0].CondBitIndex != 0 || rl.Optionals[1].CondBitIndex != 1 {
		t.Fatalf("bit indices = %d, %d", rl.Optionals[0].CondBitIndex, rl.Optionals[1].CondBitIndex)
	}
}

func TestCalculateArrayPadded(t *testing.T) {
	m := resolveSrc(t, `little_endian_packets
struct Elem {
  v: 16,
}
packet Foo {
  _size_(array): 8,
  array: Elem[+16],
}
`)
	rl, err := NewCalculator().Calculate(m, "Foo")
	if err != nil {
		t.Fatalf("Calculate() error: %v", err)
	}
	al := rl.Arrays["array"]
	if al.Padding != 16 || al.Category != ArraySizedStructElement || al.ElementBytes != 2 {
		t.Fatalf("got %+v", al)
	}
}

func TestCalculateArrayPaddingTooSmall(t *testing.T) {
	m := resolveSrc(t, `little_endian_packets
struct Elem {
  v: 32,
}
packet Foo {
  _size_(array): 8,
  array: Elem[+2],
}
`)
	_, err := NewCalculator().Calculate(m, "Foo")
	if err == nil {
		t.Fatal("expected a padding-too-small error")
	}
}

func TestCalculateConstantBytes(t *testing.T) {
	m := resolveSrc(t, `little_endian_packets
struct Foo {
  a: 8,
  b: 8,
  c: 8[4],
}
`)
	rl, err := NewCalculator().Calculate(m, "Foo")
	if err != nil {
		t.Fatalf("Calculate() error: %v", err)
	}
	if rl.ConstantBytes != 6 {
		t.Fatalf("ConstantBytes = %d, want 6 (2 scalar + 4 array)", rl.ConstantBytes)
	}
}

// TestCalculateChunkInvariant checks the chunk invariant every closed
// Chunk must satisfy: its packed fields' bits sum to exactly 8*Width (no
// slack, no overflow) and no field's [BitOffset, BitOffset+Bits) range
// crosses another field's. A violation here would mean some bit-packed
// record silently drops or aliases bits on the wire.
func TestCalculateChunkInvariant(t *testing.T) {
	srcs := []string{
		`little_endian_packets
packet Packet_Scalar_Field {
  a: 7,
  c: 57,
}
`,
		`little_endian_packets
enum Kind : 8 {
  A = 1,
  B = 2,
}
packet Foo {
  kind: Kind,
  a: 3,
  b: 5,
  _size_(_payload_): 8,
  _payload_,
}
`,
		`little_endian_packets
packet Opt {
  a: 8 if !flag_a,
  b: 32 if flag_b,
}
`,
	}
	for _, src := range srcs {
		m := resolveSrc(t, src)
		for name := range m.Packets {
			rl, err := NewCalculator().Calculate(m, name)
			if err != nil {
				t.Fatalf("Calculate(%q) error: %v", name, err)
			}
			for ci, chunk := range rl.Chunks {
				total := 0
				occupied := make([]bool, chunk.Width*8)
				for _, f := range chunk.Fields {
					for b := f.BitOffset; b < f.BitOffset+f.Bits; b++ {
						if occupied[b] {
							t.Fatalf("%s chunk %d: bit %d claimed by more than one field", name, ci, b)
						}
						occupied[b] = true
					}
					total += f.Bits
				}
				if total != chunk.Width*8 {
					t.Fatalf("%s chunk %d: packed bits = %d, want %d (width %d bytes)", name, ci, total, chunk.Width*8, chunk.Width)
				}
			}
		}
	}
}
