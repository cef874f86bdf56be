package cir

// A minimal CIR interpreter used to verify, at the byte level, that Parse
// and Serialize programs built by Builder actually decode and encode the
// wire layouts they claim to. It covers the op set build.go actually
// emits for non-array, non-inherited records: OpReadChunk, OpWriteChunk,
// OpCheckEq, OpCheckEnumRange, OpSliceTake, OpSliceTail, OpPadZeroes,
// OpAppendBytes, plus SeqNode/IfNode. LoopNode (array iteration) isn't
// supported here; see DESIGN.md for why array round-trips are covered at
// the layout level instead of through generated code or this harness.

import (
	"fmt"
	"testing"
)

type env struct {
	scalars map[string]int64
	payload []byte
	anonQ   []int64
	bitmap  int64
}

func newEnv() *env { return &env{scalars: map[string]int64{}} }

func evalExpr(e Expr, ev *env) int64 {
	switch ex := e.(type) {
	case ConstExpr:
		return int64(ex.Value)
	case FieldRefExpr:
		if ex.Name == "_optional_bitmap_" {
			return ev.bitmap
		}
		return ev.scalars[ex.Name]
	case AddExpr:
		return evalExpr(ex.A, ev) + evalExpr(ex.B, ev)
	case MulExpr:
		return evalExpr(ex.A, ev) * evalExpr(ex.B, ev)
	case MaxExpr:
		a, b := evalExpr(ex.A, ev), evalExpr(ex.B, ev)
		if a > b {
			return a
		}
		return b
	}
	return 0
}

func readUintLE(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func writeUintLE(v uint64, width int) []byte {
	out := make([]byte, width)
	for i := 0; i < width; i++ {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

// interpParse walks n against buf starting at pos, little-endian only
// (every scenario test below declares little_endian_packets).
func interpParse(buf []byte, pos int, n Node, ev *env) (int, error) {
	switch node := n.(type) {
	case *SeqNode:
		for _, c := range node.Children {
			var err error
			pos, err = interpParse(buf, pos, c, ev)
			if err != nil {
				return pos, err
			}
		}
		return pos, nil
	case *IfNode:
		set := (ev.bitmap>>uint(node.CondBitIndex))&1 == 1
		if set == node.PresentWhenSet {
			return interpParse(buf, pos, node.Then, ev)
		}
		return pos, nil
	case *LoopNode:
		return pos, fmt.Errorf("interpParse: array loops not supported by this harness")
	case *InstrNode:
		return interpInstr(buf, pos, node.Instr, ev)
	}
	return pos, fmt.Errorf("interpParse: unhandled node %T", n)
}

func interpInstr(buf []byte, pos int, in Instr, ev *env) (int, error) {
	switch in.Op {
	case OpReadChunk:
		imm := in.Imm.(ChunkImm)
		if len(buf)-pos < imm.Width {
			return pos, fmt.Errorf("truncated chunk: need %d bytes", imm.Width)
		}
		chunk := readUintLE(buf[pos : pos+imm.Width])
		pos += imm.Width
		for _, f := range imm.Fields {
			mask := uint64(1)<<uint(f.Bits) - 1
			val := int64((chunk >> uint(f.BitOffset)) & mask)
			switch {
			case f.FieldName == "":
				ev.anonQ = append(ev.anonQ, val)
			case f.FieldName == "_optional_bitmap_":
				ev.bitmap = val
			default:
				ev.scalars[f.FieldName] = val
			}
		}
		return pos, nil
	case OpCheckEq:
		imm := in.Imm.(CheckEqImm)
		var val int64
		if len(ev.anonQ) > 0 {
			val = ev.anonQ[0]
			ev.anonQ = ev.anonQ[1:]
		} else {
			val = ev.scalars[imm.Field]
		}
		if val != imm.Value {
			return pos, fmt.Errorf("constraint violated: got %d, want %d", val, imm.Value)
		}
		return pos, nil
	case OpCheckEnumRange:
		imm := in.Imm.(CheckEnumRangeImm)
		val := ev.scalars[imm.Field]
		for _, r := range imm.Ranges {
			if val >= r.Low && val <= r.High {
				return pos, nil
			}
		}
		return pos, fmt.Errorf("value %d out of declared enum range", val)
	case OpSliceTake:
		imm := in.Imm.(SliceImm)
		var n int
		if imm.N != nil {
			n = int(evalExpr(imm.N, ev))
		} else {
			end := len(buf) - imm.TrailerReserve
			if end < pos {
				end = pos
			}
			n = end - pos
		}
		if n < 0 || pos+n > len(buf) {
			return pos, fmt.Errorf("payload slice [%d:%d+%d] out of range", pos, pos, n)
		}
		ev.payload = append([]byte(nil), buf[pos:pos+n]...)
		return pos + n, nil
	case OpSliceTail:
		ev.payload = append([]byte(nil), buf[pos:]...)
		return len(buf), nil
	}
	return pos, fmt.Errorf("interpInstr: unhandled op %v", in.Op)
}

// interpSerialize mirrors interpParse for the Serialize tree. Optional
// fields' presence bitmap must already be set on ev.bitmap by the caller:
// the generated Go backend never computes it during Serialize (see
// DESIGN.md), so this harness takes it as given rather than papering over
// that gap.
func interpSerialize(n Node, ev *env, out *[]byte) error {
	switch node := n.(type) {
	case *SeqNode:
		for _, c := range node.Children {
			if err := interpSerialize(c, ev, out); err != nil {
				return err
			}
		}
		return nil
	case *IfNode:
		set := (ev.bitmap>>uint(node.CondBitIndex))&1 == 1
		if set == node.PresentWhenSet {
			return interpSerialize(node.Then, ev, out)
		}
		return nil
	case *LoopNode:
		return fmt.Errorf("interpSerialize: array loops not supported by this harness")
	case *InstrNode:
		return interpSerializeInstr(node.Instr, ev, out)
	}
	return fmt.Errorf("interpSerialize: unhandled node %T", n)
}

func interpSerializeInstr(in Instr, ev *env, out *[]byte) error {
	switch in.Op {
	case OpWriteChunk:
		imm := in.Imm.(ChunkImm)
		var chunk uint64
		for _, f := range imm.Fields {
			var v int64
			switch {
			case f.FieldName == "":
				if f.ConstValue != nil {
					v = *f.ConstValue
				}
			case f.FieldName == "_optional_bitmap_":
				v = ev.bitmap
			case len(f.FieldName) > 7 && (f.FieldName[:7] == "_size_(" || f.FieldName[:8] == "_count_("):
				v = int64(len(ev.payload)) - int64(f.Modifier)
			default:
				v = ev.scalars[f.FieldName]
			}
			mask := uint64(1)<<uint(f.Bits) - 1
			chunk |= (uint64(v) & mask) << uint(f.BitOffset)
		}
		*out = append(*out, writeUintLE(chunk, imm.Width)...)
		return nil
	case OpAppendBytes:
		*out = append(*out, ev.payload...)
		return nil
	case OpPadZeroes:
		imm := in.Imm.(PadImm)
		*out = append(*out, make([]byte, imm.N)...)
		return nil
	}
	return fmt.Errorf("interpSerializeInstr: unhandled op %v", in.Op)
}

// --- scenario 1: fixed scalar header + size-prefixed payload ---
// a=0x11, size=2, payload=[0x22,0x33] -> wire bytes 11 02 22 33.

func TestScenarioScalarHeaderWithSizedPayload(t *testing.T) {
	m := resolveSrc(t, `little_endian_packets
packet ScalarParent {
  a: 8,
  _size_(_payload_): 8,
  _payload_,
}
`)
	p, err := NewBuilder().Build(m, "ScalarParent")
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	want := []byte{0x11, 0x02, 0x22, 0x33}
	ev := newEnv()
	pos, err := interpParse(want, 0, p.Parse, ev)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if pos != len(want) {
		t.Fatalf("parse consumed %d bytes, want %d", pos, len(want))
	}
	if ev.scalars["a"] != 0x11 {
		t.Fatalf("a = %d, want 0x11", ev.scalars["a"])
	}
	if string(ev.payload) != "\x22\x33" {
		t.Fatalf("payload = %x, want 2233", ev.payload)
	}

	var out []byte
	if err := interpSerialize(p.Serialize, ev, &out); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if string(out) != string(want) {
		t.Fatalf("serialize = % x, want % x", out, want)
	}
}

// --- scenario 3: two scalar fields packed into one wide chunk ---
// a: 7 bits, c: 57 bits, little-endian, single 8-byte chunk.

func TestScenarioWideChunkBitPacking(t *testing.T) {
	m := resolveSrc(t, `little_endian_packets
packet WideScalar {
  a: 7,
  c: 57,
}
`)
	p, err := NewBuilder().Build(m, "WideScalar")
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	const a = int64(0x55)
	const c = int64(0x123456789abcdef)
	word := (uint64(a) & 0x7f) | (uint64(c)&((uint64(1)<<57)-1))<<7
	want := writeUintLE(word, 8)

	ev := newEnv()
	pos, err := interpParse(want, 0, p.Parse, ev)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if pos != 8 {
		t.Fatalf("parse consumed %d bytes, want 8", pos)
	}
	if ev.scalars["a"] != a {
		t.Fatalf("a = %#x, want %#x", ev.scalars["a"], a)
	}
	if ev.scalars["c"] != c {
		t.Fatalf("c = %#x, want %#x", ev.scalars["c"], c)
	}

	var out []byte
	if err := interpSerialize(p.Serialize, ev, &out); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if string(out) != string(want) {
		t.Fatalf("serialize = % x, want % x", out, want)
	}
}

// --- scenario 5: bitmap-gated optional fields, parse direction only ---
// bitmap=0x03 -> a (present-when-clear, bit0) absent, b (present-when-set,
// bit1) present with wire bytes 01 02 03 00.
//
// Serialize isn't exercised here: the generated Serialize method never
// computes the bitmap from which optional fields are actually populated
// (see DESIGN.md), so a serialize round-trip would only be testing this
// harness's own env.bitmap plumbing, not the generated code's behavior.

func TestScenarioOptionalBitmapGatesFields(t *testing.T) {
	m := resolveSrc(t, `little_endian_packets
packet Opt {
  a: 8 if !flag_a,
  b: 32 if flag_b,
}
`)
	p, err := NewBuilder().Build(m, "Opt")
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	buf := []byte{0x03, 0x01, 0x02, 0x03, 0x00}
	ev := newEnv()
	pos, err := interpParse(buf, 0, p.Parse, ev)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if pos != len(buf) {
		t.Fatalf("parse consumed %d bytes, want %d", pos, len(buf))
	}
	if _, present := ev.scalars["a"]; present {
		t.Fatalf("a decoded as present (%d), want absent per bitmap bit 0 set", ev.scalars["a"])
	}
	if got, want := ev.scalars["b"], int64(0x00030201); got != want {
		t.Fatalf("b = %#x, want %#x", got, want)
	}
}

// Parent/child constraint checking (packet Child : Parent (kind = 7)) is
// exercised only at the structural level, in build_test.go's
// TestBuildConstraintEmitsCheckEq: a real byte-level round trip would
// require Child's Parse program to decode "kind" itself first, and it
// doesn't (Build uses the child's own RecordInfo.Fields, which never
// includes inherited ancestor fields) — the emitted CheckEq compares
// against whatever "kind" holds in the interpreter's scalar store, which
// is never populated by anything in Child's own program. See DESIGN.md
// for this as a known, out-of-scope gap rather than asserting behavior
// that the current CIR construction doesn't actually provide.
