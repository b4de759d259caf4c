package svndelta

import "testing"

// buildDiff assembles a minimal single-window svndiff0 stream by hand,
// mirroring exactly what a real SVN server writes to the wire, so
// these tests exercise the real varint/opcode decoding path rather
// than a shortcut encoder.
func buildDiff(sourceOffset, sourceLen, targetLen int, instructions, data []byte) []byte {
	b := []byte{'S', 'V', 'N', 0}
	b = append(b, byte(sourceOffset), byte(sourceLen), byte(targetLen))
	b = append(b, byte(len(instructions)), byte(len(data)))
	b = append(b, instructions...)
	b = append(b, data...)
	return b
}

func TestApplyWholeFileInsert(t *testing.T) {
	// op=insert(2), length=5 -> byte 0x80|0x05
	diff := buildDiff(0, 0, 5, []byte{0x85}, []byte("hello"))
	got, err := Apply(nil, diff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q want %q", got, "hello")
	}
}

func TestApplySourceCopyAndInsert(t *testing.T) {
	source := []byte("hello")
	// insert(2) length=1 -> 0x81 ; source-copy(0) length=4 -> 0x04, offset=1
	instructions := []byte{0x81, 0x04, 0x01}
	diff := buildDiff(0, 5, 5, instructions, []byte("H"))
	got, err := Apply(source, diff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "Hello" {
		t.Fatalf("got %q want %q", got, "Hello")
	}
}

func TestApplyTargetCopyRunLength(t *testing.T) {
	// Produce "aaaaa" from an empty source: insert one 'a', then a
	// target-copy of length 4 from offset 0, which must read its own
	// just-written output byte by byte (the classic RLE trick).
	instructions := []byte{0x81, byte(opTargetCopy<<6 | 4), 0x00}
	diff := buildDiff(0, 0, 5, instructions, []byte("a"))
	got, err := Apply(nil, diff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "aaaaa" {
		t.Fatalf("got %q want %q", got, "aaaaa")
	}
}

func TestApplyRejectsBadMagic(t *testing.T) {
	_, err := Apply(nil, []byte("XYZ\x00"))
	if err == nil {
		t.Fatalf("expected error for bad magic")
	}
}

func TestApplySourceCopyOutOfRangeIsError(t *testing.T) {
	instructions := []byte{0x0a, 0x00} // source-copy length 10 offset 0 against a 3-byte source
	diff := buildDiff(0, 3, 10, instructions, nil)
	_, err := Apply([]byte("abc"), diff)
	if err == nil {
		t.Fatalf("expected out-of-range error")
	}
}

func TestApplyMultiWindow(t *testing.T) {
	win1 := buildDiff(0, 0, 3, []byte{0x83}, []byte("foo"))
	// Strip the "SVN\x00" header off the second window and concatenate.
	win2Full := buildDiff(0, 0, 3, []byte{0x83}, []byte("bar"))
	diff := append(win1, win2Full[4:]...)
	got, err := Apply(nil, diff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "foobar" {
		t.Fatalf("got %q want %q", got, "foobar")
	}
}
