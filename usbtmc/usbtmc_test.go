package usbtmc

import (
	"bytes"
	"errors"
	"testing"
)

func TestBTagSkipsZero(t *testing.T) {
	g := newBTagGen()
	seen := map[byte]bool{}
	for i := 0; i < 600; i++ {
		tag := g.nextbTag()
		if tag == 0 {
			t.Fatalf("bTag 0 generated at iteration %d", i)
		}
		seen[tag] = true
	}
	if len(seen) != 255 {
		t.Errorf("expected all 255 nonzero tags to be used, got %d", len(seen))
	}
}

func TestInvbTag(t *testing.T) {
	if invbTag(0x01) != 0xfe || invbTag(0xaa) != 0x55 {
		t.Error("bTag inversion is wrong")
	}
}

func TestEncBulkOutHeader(t *testing.T) {
	hdr := encBulkOutHeader(7, 11)
	expected := []byte{0x01, 7, 0xf8, 0, 11, 0, 0, 0, 0x01, 0, 0, 0}
	if !bytes.Equal(hdr[:], expected) {
		t.Errorf("expected % x got % x", expected, hdr[:])
	}
}

func TestEncBulkInHeader(t *testing.T) {
	hdr := encBulkInHeader(2, 4096, nil)
	expected := []byte{0x02, 2, 0xfd, 0, 0x00, 0x10, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(hdr[:], expected) {
		t.Errorf("expected % x got % x", expected, hdr[:])
	}
	term := byte('\n')
	hdr = encBulkInHeader(2, 4096, &term)
	if hdr[8] != 0x02 || hdr[9] != '\n' {
		t.Errorf("termination character not requested: % x", hdr[:])
	}
}

func TestDecBulkInHeader(t *testing.T) {
	buf := []byte{0x02, 9, 0xf6, 0, 5, 0, 0, 0, 0x01, 0, 0, 0, 'S', 'T', 'O', 'P', '\n', 0, 0, 0}
	h, err := decBulkInHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if h.tag != 9 || h.transferSize != 5 || !h.eom {
		t.Errorf("unexpected header %+v", h)
	}
}

func TestDecBulkInHeaderRejects(t *testing.T) {
	cases := [][]byte{
		{0x02, 9, 0xf6},
		{0x01, 9, 0xf6, 0, 5, 0, 0, 0, 0x01, 0, 0, 0},
		{0x02, 9, 0xf5, 0, 5, 0, 0, 0, 0x01, 0, 0, 0},
	}
	for _, c := range cases {
		if _, err := decBulkInHeader(c); !errors.Is(err, ErrBadResponse) {
			t.Errorf("% x: expected bad response, got %v", c, err)
		}
	}
}

func TestPad(t *testing.T) {
	for n, expected := range map[int]int{12: 12, 13: 16, 15: 16, 16: 16} {
		if l := len(pad(make([]byte, n))); l != expected {
			t.Errorf("%d: expected %d got %d", n, expected, l)
		}
	}
}
