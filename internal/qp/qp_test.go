package qp

import (
	"bytes"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte(""),
		[]byte("hello world\n"),
		[]byte("int main(){}\n\n"),
		{0x00, 0x01, 0xff, 0xfe, '\n', '\r', '\n'},
		bytes.Repeat([]byte("x"), 200), // forces soft line-break folding
	}

	for _, data := range cases {
		encoded := Encode(data)
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(%q): %v", encoded, err)
		}
		if !bytes.Equal(decoded, data) {
			t.Errorf("round trip mismatch: got %q, want %q", decoded, data)
		}
	}
}
