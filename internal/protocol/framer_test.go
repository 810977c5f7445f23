package protocol

import (
	"bytes"
	"testing"

	"github.com/ewest/midea/internal/crypto"
	"github.com/ewest/midea/internal/midea"
)

func testFramerPair(t *testing.T) (*Framer, *Framer) {
	t.Helper()
	sec := crypto.NewSecurity(midea.DefaultProfile())
	key := bytes.Repeat([]byte{0x13, 0x37}, 16)
	enc := NewFramer(sec)
	enc.SetKey(key)
	dec := NewFramer(sec)
	dec.SetKey(key)
	return enc, dec
}

func TestFramer_EncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		body    []byte
		msgtype byte
	}{
		{name: "handshake request", body: bytes.Repeat([]byte{0xAB}, 32), msgtype: midea.MsgTypeHandshakeRequest},
		{name: "encrypted request aligned", body: make([]byte, 14), msgtype: midea.MsgTypeEncryptedRequest},
		{name: "encrypted request needs padding", body: []byte{0x01, 0x02, 0x03}, msgtype: midea.MsgTypeEncryptedRequest},
		{name: "encrypted response", body: bytes.Repeat([]byte{0x5A}, 41), msgtype: midea.MsgTypeEncryptedResponse},
		{name: "empty body", body: nil, msgtype: midea.MsgTypeEncryptedRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, dec := testFramerPair(t)
			frame, err := enc.Encode(tt.body, tt.msgtype)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			msgs, leftover, err := dec.Decode(frame)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if len(msgs) != 1 {
				t.Fatalf("Decode() returned %d messages, want 1", len(msgs))
			}
			want := tt.body
			if want == nil {
				want = []byte{}
			}
			if !bytes.Equal(msgs[0], want) {
				t.Errorf("round trip = %x, want %x", msgs[0], want)
			}
			if len(leftover) != 0 {
				t.Errorf("leftover = %d bytes, want none", len(leftover))
			}
		})
	}
}

func TestFramer_DecodeTruncated(t *testing.T) {
	enc, dec := testFramerPair(t)
	frame, err := enc.Encode([]byte{0x01, 0x02, 0x03, 0x04}, midea.MsgTypeEncryptedRequest)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	// Any prefix of a frame decodes to no messages and the untouched input.
	for cut := 1; cut < len(frame); cut++ {
		part := frame[:cut]
		msgs, leftover, err := dec.Decode(part)
		if err != nil {
			t.Fatalf("Decode(frame[:%d]) error = %v", cut, err)
		}
		if len(msgs) != 0 {
			t.Fatalf("Decode(frame[:%d]) returned %d messages, want 0", cut, len(msgs))
		}
		if !bytes.Equal(leftover, part) {
			t.Fatalf("Decode(frame[:%d]) leftover differs from input", cut)
		}
	}
}

func TestFramer_DecodeConcatenated(t *testing.T) {
	enc, dec := testFramerPair(t)
	first, err := enc.Encode([]byte{0x01, 0x01}, midea.MsgTypeEncryptedRequest)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	second, err := enc.Encode([]byte{0x02, 0x02, 0x02}, midea.MsgTypeEncryptedRequest)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	msgs, leftover, err := dec.Decode(append(append([]byte{}, first...), second...))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Decode() returned %d messages, want 2", len(msgs))
	}
	if !bytes.Equal(msgs[0], []byte{0x01, 0x01}) || !bytes.Equal(msgs[1], []byte{0x02, 0x02, 0x02}) {
		t.Errorf("messages decoded out of order: %x, %x", msgs[0], msgs[1])
	}
	if len(leftover) != 0 {
		t.Errorf("leftover = %d bytes, want none", len(leftover))
	}
}

func TestFramer_DecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		frame func(t *testing.T, enc *Framer) []byte
	}{
		{
			name: "bad magic",
			frame: func(t *testing.T, enc *Framer) []byte {
				return []byte{0x5A, 0x5A, 0x00, 0x10, 0x20, 0x06, 0x00, 0x00}
			},
		},
		{
			name: "bad flag byte",
			frame: func(t *testing.T, enc *Framer) []byte {
				frame, err := enc.Encode([]byte{0x01}, midea.MsgTypeEncryptedRequest)
				if err != nil {
					t.Fatalf("Encode() error = %v", err)
				}
				frame[4] = 0x21
				return frame
			},
		},
		{
			name: "signature mismatch",
			frame: func(t *testing.T, enc *Framer) []byte {
				frame, err := enc.Encode([]byte{0x01}, midea.MsgTypeEncryptedRequest)
				if err != nil {
					t.Fatalf("Encode() error = %v", err)
				}
				frame[len(frame)-1] ^= 0xFF
				return frame
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, dec := testFramerPair(t)
			_, _, err := dec.Decode(tt.frame(t, enc))
			if !midea.IsProtocolError(err) {
				t.Errorf("Decode() error = %v, want protocol error", err)
			}
		})
	}
}

func TestFramer_EncodeWithoutKey(t *testing.T) {
	sec := crypto.NewSecurity(midea.DefaultProfile())
	enc := NewFramer(sec)

	if _, err := enc.Encode([]byte{0x01}, midea.MsgTypeEncryptedRequest); !midea.IsProtocolError(err) {
		t.Errorf("Encode() without key error = %v, want protocol error", err)
	}
	// Handshake frames need no key.
	if _, err := enc.Encode(bytes.Repeat([]byte{0x01}, 32), midea.MsgTypeHandshakeRequest); err != nil {
		t.Errorf("Encode() handshake error = %v", err)
	}
}

func TestFramer_CounterWraps(t *testing.T) {
	enc, dec := testFramerPair(t)
	var frame []byte
	var err error
	for i := 0; i < 0xFFF+2; i++ {
		frame, err = enc.Encode([]byte{0x01}, midea.MsgTypeEncryptedRequest)
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
	}
	if _, _, err := dec.Decode(frame); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	// 0xFFF encodes reset the counter to zero, so frame 0x1000 carries 0
	// and frame 0x1001 carries 1.
	if dec.ResponseCount() != 1 {
		t.Errorf("ResponseCount() = %d, want 1 after wrap", dec.ResponseCount())
	}
}

func TestDecoder_Feed(t *testing.T) {
	enc, dec := testFramerPair(t)
	decoder := NewDecoder(dec)

	first, err := enc.Encode([]byte{0xAA, 0xBB}, midea.MsgTypeEncryptedRequest)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	second, err := enc.Encode([]byte{0xCC}, midea.MsgTypeEncryptedRequest)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	stream := append(append([]byte{}, first...), second...)

	// Feed in 7-byte chunks; every message must come out exactly once.
	var got [][]byte
	for i := 0; i < len(stream); i += 7 {
		end := i + 7
		if end > len(stream) {
			end = len(stream)
		}
		msgs, err := decoder.Feed(stream[i:end])
		if err != nil {
			t.Fatalf("Feed() error = %v", err)
		}
		got = append(got, msgs...)
	}
	if len(got) != 2 {
		t.Fatalf("Feed() produced %d messages, want 2", len(got))
	}
	if !bytes.Equal(got[0], []byte{0xAA, 0xBB}) || !bytes.Equal(got[1], []byte{0xCC}) {
		t.Errorf("messages = %x, %x", got[0], got[1])
	}
}
