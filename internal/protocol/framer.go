package protocol

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/ewest/midea/internal/crypto"
	"github.com/ewest/midea/internal/midea"
)

func isEncrypted(msgtype byte) bool {
	return msgtype == midea.MsgTypeEncryptedRequest || msgtype == midea.MsgTypeEncryptedResponse
}

// Framer encodes and decodes v3 (8370) frames. It owns the session key and
// the request/response counters; one Framer serves exactly one TCP session.
// Framer itself is not safe for concurrent use, the device session
// serializes access.
type Framer struct {
	sec           *crypto.Security
	key           []byte
	requestCount  uint16
	responseCount uint16
}

// NewFramer creates a Framer without a session key. Handshake frames can be
// encoded immediately; encrypted frames require SetKey first.
func NewFramer(sec *crypto.Security) *Framer {
	return &Framer{sec: sec}
}

// SetKey installs the session key negotiated by the handshake and resets
// both message counters.
func (f *Framer) SetKey(key []byte) {
	f.key = key
	f.requestCount = 0
	f.responseCount = 0
}

// HasKey reports whether a session key is installed.
func (f *Framer) HasKey() bool {
	return len(f.key) > 0
}

// ResponseCount returns the counter extracted from the last decoded frame.
func (f *Framer) ResponseCount() uint16 {
	return f.responseCount
}

// Encode wraps data in an 8370 frame. Encrypted message types are padded so
// that the plaintext including the 2-byte counter is block aligned, then
// CBC-encrypted with the session key and followed by a SHA-256 signature
// over header and plaintext.
func (f *Framer) Encode(data []byte, msgtype byte) ([]byte, error) {
	size := len(data)
	pad := 0
	if isEncrypted(msgtype) {
		// Declared size covers padding and the 32-byte signature.
		pad = (16 - (size+2)%16) % 16
		size += pad + 32
	}

	header := make([]byte, 6)
	copy(header, midea.Hdr8370)
	binary.BigEndian.PutUint16(header[2:4], uint16(size))
	header[4] = 0x20
	header[5] = byte(pad)<<4 | msgtype

	if f.requestCount >= 0xFFF {
		f.requestCount = 0
	}
	plain := make([]byte, 2, 2+len(data)+pad)
	binary.BigEndian.PutUint16(plain, f.requestCount)
	f.requestCount++
	plain = append(plain, data...)
	if pad > 0 {
		padding := make([]byte, pad)
		if _, err := rand.Read(padding); err != nil {
			return nil, err
		}
		plain = append(plain, padding...)
	}

	if !isEncrypted(msgtype) {
		return append(header, plain...), nil
	}

	if !f.HasKey() {
		return nil, midea.NewProtocolError("missing session key for encrypted frame")
	}
	sign := sha256.Sum256(append(append([]byte{}, header...), plain...))
	enc, err := f.sec.AESCBCEncrypt(plain, f.key)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 0, len(header)+len(enc)+len(sign))
	frame = append(frame, header...)
	frame = append(frame, enc...)
	frame = append(frame, sign[:]...)
	return frame, nil
}

// Decode extracts every complete frame from buf and returns the decoded
// message bodies together with any trailing incomplete frame. It never
// mutates buf: a short buffer comes back untouched as leftover so the
// caller can retry once more data arrives.
func (f *Framer) Decode(buf []byte) ([][]byte, []byte, error) {
	var msgs [][]byte
	for {
		if len(buf) < 6 {
			return msgs, buf, nil
		}
		header := buf[:6]
		if !bytes.Equal(header[:2], midea.Hdr8370) {
			return nil, nil, midea.NewProtocolError("frame does not start with 8370 magic")
		}
		size := int(binary.BigEndian.Uint16(header[2:4])) + 8
		if len(buf) < size {
			return msgs, buf, nil
		}
		if header[4] != 0x20 {
			return nil, nil, midea.NewProtocolError(
				fmt.Sprintf("unexpected frame flag byte 0x%02x", header[4]))
		}
		pad := int(header[5] >> 4)
		msgtype := header[5] & 0xF
		body := buf[6:size]

		if isEncrypted(msgtype) {
			if len(body) < 32+16 {
				return nil, nil, midea.NewProtocolError("encrypted frame too short")
			}
			sign := body[len(body)-32:]
			plain, err := f.sec.AESCBCDecrypt(body[:len(body)-32], f.key)
			if err != nil {
				return nil, nil, err
			}
			check := sha256.Sum256(append(append([]byte{}, header...), plain...))
			if !bytes.Equal(check[:], sign) {
				return nil, nil, midea.NewProtocolError("frame signature mismatch")
			}
			if pad > 0 {
				if pad >= len(plain) {
					return nil, nil, midea.NewProtocolError("frame padding exceeds payload")
				}
				plain = plain[:len(plain)-pad]
			}
			body = plain
		}
		if len(body) < 2 {
			return nil, nil, midea.NewProtocolError("frame body too short for counter")
		}
		f.responseCount = binary.BigEndian.Uint16(body[:2])
		msg := body[2:]
		if isEncrypted(msgtype) {
			msgs = append(msgs, msg)
		} else {
			// Plaintext bodies alias buf; copy so callers may reuse it.
			msgs = append(msgs, append([]byte(nil), msg...))
		}
		buf = buf[size:]
	}
}

// Decoder accumulates stream chunks and drains complete 8370 frames from
// them. It keeps the partial tail between calls so the caller can feed
// reads of arbitrary size.
type Decoder struct {
	framer *Framer
	buf    []byte
}

// NewDecoder creates a Decoder draining frames through framer.
func NewDecoder(framer *Framer) *Decoder {
	return &Decoder{framer: framer}
}

// Feed appends chunk to the internal buffer and returns every message that
// became complete. A decode error discards the buffer; the session must be
// re-established after it.
func (d *Decoder) Feed(chunk []byte) ([][]byte, error) {
	d.buf = append(d.buf, chunk...)
	msgs, leftover, err := d.framer.Decode(d.buf)
	if err != nil {
		d.buf = nil
		return nil, err
	}
	d.buf = append(d.buf[:0], leftover...)
	return msgs, nil
}

// Reset discards any buffered partial frame.
func (d *Decoder) Reset() {
	d.buf = nil
}
