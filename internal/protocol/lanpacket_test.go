package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/ewest/midea/internal/crypto"
	"github.com/ewest/midea/internal/midea"
)

func TestEncodeLanPacket(t *testing.T) {
	sec := crypto.NewSecurity(midea.DefaultProfile())
	command := bytes.Repeat([]byte{0xA1}, 33)
	now := time.Date(2021, 12, 11, 20, 13, 12, 160_000_000, time.UTC)

	packet, err := EncodeLanPacket(sec, 123456789, command, now, true)
	if err != nil {
		t.Fatalf("EncodeLanPacket() error = %v", err)
	}

	if !bytes.Equal(packet[:2], midea.HdrZZ) {
		t.Errorf("header = %x, want 5a5a", packet[:2])
	}
	if packet[2] != 0x01 || packet[3] != 0x11 {
		t.Errorf("message type = %02x %02x, want 01 11", packet[2], packet[3])
	}
	if got := binary.LittleEndian.Uint16(packet[4:6]); int(got) != len(packet) {
		t.Errorf("declared length = %d, want %d", got, len(packet))
	}
	if packet[13] != 12 || packet[14] != 13 || packet[15] != 20 {
		t.Errorf("timestamp = %v, want 20:13:12", packet[12:20])
	}
	if packet[16] != 11 || packet[17] != 12 || packet[18] != 21 || packet[19] != 20 {
		t.Errorf("date = %v, want 2021-12-11", packet[16:20])
	}
	if got := binary.LittleEndian.Uint64(packet[20:28]); got != 123456789 {
		t.Errorf("appliance id = %d, want 123456789", got)
	}

	// The fingerprint covers everything before it.
	want := sec.MD5Fingerprint(packet[:len(packet)-16])
	if !bytes.Equal(packet[len(packet)-16:], want) {
		t.Error("fingerprint trailer mismatch")
	}

	// The payload decrypts back to the command.
	payload, err := DecryptLanResponse(sec, packet)
	if err != nil {
		t.Fatalf("DecryptLanResponse() error = %v", err)
	}
	if !bytes.Equal(payload, command) {
		t.Errorf("payload = %x, want %x", payload, command)
	}
}

func TestEncodeLanPacket_Plaintext(t *testing.T) {
	sec := crypto.NewSecurity(midea.DefaultProfile())
	command := []byte{0xAA, 0x20, 0xA1, 0x00}

	packet, err := EncodeLanPacket(sec, 1, command, time.Now(), false)
	if err != nil {
		t.Fatalf("EncodeLanPacket() error = %v", err)
	}
	if !bytes.Equal(packet[40:len(packet)-16], command) {
		t.Error("cloud packet should carry the plaintext command")
	}
}

func TestSplitZZPackets(t *testing.T) {
	sec := crypto.NewSecurity(midea.DefaultProfile())
	first := bytes.Repeat([]byte{0xC8}, 24)
	second := bytes.Repeat([]byte{0xB1}, 20)

	one, err := EncodeLanPacket(sec, 99, first, time.Now(), true)
	if err != nil {
		t.Fatalf("EncodeLanPacket() error = %v", err)
	}
	two, err := EncodeLanPacket(sec, 99, second, time.Now(), true)
	if err != nil {
		t.Fatalf("EncodeLanPacket() error = %v", err)
	}

	packets, err := SplitZZPackets(sec, append(append([]byte{}, one...), two...))
	if err != nil {
		t.Fatalf("SplitZZPackets() error = %v", err)
	}
	if len(packets) != 2 {
		t.Fatalf("SplitZZPackets() returned %d packets, want 2", len(packets))
	}
	if !bytes.Equal(packets[0], first) || !bytes.Equal(packets[1], second) {
		t.Error("payloads decoded out of order or corrupted")
	}

	if _, err := SplitZZPackets(sec, one[:10]); !midea.IsProtocolError(err) {
		t.Errorf("SplitZZPackets() truncated error = %v, want protocol error", err)
	}
}

func TestSplitB5Packets(t *testing.T) {
	// Two plaintext packets: byte 1 holds the remaining length; the 10-byte
	// header of each is stripped.
	body := []byte{0xB5, 0x01, 0x02, 0x03}
	packet := append([]byte{0xAA, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, body...)
	packet[1] = byte(len(packet) - 1)
	buf := append(append([]byte{}, packet...), packet...)

	packets, err := SplitB5Packets(buf)
	if err != nil {
		t.Fatalf("SplitB5Packets() error = %v", err)
	}
	if len(packets) != 2 {
		t.Fatalf("SplitB5Packets() returned %d packets, want 2", len(packets))
	}
	for i, p := range packets {
		if !bytes.Equal(p, body) {
			t.Errorf("packet %d = %x, want %x", i, p, body)
		}
	}

	// A short packet is dropped, not an error.
	short := []byte{0xAA, 0x03, 0x00, 0x00}
	packets, err = SplitB5Packets(short)
	if err != nil {
		t.Fatalf("SplitB5Packets() error = %v", err)
	}
	if len(packets) != 0 {
		t.Errorf("SplitB5Packets() returned %d packets, want 0", len(packets))
	}
}
