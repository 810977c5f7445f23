package protocol

import (
	"encoding/binary"
	"time"

	"github.com/ewest/midea/internal/crypto"
	"github.com/ewest/midea/internal/midea"
)

// lanHeaderSize is the fixed part of a v2 packet before the command data.
const lanHeaderSize = 40

// fingerprintSize is the MD5 trailer appended to every v2 packet.
const fingerprintSize = 16

// EncodeLanPacket wraps a finalized command in the v2 "ZZ" envelope: fixed
// header, timestamp, little-endian appliance id, the command payload and an
// MD5 fingerprint trailer. When encrypt is true the payload is AES-ECB
// encrypted; packets relayed through the cloud carry the plaintext command,
// the cloud encrypts them itself.
func EncodeLanPacket(sec *crypto.Security, applianceID uint64, command []byte, now time.Time, encrypt bool) ([]byte, error) {
	packet := make([]byte, lanHeaderSize, lanHeaderSize+len(command)+fingerprintSize)
	copy(packet, midea.HdrZZ)
	packet[2] = 0x01
	packet[3] = 0x11
	// Bytes 4:6 hold the total length including the trailer, set below.
	packet[6] = 0x20

	packet[12] = byte(now.Nanosecond() / int(10*time.Millisecond))
	packet[13] = byte(now.Second())
	packet[14] = byte(now.Minute())
	packet[15] = byte(now.Hour())
	packet[16] = byte(now.Day())
	packet[17] = byte(now.Month())
	packet[18] = byte(now.Year() % 100)
	packet[19] = byte(now.Year() / 100)

	binary.LittleEndian.PutUint64(packet[20:28], applianceID)

	if encrypt {
		enc, err := sec.AESEncrypt(command)
		if err != nil {
			return nil, err
		}
		packet = append(packet, enc...)
	} else {
		packet = append(packet, command...)
	}
	binary.LittleEndian.PutUint16(packet[4:6], uint16(len(packet)+fingerprintSize))
	return append(packet, sec.MD5Fingerprint(packet)...), nil
}

// DecryptLanResponse extracts the command payload from a v2 packet: it
// strips the 40-byte header and the 16-byte fingerprint and decrypts the
// rest.
func DecryptLanResponse(sec *crypto.Security, packet []byte) ([]byte, error) {
	if len(packet) <= lanHeaderSize+fingerprintSize {
		return nil, midea.NewProtocolError("packet too short for envelope")
	}
	return sec.AESDecrypt(packet[lanHeaderSize : len(packet)-fingerprintSize])
}

// SplitZZPackets splits a buffer of concatenated v2 packets and returns the
// decrypted command payloads. Payloads shorter than the 10-byte command
// header are dropped.
func SplitZZPackets(sec *crypto.Security, buf []byte) ([][]byte, error) {
	var packets [][]byte
	for i := 0; i < len(buf); {
		if i+5 > len(buf) {
			return nil, midea.NewProtocolError("truncated packet header")
		}
		size := int(buf[i+4])
		if size == 0 || i+size > len(buf) {
			return nil, midea.NewProtocolError("invalid packet length")
		}
		data, err := DecryptLanResponse(sec, buf[i:i+size])
		if err != nil {
			return nil, err
		}
		if len(data) > 10 {
			packets = append(packets, data)
		}
		i += size
	}
	return packets, nil
}

// SplitB5Packets splits a buffer of concatenated plaintext (0xAA) packets,
// stripping the 10-byte header of each. Packets not longer than the header
// are dropped.
func SplitB5Packets(buf []byte) ([][]byte, error) {
	var packets [][]byte
	for i := 0; i < len(buf); {
		if i+2 > len(buf) {
			return nil, midea.NewProtocolError("truncated packet header")
		}
		size := int(buf[i+1])
		if size == 0 || i+size+1 > len(buf) {
			return nil, midea.NewProtocolError("invalid packet length")
		}
		data := buf[i : i+size+1]
		if len(data) > 10 {
			packets = append(packets, append([]byte(nil), data[10:]...))
		}
		i += size + 1
	}
	return packets, nil
}
