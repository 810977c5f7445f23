package crypto

import "github.com/sigurn/crc8"

// The appliance protocol uses the Dallas/Maxim CRC8 (polynomial 0x31,
// reflected, zero init and xorout) over the command payload.
var crcTable = crc8.MakeTable(crc8.CRC8_MAXIM)

// CRC8 computes the command payload CRC.
func CRC8(data []byte) byte {
	return crc8.Checksum(data, crcTable)
}

// FrameChecksum computes the trailing additive checksum of a command:
// the two's complement of the byte sum, truncated to 8 bits.
func FrameChecksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return (^sum) + 1
}
