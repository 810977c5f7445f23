package command

import "github.com/ewest/midea/internal/crypto"

// Command is a payload builder. Finalize computes the trailing CRC8 and
// checksum and returns the bytes to send. Finalizing a sequenced command
// twice produces two distinct command ids.
type Command interface {
	Finalize() []byte
}

// payload is the shared finalization of all commands: CRC8 over the body
// (bytes 10 to length-2) goes into the penultimate byte, the additive
// checksum over everything after the sync byte goes into the last byte.
type payload struct {
	data []byte
}

func (p *payload) finalize() []byte {
	n := len(p.data)
	p.data[n-2] = crypto.CRC8(p.data[10 : n-2])
	p.data[n-1] = crypto.FrameChecksum(p.data[1 : n-1])
	return append([]byte(nil), p.data...)
}

// sequenced adds the per-appliance command id at index 30.
type sequenced struct {
	payload
	seq *Sequence
}

const sequenceIndex = 30

// Finalize stamps the next command id and computes CRC and checksum.
func (c *sequenced) Finalize() []byte {
	c.data[sequenceIndex] = c.seq.Next()
	return c.finalize()
}

func (p *payload) setBit(index int, mask byte, on bool) {
	p.data[index] &^= mask
	if on {
		p.data[index] |= mask
	}
}

func (p *payload) setBits(index int, mask byte, value byte) {
	p.data[index] &^= mask
	p.data[index] |= value & mask
}
