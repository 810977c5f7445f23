package command

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ewest/midea/internal/logging"
)

// CapabilitiesQuery asks the appliance for its capability (B5) map.
type CapabilitiesQuery struct {
	payload
}

// Finalize computes CRC and checksum; capability queries carry no command id.
func (c *CapabilitiesQuery) Finalize() []byte {
	return c.finalize()
}

// NewCapabilitiesQuery creates the first capabilities query for the given
// appliance type byte.
func NewCapabilitiesQuery(applianceType byte) *CapabilitiesQuery {
	c := &CapabilitiesQuery{}
	c.data = []byte{
		0xAA, 0x0E, applianceType, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x03, 0x03, 0xB5, 0x01, 0x00, 0x00, 0x00,
	}
	return c
}

// NewCapabilitiesQueryMore creates the follow-up query for appliances whose
// capability map spans two responses.
func NewCapabilitiesQueryMore(applianceType byte) *CapabilitiesQuery {
	c := &CapabilitiesQuery{}
	c.data = []byte{
		0xAA, 0x0F, applianceType, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x03, 0x03, 0xB5, 0x01, 0x01, 0x00, 0x00,
	}
	return c
}

// CapabilityID identifies one entry of a B5 response.
type CapabilityID [2]byte

// InterceptFunc lets an appliance family consume a capability entry with an
// anomalous width. It returns the number of extra bytes processed beyond
// the standard 4-byte step, or a negative value when the entry was not
// handled.
type InterceptFunc func(caps map[string]int, data []byte, index int) int

// ParseCapabilities decodes a B5 capability response into caps. Entries are
// (2-byte id, 1-byte length, value); ids missing from table are logged and
// skipped with the standard step. Returns false when data is not a B5
// response, leaving caps untouched.
func ParseCapabilities(caps map[string]int, data []byte, table map[CapabilityID]string, intercept InterceptFunc) bool {
	if len(data) < 2 || data[0] != 0xB5 {
		logging.Debug("not a capabilities response", zap.String("data", logging.HexDump(data)))
		return false
	}
	count := int(data[1])
	i := 2
	for n := 0; n < count && i+3 < len(data); n++ {
		if intercept != nil {
			if step := intercept(caps, data, i); step >= 0 {
				i += step + 4
				continue
			}
		}
		id := CapabilityID{data[i], data[i+1]}
		if name, ok := table[id]; ok {
			caps[name] = int(data[i+3])
		} else {
			logging.Warn("unknown capability",
				zap.String("id", fmt.Sprintf("%02x%02x", id[0], id[1])))
		}
		i += 4
	}
	return true
}
