package appliance

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ewest/midea/internal/midea"
)

// Tag is the one-byte appliance type identifier. The cloud API and the
// discovery protocol spell it several ways ("a1", "0xa1", 161 and the
// signed form -95 all name the dehumidifier); Tag is the canonical form.
type Tag byte

// Appliance type tags this library understands.
const (
	TagDehumidifier   Tag = 0xA1
	TagAirConditioner Tag = 0xAC
)

// String returns the hex spelling used across the protocol, e.g. "0xa1".
func (t Tag) String() string {
	return fmt.Sprintf("%#02x", byte(t))
}

// ParseTag normalizes any spelling of an appliance type: hex with or
// without the 0x prefix, and signed or unsigned decimal.
func ParseTag(s string) (Tag, error) {
	lower := strings.ToLower(strings.TrimSpace(s))
	if v, err := strconv.ParseInt(lower, 10, 16); err == nil {
		return FromInt(int(v)), nil
	}
	hex := strings.TrimPrefix(lower, "0x")
	if v, err := strconv.ParseUint(hex, 16, 8); err == nil {
		return Tag(v), nil
	}
	return 0, midea.NewUnsupportedError(fmt.Sprintf("invalid appliance type %q", s))
}

// FromInt converts a numeric appliance type, accepting the signed byte
// form some APIs report.
func FromInt(v int) Tag {
	return Tag(byte(v))
}

func normalize(v any) (Tag, bool) {
	switch t := v.(type) {
	case Tag:
		return t, true
	case byte:
		return Tag(t), true
	case int:
		return FromInt(t), true
	case string:
		tag, err := ParseTag(t)
		return tag, err == nil
	default:
		return 0, false
	}
}

// Same reports whether two appliance type spellings name the same type.
func Same(a, b any) bool {
	ta, ok := normalize(a)
	if !ok {
		return false
	}
	tb, ok := normalize(b)
	if !ok {
		return false
	}
	return ta == tb
}

// Supported reports whether the library models this appliance type.
func Supported(v any) bool {
	tag, ok := normalize(v)
	return ok && (tag == TagDehumidifier || tag == TagAirConditioner)
}
