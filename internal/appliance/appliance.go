package appliance

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ewest/midea/internal/command"
	"github.com/ewest/midea/internal/logging"
)

// Property describes one user-visible appliance setting or reading. Set is
// nil for read-only telemetry.
type Property struct {
	Name string
	Get  func() string
	Set  func(value string) error
}

// Appliance is the state model of one device. Implementations are not safe
// for concurrent use; the device session serializes access.
type Appliance interface {
	// ID returns the appliance id assigned by the cloud.
	ID() string
	// Name returns the user-assigned name, or the id when none is known.
	Name() string
	SetName(name string)
	// Type returns the appliance type tag.
	Type() Tag
	// Model returns a human-readable family name.
	Model() string
	// Online reports whether the last exchange produced a response.
	Online() bool
	// ErrorCode returns the current appliance error code, zero if none.
	ErrorCode() int
	// Capabilities returns the decoded capability map.
	Capabilities() map[string]int

	// RefreshCommand builds the status query for this family.
	RefreshCommand() command.Command
	// ApplyCommand builds the control command carrying the current state.
	ApplyCommand() command.Command
	// CapabilitiesCommand builds the first capability query.
	CapabilitiesCommand() command.Command
	// CapabilitiesMoreCommand builds the follow-up capability query.
	CapabilitiesMoreCommand() command.Command
	// NeedsRefresh reports whether a status query must follow ApplyCommand.
	NeedsRefresh() bool

	// ProcessResponse parses a status payload (without the 10-byte command
	// header). Empty input marks the appliance offline and keeps the last
	// known state.
	ProcessResponse(data []byte)
	// ProcessResponseExt validates and parses the last packet of a
	// multi-packet response.
	ProcessResponseExt(packets [][]byte)
	// ProcessCapabilities parses a capability (B5) payload. Sequence 0
	// replaces the capability map, sequence 1 merges into it.
	ProcessCapabilities(data []byte, sequence int)

	// Properties returns the property schema of this family.
	Properties() []Property
}

// New creates the appliance model for the given type. Unrecognized types
// get an Unknown appliance that ignores responses.
func New(id string, applianceType any) Appliance {
	tag, ok := normalize(applianceType)
	if ok {
		switch tag {
		case TagDehumidifier:
			return NewDehumidifier(id)
		case TagAirConditioner:
			return NewAirConditioner(id)
		}
	}
	logging.Warn("creating unsupported appliance",
		zap.String("id", logging.Redact(id, 4)),
		zap.Any("type", applianceType))
	return &Unknown{base: base{id: id, tag: tag}}
}

// base carries the identity and bookkeeping shared by all families.
type base struct {
	id     string
	name   string
	tag    Tag
	online bool
	err    int

	capabilities map[string]int
	// latest raw status payload, kept for debugging
	latestData []byte
}

func (b *base) ID() string { return b.id }

func (b *base) Name() string {
	if b.name == "" {
		return b.id
	}
	return b.name
}

func (b *base) SetName(name string) { b.name = name }

func (b *base) Type() Tag { return b.tag }

func (b *base) Online() bool { return b.online }

func (b *base) ErrorCode() int { return b.err }

func (b *base) Capabilities() map[string]int { return b.capabilities }

func (b *base) CapabilitiesCommand() command.Command {
	return command.NewCapabilitiesQuery(byte(b.tag))
}

func (b *base) CapabilitiesMoreCommand() command.Command {
	return command.NewCapabilitiesQueryMore(byte(b.tag))
}

// processResponseExt validates the envelope of a multi-packet response and
// feeds the last packet's payload to process.
func (b *base) processResponseExt(packets [][]byte, process func(data []byte)) {
	if len(packets) == 0 {
		return
	}
	selected := packets[len(packets)-1]
	if len(selected) < 10 {
		logging.Warn("invalid extended response",
			zap.String("data", logging.HexDump(selected)))
		return
	}
	switch selected[9] {
	case 2, 3, 4, 5:
		process(selected[10:])
	default:
		logging.Warn("unknown extended response type",
			zap.Uint8("type", selected[9]),
			zap.String("data", logging.HexDump(selected)))
	}
}

// processCapabilities decodes a B5 payload into the capability map. The map
// is replaced on sequence 0 and merged on later sequences, but only once the
// payload proves to be a capability response; a malformed payload keeps the
// previously known capabilities.
func (b *base) processCapabilities(data []byte, sequence int, table map[command.CapabilityID]string, intercept command.InterceptFunc) {
	if len(data) == 0 {
		return
	}
	caps := map[string]int{}
	if sequence != 0 {
		for name, value := range b.capabilities {
			caps[name] = value
		}
	}
	if !command.ParseCapabilities(caps, data, table, intercept) {
		return
	}
	b.capabilities = caps
}

// Unknown is the model for appliance types the library does not implement.
// It accepts responses without parsing them.
type Unknown struct {
	base
}

func (u *Unknown) Model() string { return u.tag.String() }

func (u *Unknown) RefreshCommand() command.Command { return nil }

func (u *Unknown) ApplyCommand() command.Command { return nil }

func (u *Unknown) NeedsRefresh() bool { return false }

func (u *Unknown) ProcessResponse(data []byte) {
	u.online = len(data) > 0
	u.latestData = data
}

func (u *Unknown) ProcessResponseExt(packets [][]byte) {
	u.processResponseExt(packets, u.ProcessResponse)
}

func (u *Unknown) ProcessCapabilities(data []byte, sequence int) {
	u.processCapabilities(data, sequence, nil, nil)
}

func (u *Unknown) Properties() []Property { return nil }

// parseBool accepts the spellings users put on the command line.
func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on", "yes", "y":
		return true, nil
	case "0", "false", "off", "no", "n":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean value %q", value)
}

func boolProperty(name string, get func() bool, set func(bool)) Property {
	return Property{
		Name: name,
		Get:  func() string { return strconv.FormatBool(get()) },
		Set: func(value string) error {
			v, err := parseBool(value)
			if err != nil {
				return err
			}
			set(v)
			return nil
		},
	}
}

func readOnlyProperty(name string, get func() string) Property {
	return Property{Name: name, Get: get}
}
