package lan

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ewest/midea/internal/appliance"
	"github.com/ewest/midea/internal/crypto"
	"github.com/ewest/midea/internal/logging"
	"github.com/ewest/midea/internal/midea"
	"github.com/ewest/midea/internal/protocol"
)

// DiscoveryMessage is the datagram appliances answer with their encrypted
// descriptor. The firmware expects the trailing signature bytes verbatim.
var DiscoveryMessage = []byte{
	0x5A, 0x5A, 0x01, 0x11, 0x48, 0x00, 0x92, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x7F, 0x75, 0xBD, 0x6B, 0x3E, 0x4F, 0x8B, 0x76,
	0x2E, 0x84, 0x9C, 0x6E, 0x57, 0x8D, 0x65, 0x90,
	0x03, 0x6E, 0x9D, 0x43, 0x42, 0xA5, 0x0F, 0x1F,
	0x56, 0x9E, 0xB8, 0xEC, 0x91, 0x8E, 0x92, 0xE5,
}

// CloudService is the slice of the cloud API the device session needs: the
// transparent relay for appliances out of direct reach, token retrieval for
// the v3 handshake, and the appliance registry.
type CloudService interface {
	ApplianceTransparentSend(applianceID string, data []byte) ([][]byte, error)
	GetToken(udpID string) (token string, key string, err error)
	ListAppliances() ([]midea.ApplianceDetails, error)
}

// Device is one appliance on the local network: its identity as reported by
// the discovery reply plus the session used to talk to it. All exported
// methods serialize on an internal mutex; a Device may be shared between
// goroutines.
type Device struct {
	ApplianceID     string
	Address         string
	Port            int
	SerialNumber    string
	MAC             string
	SSID            string
	Type            string
	Subtype         int
	Version         int
	FirmwareVersion string
	ProtocolVersion string
	UDPVersion      uint32
	RandomKey       []byte
	Reserved        byte
	Flags           byte
	Extra           byte

	// Token and Key authenticate the v3 session. Empty for v2 appliances.
	Token string
	Key   string

	// State is the appliance model fed by responses.
	State appliance.Appliance

	MaxRetries int
	Timeout    time.Duration
	// SleepInterval is the unit of time for retry backoff. Shortened in
	// tests.
	SleepInterval time.Duration

	mu          sync.Mutex
	sec         *crypto.Security
	framer      *protocol.Framer
	decoder     *protocol.Decoder
	conn        net.Conn
	dial        func(address string, timeout time.Duration) (net.Conn, error)
	retries     int
	noResponses int
	online      bool
	lastError   string
}

// NewDevice creates a device from known identity data, e.g. from the
// configuration file. A nil security context gets the default app profile.
func NewDevice(applianceID, address string, port int, applianceType string, sec *crypto.Security) *Device {
	if sec == nil {
		sec = crypto.NewSecurity(midea.DefaultProfile())
	}
	if port == 0 {
		port = midea.DeviceTCPPort
	}
	framer := protocol.NewFramer(sec)
	d := &Device{
		ApplianceID:   applianceID,
		Address:       address,
		Port:          port,
		Type:          applianceType,
		Version:       3,
		State:         appliance.New(applianceID, applianceType),
		MaxRetries:    midea.DefaultRetries,
		Timeout:       midea.DefaultTimeout,
		SleepInterval: midea.DefaultSleepInterval,
		sec:           sec,
		framer:        framer,
		decoder:       protocol.NewDecoder(framer),
	}
	d.dial = func(address string, timeout time.Duration) (net.Conn, error) {
		return net.DialTimeout("tcp", address, timeout)
	}
	return d
}

// NewDeviceFromDiscovery parses a discovery reply into a Device. The reply
// carries the appliance descriptor AES-encrypted inside a v2 envelope; v3
// appliances prepend an 8370 preamble and append an extra trailer.
func NewDeviceFromDiscovery(data []byte, token, key string, sec *crypto.Security) (*Device, error) {
	if sec == nil {
		sec = crypto.NewSecurity(midea.DefaultProfile())
	}
	version := 0
	switch {
	case len(data) >= 2 && bytes.Equal(data[:2], midea.HdrZZ):
		version = 2
	case len(data) >= 2 && bytes.Equal(data[:2], midea.Hdr8370):
		version = 3
	default:
		return nil, midea.NewUnsupportedError("unrecognized discovery reply")
	}
	if len(data) >= 26 && bytes.Equal(data[8:10], midea.HdrZZ) {
		data = data[8 : len(data)-16]
	}
	if len(data) < 40+16+16 {
		return nil, midea.NewProtocolError("discovery reply too short")
	}
	var idb [8]byte
	copy(idb[:6], data[20:26])
	applianceID := strconv.FormatUint(binary.LittleEndian.Uint64(idb[:]), 10)

	reply, err := sec.AESDecrypt(data[40 : len(data)-16])
	if err != nil {
		return nil, err
	}
	if len(reply) < 41 {
		return nil, midea.NewProtocolError("discovery descriptor too short")
	}

	d := NewDevice(applianceID, "", 0, "", sec)
	d.Version = version
	d.Token = token
	d.Key = key
	d.Address = fmt.Sprintf("%d.%d.%d.%d", reply[3], reply[2], reply[1], reply[0])
	d.Port = int(binary.LittleEndian.Uint32(reply[4:8]))
	d.SerialNumber = strings.TrimRight(string(reply[8:40]), "\x00")
	ssidLen := int(reply[40])
	if len(reply) < 41+ssidLen {
		return nil, midea.NewProtocolError("discovery descriptor shorter than SSID length")
	}
	d.SSID = string(reply[41 : 41+ssidLen])

	if err := d.extractType(reply, ssidLen); err != nil {
		return nil, err
	}
	d.extractMAC(reply, ssidLen)
	d.extractExtraData(reply, ssidLen)

	d.State = appliance.New(applianceID, d.Type)
	d.online = true
	logging.Debug("parsed discovery reply", zap.String("device", d.String()))
	return d, nil
}

// extractType reads the appliance type byte, falling back to the type
// embedded in the SSID (midea_a1_xxxx) on older descriptors.
func (d *Device) extractType(reply []byte, ssidLen int) error {
	if len(reply) >= 56+ssidLen && reply[55+ssidLen] != 0 {
		d.Type = fmt.Sprintf("%#02x", reply[55+ssidLen])
		if len(reply) >= 59+ssidLen {
			d.Subtype = int(binary.LittleEndian.Uint16(reply[57+ssidLen : 59+ssidLen]))
		}
		return nil
	}
	parts := strings.Split(d.SSID, "_")
	if len(parts) < 2 {
		return midea.NewProtocolError(fmt.Sprintf("cannot derive appliance type from SSID %q", d.SSID))
	}
	d.Type = strings.ToLower(parts[1])
	d.Subtype = 0
	return nil
}

// extractMAC reads the MAC address, falling back to the serial number
// fragment older descriptors put it in.
func (d *Device) extractMAC(reply []byte, ssidLen int) {
	if len(reply) >= 69+ssidLen {
		d.MAC = hex.EncodeToString(reply[63+ssidLen : 69+ssidLen])
	} else if len(d.SerialNumber) >= 32 {
		d.MAC = d.SerialNumber[16:32]
	}
}

func (d *Device) extractExtraData(reply []byte, ssidLen int) {
	if len(reply) < 46+ssidLen {
		return
	}
	d.Reserved = reply[43+ssidLen]
	d.Flags = reply[44+ssidLen]
	d.Extra = reply[45+ssidLen]
	if len(reply) >= 50+ssidLen {
		d.UDPVersion = binary.LittleEndian.Uint32(reply[46+ssidLen : 50+ssidLen])
	}
	if len(reply) >= 72+ssidLen {
		d.ProtocolVersion = hex.EncodeToString(reply[69+ssidLen : 72+ssidLen])
		if len(reply) >= 75+ssidLen {
			d.FirmwareVersion = fmt.Sprintf("%d.%d.%d",
				reply[72+ssidLen], reply[73+ssidLen], reply[74+ssidLen])
		}
		if len(reply) >= 94+ssidLen {
			d.RandomKey = append([]byte(nil), reply[78+ssidLen:94+ssidLen]...)
		}
	}
}

// Update copies identity and session configuration from another discovery of
// the same appliance, e.g. after its address changed. The session is torn
// down and re-established on the next request.
func (d *Device) Update(other *Device) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Token = other.Token
	d.Key = other.Key
	d.disconnect()
	d.MaxRetries = other.MaxRetries
	d.Address = other.Address
	d.Port = other.Port
	d.FirmwareVersion = other.FirmwareVersion
	d.ProtocolVersion = other.ProtocolVersion
	d.UDPVersion = other.UDPVersion
	d.SerialNumber = other.SerialNumber
	d.MAC = other.MAC
	d.SSID = other.SSID
}

// MatchesCloud reports whether the cloud registry entry describes this
// device.
func (d *Device) MatchesCloud(details midea.ApplianceDetails) bool {
	return details.ID == d.ApplianceID || (details.SerialNumber != "" && details.SerialNumber == d.SerialNumber)
}

// Online reports whether the appliance answered the most recent requests.
func (d *Device) Online() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.online
}

// LastError returns the last transport error message, empty if none.
func (d *Device) LastError() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastError
}

// SupportedVersion reports whether the protocol version can be driven over
// the local network.
func (d *Device) SupportedVersion() bool {
	return d.Version >= 2
}

func (d *Device) String() string {
	return fmt.Sprintf("sn=%s id=%s address=%s version=%d",
		logging.Redact(d.SerialNumber, 8),
		logging.Redact(d.ApplianceID, 4),
		logging.Redact(d.Address, 5),
		d.Version)
}

// UDPID derives the identifier the cloud keys tokens by: the XOR of the two
// SHA-256 halves of the raw appliance id bytes.
func UDPID(data []byte) string {
	digest := sha256.Sum256(data)
	out := make([]byte, 16)
	for i := range out {
		out[i] = digest[i] ^ digest[i+16]
	}
	return hex.EncodeToString(out)
}

// udpIDs returns the UDP id for both byte orders of the numeric appliance
// id; firmware generations disagree on which one was registered.
func (d *Device) udpIDs() []string {
	id, err := strconv.ParseUint(d.ApplianceID, 10, 64)
	if err != nil {
		return nil
	}
	var le, be [8]byte
	binary.LittleEndian.PutUint64(le[:], id)
	binary.BigEndian.PutUint64(be[:], id)
	return []string{UDPID(le[:6]), UDPID(be[2:])}
}
