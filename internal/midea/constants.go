package midea

import "time"

// Message types carried in the low nibble of byte 5 of an 8370 frame.
const (
	MsgTypeHandshakeRequest  = 0x0
	MsgTypeHandshakeResponse = 0x1
	MsgTypeEncryptedResponse = 0x3
	MsgTypeEncryptedRequest  = 0x6
	MsgTypeTransparent       = 0xF
)

// Frame magic bytes.
var (
	// Hdr8370 opens a v3 frame.
	Hdr8370 = []byte{0x83, 0x70}
	// HdrZZ opens a legacy v2 frame and the discovery broadcast.
	HdrZZ = []byte{0x5A, 0x5A}
)

// DiscoveryPorts are the UDP ports appliances listen on for the discovery
// broadcast. 20086 is only used by some older firmware.
var DiscoveryPorts = []int{6445, 20086}

// DeviceTCPPort is the default TCP port for direct appliance access.
const DeviceTCPPort = 6444

// Appliance type tags.
const (
	ApplianceTypeDehumidifier = "0xa1"
	ApplianceTypeAircon       = "0xac"
)

// Target temperature range accepted by air conditioners, degrees Celsius.
const (
	ACMinTemperature = 16
	ACMaxTemperature = 31
)

// Dehumidifier error codes with a known meaning.
const (
	ErrorCodeBucketRemoved = 37
	ErrorCodeBucketFull    = 38
)

// Retry and timeout defaults shared by the LAN and cloud clients.
const (
	DefaultRetries       = 3
	DefaultTimeout       = 2 * time.Second
	DefaultCloudTimeout  = 9 * time.Second
	DefaultSleepInterval = time.Second
)

// AppProfile describes the cloud identity of one of the vendor mobile apps.
// Any of them can be used to access the cloud API; they differ in app key,
// API endpoint and, for the newer app, in using the proxied (HMAC-signed)
// request format.
type AppProfile struct {
	Name    string
	AppKey  string
	AppID   int
	APIURL  string
	SignKey string
	IoTKey  string
	HMACKey string
	// Proxied selects the proxied API variant ("v5") or is empty for the
	// legacy request format.
	Proxied string
}

// SupportedApps lists the known app identities, keyed by name.
var SupportedApps = map[string]AppProfile{
	"NetHome Plus": {
		Name:    "NetHome Plus",
		AppKey:  "3742e9e5842d4ad59c2db887e12449f9",
		AppID:   1017,
		APIURL:  "https://mapp.appsmb.com",
		SignKey: "xhdiwjnchekd4d512chdjx5d8e4c394D2D7S",
	},
	"Midea Air": {
		Name:    "Midea Air",
		AppKey:  "ff0cf6f5f0c3471de36341cab3f7a9af",
		AppID:   1117,
		APIURL:  "https://mapp.appsmb.com",
		SignKey: "xhdiwjnchekd4d512chdjx5d8e4c394D2D7S",
	},
	"Ariston Clima": {
		Name:    "Ariston Clima",
		AppKey:  "434a209a5ce141c3b726de067835d7f0",
		AppID:   1005,
		APIURL:  "https://mapp.appsmb.com",
		SignKey: "xhdiwjnchekd4d512chdjx5d8e4c394D2D7S",
	},
	"MSmartHome": {
		Name:    "MSmartHome",
		AppKey:  "ac21b9f9cbfe4ca5a88562ef25e2b768",
		AppID:   1010,
		APIURL:  "https://mp-prod.appsmb.com/mas/v5/app/proxy?alias=",
		SignKey: "xhdiwjnchekd4d512chdjx5d8e4c394D2D7S",
		IoTKey:  "meicloud",
		HMACKey: "PROD_VnoClJI9aikS8dyy",
		Proxied: "v5",
	},
}

// DefaultApp is the profile used when the configuration does not select one.
const DefaultApp = "NetHome Plus"

// DefaultProfile returns the default app profile.
func DefaultProfile() AppProfile {
	return SupportedApps[DefaultApp]
}
