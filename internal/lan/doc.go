// Package lan talks to Midea appliances on the local network. A Device
// carries the identity learned from a discovery reply and one TCP session:
// the v3 handshake and encrypted framing, or the legacy v2 path for older
// firmware. Requests can alternatively be relayed through the cloud API,
// abstracted behind CloudService, so the same refresh/apply/identify logic
// drives both transports.
package lan
