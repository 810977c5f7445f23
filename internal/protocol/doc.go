// Package protocol implements the two LAN framings spoken by the
// appliances: the encrypted v3 "8370" transport with its session key and
// message counters, and the legacy v2 "ZZ" envelope with its MD5
// fingerprint trailer.
package protocol
