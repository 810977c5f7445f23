// Package crypto implements the cryptographic primitives of the appliance
// protocol: the CRC8 and additive checksum that finalize commands, the
// AES-ECB/CBC ciphers used by the v2 and v3 transports, TCP session key
// derivation, and the request signing and password hashing required by the
// cloud API.
package crypto
