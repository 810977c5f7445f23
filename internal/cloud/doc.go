// Package cloud implements the client for the Midea cloud API: account
// login for both the legacy and the proxied (HMAC-signed) request formats,
// the appliance registry, token retrieval for the local v3 handshake and the
// transparent relay that forwards LAN packets through the cloud.
package cloud
