// Package discovery finds Midea appliances by broadcasting the discovery
// datagram on the local network and collecting the encrypted descriptor
// replies. With a cloud client the scan also matches discovered appliances
// against the account registry, names them and reports registered appliances
// that did not answer.
package discovery
