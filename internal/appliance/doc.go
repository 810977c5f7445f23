// Package appliance models the supported appliance families. An Appliance
// holds the last known state, builds the commands that query or change it,
// and parses status and capability responses. Setters validate or clamp
// values before they reach the wire.
package appliance
