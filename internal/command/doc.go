// Package command builds and parses the fixed-layout, bit-packed payloads
// exchanged with appliances: status queries, control commands, capability
// (B5) queries and the corresponding responses. Every command is finalized
// with a CRC8 over the body and an additive checksum over the whole frame.
package command
