// Package model defines the shared data types for the Ekiden gateway:
// REST response records, streaming event payloads, and the logical channel
// identifiers used by the subscription layer.
//
// Conventions:
//   - Prices and sizes: integer base units (u64 on the wire), never floats
//   - Timestamps: uint64 milliseconds since Unix epoch, as sent by the gateway
//   - Identifiers: lowercase 0x-prefixed hex strings (20-byte addresses,
//     32-byte public keys, 64-byte signatures)
package model
