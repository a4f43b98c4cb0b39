// Package protocol implements the overlay wire protocol.
//
// Every datagram starts with a 4 byte magic number followed by a fixed-size public header that
// relays can read without keys. The private header and body follow; they are either plaintext
// (unarmed) or encrypted with the session keys shared by sender and recipient (armed).
//
// # Frame Layout
//
//	magic:i32 | hopCount:u8 | armed:u8 | networkId:i32 | nonce:24 | recipient:32 | sender:32 | pow:i32
//	type:u8 | armedLength:u16 | body
//
// All integers are big-endian. Addresses are written as port:u16 followed by a 16 byte IPv6 or
// IPv4-mapped address.
//
// # Message Types
//
//   - Acknowledgement: answers a Hello, optionally with the observed endpoint of the sender
//   - Application: opaque user payload
//   - Discovery: announces a node to a super peer
//   - Unite: tells a node the public endpoint of another node for hole punching
//   - Hello: keeps a path alive; with children time > 0 a signed join request
//
// # Read States
//
// Decode parses magic number and public header and returns an UnarmedMessage or an ArmedMessage.
// UnarmedMessage.Read and ArmedMessage.Disarm produce the typed message. Outbound messages go the
// other way through Unarmed and UnarmedMessage.Arm.
//
// Arming encrypts the private header with the public header (without hop count) as associated
// data, then the first armedLength body bytes without associated data under the same nonce.
// Relays can therefore increment the hop count of armed frames in place.
//
// # Ownership
//
// Messages are values. Decoded messages alias the frame they were decoded from, and application
// payloads are kept without copying; a frame must not be reused while messages decoded from it
// are in use.
package protocol
