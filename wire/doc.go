// Package wire implements the binary protocol that moves messages across
// the network boundary. Every boundary-crossing unit is a frame:
//
//	[type tag: uint16, little-endian][type-specific body]
//
// repeated for the life of the connection, symmetric in both directions.
// For the header+buffer message family the body is a fixed-size header
// record followed immediately by elementSize x product(declared dimensions)
// raw bytes with no internal length prefix; the receiver recomputes the
// buffer length from the header before reading.
//
// Byte order is little-endian and the framing is unversioned. Both are
// deliberate, documented conventions; the upstream protocol never specified
// them. A decode failure of any kind (unknown tag, truncated header, buffer
// length inconsistent with the header) is a protocol error that aborts the
// session - there is no resync attempt.
package wire
