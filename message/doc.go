// Package message defines the unit of data moving through a reconstruction
// pipeline: an ordered chain of typed payload segments.
//
// A Message is created either by the wire decoder on ingest or by a stage's
// Process call, and is destroyed when consumed by the terminal wire encoder
// or discarded during teardown. Messages have exactly one owner at any
// instant: their creator, a queue holding them, or the stage worker
// currently processing them. Ownership transfers atomically on enqueue and
// dequeue; the in-flight marker makes a stale handle fail loudly instead of
// racing (see Message.BeginTransfer).
//
// The canonical message family is "header segment followed by data segment":
// an AcquisitionHeader or ImageHeader record, then a SampleData buffer whose
// length is elementSize x product(declared dimensions). Branching a message
// into two independent downstream paths is unsupported; there is no clone
// operation.
package message
