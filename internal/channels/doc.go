// Package channels describes byte windows into a sequence frame and the two
// ways fseqgen selects them.
//
// A Range is a half-open window (offset, length) into the per-channel byte
// array of one frame. Exports apply ranges in listed order and concatenate the
// selected bytes into a new contiguous frame, so a list of ranges fully
// defines the destination channel layout. Manual selection comes from the
// operator (start plus count); controller selection comes from a topology
// record whose 1-based start channel is converted to a 0-based offset here.
//
// An empty range list is meaningful: it asks for an unrestricted full copy of
// the source.
package channels
