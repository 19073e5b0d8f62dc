// Package fseq reads and writes FSEQ sequence files, the per-frame channel
// dumps consumed by xLights and Falcon Player controllers.
//
// Two on-disk variants are supported:
//
//   - Version 1: a 28-byte header followed by dense, uncompressed frames.
//   - Version 2: a 32-byte header, an optional zstd or zlib compression block
//     index, optional sparse range metadata, and variable headers. Minor
//     version 1 and later allow up to 4095 compression blocks; 2.0 caps the
//     index at 255.
//
// Codec satisfies codec.Codec so the export pipeline can stay unaware of the
// format. Inspect exposes a read-only header summary for diagnostics.
package fseq
