// Package format implements the on-disk layout of checkpoint records.
//
// The layout follows born's .born v2 container, specialised for classifier
// checkpoints:
//
//	Fixed header (64 bytes):
//	  0x00 [4 bytes: Magic "FFNC"]
//	  0x04 [4 bytes: Version (uint32 LE)]
//	  0x08 [4 bytes: Flags (uint32 LE)]
//	  0x0C [4 bytes: Reserved]
//	  0x10 [8 bytes: Header size (uint64 LE)]
//	  0x18 [8 bytes: Data size (uint64 LE)]
//	  0x20 [32 bytes: SHA-256 of the data section]
//	[Header: JSON, architecture + parameter table]
//	[Zero padding to a 64-byte boundary]
//	[Data: parameter arrays, little-endian, sorted by name]
//
// Parameters are always written as float32, so values round-trip bit for bit.
// The reader also accepts float16 arrays and widens them exactly.
//
// Example usage:
//
//	rec := &format.Record{Descriptor: desc, Parameters: arrays}
//	if err := format.WriteFile("model.ckpt", rec); err != nil {
//	    log.Fatal(err)
//	}
//
//	rec, err := format.ReadFile("model.ckpt")
//	if errors.Is(err, format.ErrNotFound) {
//	    ...
//	}
package format
