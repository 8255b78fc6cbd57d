// Package wire implements the length-prefixed frame codec and the typed
// message catalogue of spec §4.C: a 4-byte big-endian length, a 1-byte
// type, and a payload capped at 10 MiB. It has no teacher analogue — the
// teacher talks JSON-over-HTTP to a relay — so the encode/decode loop
// follows the general Go idiom every framed-TCP repo in the corpus uses
// (encoding/binary.BigEndian, io.ReadFull), while message structs keep the
// teacher's domain-typed-fields-over-raw-bytes style.
package wire
