package vault

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Storage layout per key file, all integers little-endian (spec §4.B, §6):
//
//	magic(4) || version(1) || key_type(1) || salt(16) || nonce(12) ||
//	sealed_len(4) || sealed_bytes || public_len(2) || public_bytes ||
//	created_at(8)
var magic = [4]byte{0x56, 0x4C, 0x54, 0x31} // "VLT1"

const fileVersion = 0x01

// keyType identifies which of the two long-term keypairs a file holds.
type keyType byte

const (
	keyTypeSigning  keyType = 0x01
	keyTypeExchange keyType = 0x02
)

const (
	saltLen  = 16
	nonceLen = 12
)

// keyRecord is the decoded form of one on-disk key file.
type keyRecord struct {
	KeyType   keyType
	Salt      [saltLen]byte
	Nonce     [nonceLen]byte
	Sealed    []byte
	Public    []byte
	CreatedAt int64
}

// ErrBadMagic is returned when a file does not begin with the VLT1 magic.
var ErrBadMagic = errors.New("vault: bad magic")

// ErrUnsupportedVersion is returned for a version byte this build does not
// understand.
var ErrUnsupportedVersion = errors.New("vault: unsupported version")

func encodeKeyRecord(r keyRecord) []byte {
	buf := &bytes.Buffer{}
	buf.Write(magic[:])
	buf.WriteByte(fileVersion)
	buf.WriteByte(byte(r.KeyType))
	buf.Write(r.Salt[:])
	buf.Write(r.Nonce[:])

	var sealedLen [4]byte
	binary.LittleEndian.PutUint32(sealedLen[:], uint32(len(r.Sealed)))
	buf.Write(sealedLen[:])
	buf.Write(r.Sealed)

	var pubLen [2]byte
	binary.LittleEndian.PutUint16(pubLen[:], uint16(len(r.Public)))
	buf.Write(pubLen[:])
	buf.Write(r.Public)

	var created [8]byte
	binary.LittleEndian.PutUint64(created[:], uint64(r.CreatedAt))
	buf.Write(created[:])

	return buf.Bytes()
}

func decodeKeyRecord(b []byte) (keyRecord, error) {
	var r keyRecord
	if len(b) < 4+1+1+saltLen+nonceLen+4 {
		return r, fmt.Errorf("vault: truncated key file")
	}
	if !bytes.Equal(b[0:4], magic[:]) {
		return r, ErrBadMagic
	}
	if b[4] != fileVersion {
		return r, ErrUnsupportedVersion
	}
	r.KeyType = keyType(b[5])
	off := 6
	copy(r.Salt[:], b[off:off+saltLen])
	off += saltLen
	copy(r.Nonce[:], b[off:off+nonceLen])
	off += nonceLen

	sealedLen := int(binary.LittleEndian.Uint32(b[off : off+4]))
	off += 4
	if len(b) < off+sealedLen+2 {
		return r, fmt.Errorf("vault: truncated sealed section")
	}
	r.Sealed = append([]byte{}, b[off:off+sealedLen]...)
	off += sealedLen

	pubLen := int(binary.LittleEndian.Uint16(b[off : off+2]))
	off += 2
	if len(b) < off+pubLen+8 {
		return r, fmt.Errorf("vault: truncated public section")
	}
	r.Public = append([]byte{}, b[off:off+pubLen]...)
	off += pubLen

	r.CreatedAt = int64(binary.LittleEndian.Uint64(b[off : off+8]))
	return r, nil
}
