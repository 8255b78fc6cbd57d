package wire

import (
	"encoding/binary"
	"fmt"

	"p2pmsg/internal/domain"
)

// RecordVersion is the version byte inside every AEAD-protected payload
// (spec §4.C, §6). A frame carrying any other value is rejected and the
// connection is closed.
const RecordVersion byte = 0x01

// HelloMessage is the initiator's first handshake message (spec §4.D
// step 1): identity_pub ‖ exchange_pub_ephemeral ‖ signature.
type HelloMessage struct {
	IdentityPub domain.SigningPublic
	ExchangePub domain.ExchangePublic
	Signature   []byte // 64 bytes
}

// signedTranscript returns the bytes the sender signs: identity_pub ‖
// exchange_pub_ephemeral ‖ extra ‖ label.
func signedTranscript(identityPub domain.SigningPublic, exchangePub domain.ExchangePublic, extra []byte, label string) []byte {
	out := make([]byte, 0, 32+32+len(extra)+len(label))
	out = append(out, identityPub[:]...)
	out = append(out, exchangePub[:]...)
	out = append(out, extra...)
	out = append(out, []byte(label)...)
	return out
}

// HelloTranscript returns the bytes HELLO's signature covers.
func HelloTranscript(identityPub domain.SigningPublic, exchangePub domain.ExchangePublic) []byte {
	return signedTranscript(identityPub, exchangePub, nil, "HELLO")
}

// EncodeHello serializes m.
func EncodeHello(m HelloMessage) []byte {
	out := make([]byte, 0, 32+32+64)
	out = append(out, m.IdentityPub[:]...)
	out = append(out, m.ExchangePub[:]...)
	out = append(out, m.Signature...)
	return out
}

// DecodeHello parses a HELLO payload, rejecting malformed key/signature
// lengths up front (spec §4.D authentication rules).
func DecodeHello(b []byte) (HelloMessage, error) {
	if len(b) != 32+32+64 {
		return HelloMessage{}, fmt.Errorf("wire: bad HELLO length %d", len(b))
	}
	var m HelloMessage
	copy(m.IdentityPub[:], b[0:32])
	copy(m.ExchangePub[:], b[32:64])
	m.Signature = append([]byte{}, b[64:128]...)
	return m, nil
}

// HelloAckMessage is the responder's reply (spec §4.D step 2): identity_pub
// ‖ exchange_pub_ephemeral ‖ challenge(32) ‖ signature.
type HelloAckMessage struct {
	IdentityPub domain.SigningPublic
	ExchangePub domain.ExchangePublic
	Challenge   [32]byte
	Signature   []byte // 64 bytes
}

// HelloAckTranscript returns the bytes HELLO_ACK's signature covers.
func HelloAckTranscript(identityPub domain.SigningPublic, exchangePub domain.ExchangePublic, challenge [32]byte) []byte {
	return signedTranscript(identityPub, exchangePub, challenge[:], "ACK")
}

// EncodeHelloAck serializes m.
func EncodeHelloAck(m HelloAckMessage) []byte {
	out := make([]byte, 0, 32+32+32+64)
	out = append(out, m.IdentityPub[:]...)
	out = append(out, m.ExchangePub[:]...)
	out = append(out, m.Challenge[:]...)
	out = append(out, m.Signature...)
	return out
}

// DecodeHelloAck parses a HELLO_ACK payload.
func DecodeHelloAck(b []byte) (HelloAckMessage, error) {
	if len(b) != 32+32+32+64 {
		return HelloAckMessage{}, fmt.Errorf("wire: bad HELLO_ACK length %d", len(b))
	}
	var m HelloAckMessage
	copy(m.IdentityPub[:], b[0:32])
	copy(m.ExchangePub[:], b[32:64])
	copy(m.Challenge[:], b[64:96])
	m.Signature = append([]byte{}, b[96:160]...)
	return m, nil
}

// SealedPayload is the common shape of every AEAD-protected frame payload
// (CHALLENGE_RESPONSE, READY, TEXT, FILE, HEARTBEAT, REKEY_*): version(1)
// || nonce(12) || ciphertext||tag.
type SealedPayload struct {
	Version    byte
	Nonce      [12]byte
	CipherText []byte // ciphertext || 16-byte tag
}

// EncodeSealed serializes p.
func EncodeSealed(p SealedPayload) []byte {
	out := make([]byte, 0, 1+12+len(p.CipherText))
	out = append(out, p.Version)
	out = append(out, p.Nonce[:]...)
	out = append(out, p.CipherText...)
	return out
}

// ErrUnknownVersion is returned by DecodeSealed when the version byte does
// not match RecordVersion (spec §6: "unknown version -> disconnect").
var ErrUnknownVersion = fmt.Errorf("wire: unknown record version")

// DecodeSealed parses a sealed payload.
func DecodeSealed(b []byte) (SealedPayload, error) {
	if len(b) < 1+12 {
		return SealedPayload{}, fmt.Errorf("wire: truncated sealed payload")
	}
	var p SealedPayload
	p.Version = b[0]
	if p.Version != RecordVersion {
		return SealedPayload{}, ErrUnknownVersion
	}
	copy(p.Nonce[:], b[1:13])
	p.CipherText = append([]byte{}, b[13:]...)
	return p, nil
}

// EncodeFilePayload serializes a FILE frame's plaintext body: name_len(2,
// big-endian) || name || content. It is sealed by the record layer the
// same way a TEXT body is; the filename travels inside the AEAD envelope
// rather than in the frame header so it is never visible on the wire.
func EncodeFilePayload(name string, content []byte) []byte {
	out := make([]byte, 0, 2+len(name)+len(content))
	var nl [2]byte
	binary.BigEndian.PutUint16(nl[:], uint16(len(name)))
	out = append(out, nl[:]...)
	out = append(out, []byte(name)...)
	out = append(out, content...)
	return out
}

// DecodeFilePayload parses a FILE frame's plaintext body.
func DecodeFilePayload(b []byte) (name string, content []byte, err error) {
	if len(b) < 2 {
		return "", nil, fmt.Errorf("wire: truncated file payload")
	}
	nameLen := int(binary.BigEndian.Uint16(b[0:2]))
	if len(b) < 2+nameLen {
		return "", nil, fmt.Errorf("wire: truncated file name")
	}
	return string(b[2 : 2+nameLen]), b[2+nameLen:], nil
}

// BuildAAD returns the AEAD associated data per spec §4.C: type(1) ||
// sender_fingerprint(32) || timestamp_minute(8), where timestamp_minute is
// Unix-seconds floored to 60.
func BuildAAD(t Type, sender domain.Fingerprint, unixSeconds int64) []byte {
	minute := (unixSeconds / 60) * 60
	out := make([]byte, 0, 1+32+8)
	out = append(out, byte(t))
	out = append(out, sender[:]...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(minute))
	out = append(out, ts[:]...)
	return out
}
