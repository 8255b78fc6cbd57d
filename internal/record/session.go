package record

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"p2pmsg/internal/crypto"
	"p2pmsg/internal/domain"
	"p2pmsg/internal/wire"
)

var (
	roleTagInitiator = [4]byte{0x00, 0x00, 0x00, 0x01}
	roleTagResponder = [4]byte{0x00, 0x00, 0x00, 0x02}
)

// clockSkewBuckets bounds how far the receiver's minute bucket may drift
// from the sender's when reconstructing the AEAD associated data (spec
// §9, design note i).
const clockSkewBuckets = 5

// Session is the per-connection AEAD record-layer state that exists once
// a handshake.Engine reaches Established. It owns independent send/receive
// nonce counters, a replay window, and the session key, and mutates all of
// them under its own lock so a caller may seal and open concurrently.
type Session struct {
	mu sync.Mutex

	role            domain.Role
	ownFingerprint  domain.Fingerprint
	peerFingerprint domain.Fingerprint
	ownRoleTag      [4]byte
	peerRoleTag     [4]byte

	key []byte

	sendCounter uint64
	recvWindow  *replayWindow

	startedAt          time.Time
	messagesSinceRekey uint64
	rekeyThreshold     uint64
	rekeyTime          time.Duration

	failed bool

	pendingRekeyPriv domain.ExchangePrivate
	pendingRekeyPub  domain.ExchangePublic
	rekeying         bool
}

// New wraps a freshly derived session key into a Session for role, ready
// to seal and open record-layer frames.
func New(role domain.Role, sessionKey []byte, ownFP, peerFP domain.Fingerprint, replayWindowSize int, rekeyThreshold uint64, rekeyTime time.Duration, now time.Time) *Session {
	s := &Session{
		role:            role,
		ownFingerprint:  ownFP,
		peerFingerprint: peerFP,
		key:             append([]byte{}, sessionKey...),
		recvWindow:      newReplayWindow(replayWindowSize),
		startedAt:       now,
		rekeyThreshold:  rekeyThreshold,
		rekeyTime:       rekeyTime,
	}
	if role == domain.RoleInitiator {
		s.ownRoleTag, s.peerRoleTag = roleTagInitiator, roleTagResponder
	} else {
		s.ownRoleTag, s.peerRoleTag = roleTagResponder, roleTagInitiator
	}
	return s
}

func nonceFor(counter uint64, roleTag [4]byte) []byte {
	n := make([]byte, 12)
	binary.LittleEndian.PutUint64(n[0:8], counter)
	copy(n[8:12], roleTag[:])
	return n
}

// Seal AEAD-protects plaintext as a record-layer frame of type t, using
// the next send counter. The returned frame is ready to write to the
// wire.
func (s *Session) Seal(t wire.Type, plaintext []byte, now time.Time) (wire.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed {
		return wire.Frame{}, &domain.ProtocolError{Kind: domain.ProtocolAuthFail, Err: fmt.Errorf("session already failed")}
	}

	nonce := nonceFor(s.sendCounter, s.ownRoleTag)
	aad := wire.BuildAAD(t, s.ownFingerprint, now.Unix())

	ct, err := crypto.Seal(s.key, nonce, aad, plaintext)
	if err != nil {
		s.failed = true
		return wire.Frame{}, &domain.ProtocolError{Kind: domain.ProtocolAuthFail, Err: err}
	}
	s.sendCounter++
	s.messagesSinceRekey++

	var sp wire.SealedPayload
	sp.Version = wire.RecordVersion
	copy(sp.Nonce[:], nonce)
	sp.CipherText = ct
	return wire.Frame{Type: t, Payload: wire.EncodeSealed(sp)}, nil
}

// Open authenticates and decrypts an inbound record-layer frame. On any
// failure — role-tag spoofing, replay, unknown version, AEAD
// authentication failure — the session is marked failed and every
// subsequent call also fails; the caller must tear down the connection
// (spec §4.E fail-closed policy).
func (s *Session) Open(f wire.Frame, now time.Time) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed {
		return nil, &domain.ProtocolError{Kind: domain.ProtocolAuthFail, Err: fmt.Errorf("session already failed")}
	}

	sp, err := wire.DecodeSealed(f.Payload)
	if err != nil {
		s.failed = true
		return nil, &domain.ProtocolError{Kind: domain.ProtocolUnknownVersion, Err: err}
	}

	var roleTag [4]byte
	copy(roleTag[:], sp.Nonce[8:12])
	if roleTag == s.ownRoleTag {
		s.failed = true
		return nil, &domain.ProtocolError{Kind: domain.ProtocolAuthFail, Err: fmt.Errorf("nonce carries our own role tag; spoofed direction")}
	}
	if roleTag != s.peerRoleTag {
		s.failed = true
		return nil, &domain.ProtocolError{Kind: domain.ProtocolAuthFail, Err: fmt.Errorf("nonce carries an unrecognized role tag")}
	}

	counter := binary.LittleEndian.Uint64(sp.Nonce[0:8])
	if !s.recvWindow.accept(counter) {
		s.failed = true
		return nil, &domain.ProtocolError{Kind: domain.ProtocolReplay, Err: fmt.Errorf("counter %d rejected by replay window", counter)}
	}

	pt, err := s.openWithSkewTolerance(f.Type, sp, now)
	if err != nil {
		s.failed = true
		return nil, &domain.ProtocolError{Kind: domain.ProtocolAuthFail, Err: err}
	}
	return pt, nil
}

// openWithSkewTolerance tries the minute buckets from clockSkewBuckets
// before the receiver's own minute to clockSkewBuckets after it, in that
// order, and accepts the first that authenticates, matching spec §9 design
// note (i): the sender's AAD timestamp is accepted if it falls within a
// ±5-minute window of the receiver's clock.
func (s *Session) openWithSkewTolerance(t wire.Type, sp wire.SealedPayload, now time.Time) ([]byte, error) {
	base := now.Unix()
	for offset := -clockSkewBuckets; offset <= clockSkewBuckets; offset++ {
		aad := wire.BuildAAD(t, s.peerFingerprint, base+int64(offset)*60)
		if pt, err := crypto.Open(s.key, sp.Nonce[:], aad, sp.CipherText); err == nil {
			return pt, nil
		}
	}
	return nil, crypto.ErrOpenFailed
}

// NeedsRekey reports whether this session has sent enough messages or
// aged enough to schedule a rekey (spec §4.E). It returns false while a
// rekey is already pending so callers on the send path and the heartbeat
// ticker don't both schedule one.
func (s *Session) NeedsRekey(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rekeying {
		return false
	}
	return s.messagesSinceRekey >= s.rekeyThreshold || now.Sub(s.startedAt) >= s.rekeyTime
}

// BeginRekey generates a fresh ephemeral keypair and returns a
// REKEY_REQUEST frame sealed under the current session key.
func (s *Session) BeginRekey(now time.Time) (wire.Frame, error) {
	priv, pub, err := crypto.GenerateExchangeKey()
	if err != nil {
		return wire.Frame{}, err
	}

	s.mu.Lock()
	s.pendingRekeyPriv, s.pendingRekeyPub = priv, pub
	s.rekeying = true
	s.mu.Unlock()

	return s.Seal(wire.TypeRekeyRequest, pub[:], now)
}

// RespondRekey is called after Open returns a REKEY_REQUEST frame whose
// plaintext is the peer's fresh ephemeral public key. It derives the new
// session key, emits a REKEY_ACK sealed under the *old* key, then
// switches this session over to the new key and resets both counters and
// the replay window (spec §4.E: "the switch is marked by the REKEY_ACK
// frame itself").
func (s *Session) RespondRekey(peerEphPubBytes []byte, now time.Time) (wire.Frame, error) {
	peerPub, err := domain.ParseExchangePublic(peerEphPubBytes)
	if err != nil {
		return wire.Frame{}, &domain.ProtocolError{Kind: domain.ProtocolBadFrame, Err: fmt.Errorf("REKEY_REQUEST: %w", err)}
	}

	priv, pub, err := crypto.GenerateExchangeKey()
	if err != nil {
		return wire.Frame{}, err
	}

	newKey, err := s.deriveRekeyedKey(priv, peerPub)
	if err != nil {
		return wire.Frame{}, err
	}

	ack, err := s.Seal(wire.TypeRekeyAck, pub[:], now)
	if err != nil {
		return wire.Frame{}, err
	}

	s.mu.Lock()
	s.switchKey(newKey, now)
	s.mu.Unlock()
	return ack, nil
}

// CompleteRekey is called after Open returns a REKEY_ACK frame whose
// plaintext is the peer's fresh ephemeral public key, by the side that
// called BeginRekey. It derives the same new session key and switches
// over.
func (s *Session) CompleteRekey(peerEphPubBytes []byte, now time.Time) error {
	peerPub, err := domain.ParseExchangePublic(peerEphPubBytes)
	if err != nil {
		return &domain.ProtocolError{Kind: domain.ProtocolBadFrame, Err: fmt.Errorf("REKEY_ACK: %w", err)}
	}

	s.mu.Lock()
	if !s.rekeying {
		s.mu.Unlock()
		return &domain.ProtocolError{Kind: domain.ProtocolUnexpectedState, Err: fmt.Errorf("REKEY_ACK received without a pending rekey")}
	}
	priv := s.pendingRekeyPriv
	s.mu.Unlock()

	newKey, err := s.deriveRekeyedKey(priv, peerPub)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.switchKey(newKey, now)
	s.mu.Unlock()
	return nil
}

// deriveRekeyedKey computes HKDF(shared_new, salt=old_session_key,
// info="p2pmsg v1 rekey", 32) per spec §4.E.
func (s *Session) deriveRekeyedKey(ownPriv domain.ExchangePrivate, peerPub domain.ExchangePublic) ([]byte, error) {
	shared, err := crypto.ECDH(ownPriv, peerPub)
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(shared[:])

	s.mu.Lock()
	oldKey := append([]byte{}, s.key...)
	s.mu.Unlock()
	defer crypto.Zero(oldKey)

	return crypto.HKDF(shared[:], oldKey, []byte("p2pmsg v1 rekey"), 32)
}

// switchKey must be called with s.mu held.
func (s *Session) switchKey(newKey []byte, now time.Time) {
	crypto.Zero(s.key)
	s.key = newKey
	s.sendCounter = 0
	s.recvWindow.reset()
	s.messagesSinceRekey = 0
	s.startedAt = now
	s.rekeying = false
}

// Failed reports whether this session has torn itself down after an
// authentication or protocol failure.
func (s *Session) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}
