package handshake

import (
	"bytes"
	"fmt"
	"time"

	"p2pmsg/internal/crypto"
	"p2pmsg/internal/domain"
	"p2pmsg/internal/wire"
)

// DefaultTimeout is the hard deadline spec §4.D places on a handshake; the
// caller (internal/connection) is responsible for enforcing it, typically
// via context.WithTimeout around the read loop that feeds Step.
const DefaultTimeout = 10 * time.Second

// PeerStore is the slice of domain.VaultStore the handshake needs for
// trust-on-first-use pinning.
type PeerStore interface {
	LoadPeer(fp domain.Fingerprint) (domain.PeerRecord, bool, error)
	SavePeer(rec domain.PeerRecord) error
}

// Engine drives one side of the handshake state machine. It is not safe
// for concurrent use; a connection owns exactly one Engine for its
// lifetime, fed by a single reader goroutine.
type Engine struct {
	role  domain.Role
	id    domain.Identity
	peers PeerStore

	state State

	ownEphPriv domain.ExchangePrivate
	ownEphPub  domain.ExchangePublic

	peerIdentityPub domain.SigningPublic
	peerEphPub      domain.ExchangePublic
	peerFingerprint domain.Fingerprint
	firstContact    bool

	challenge  [32]byte
	sessionKey []byte
}

// New returns an idle Engine for id, authenticating peers against peers.
func New(id domain.Identity, peers PeerStore) *Engine {
	return &Engine{id: id, peers: peers, state: Idle}
}

// State returns the engine's current state.
func (e *Engine) State() State { return e.state }

// SessionKey returns the derived 32-byte session key. Only valid once
// State() == Established.
func (e *Engine) SessionKey() []byte { return e.sessionKey }

// PeerFingerprint returns the authenticated peer's fingerprint. Only valid
// once State() == Established.
func (e *Engine) PeerFingerprint() domain.Fingerprint { return e.peerFingerprint }

// PeerIdentityPub returns the authenticated peer's long-term signing key.
func (e *Engine) PeerIdentityPub() domain.SigningPublic { return e.peerIdentityPub }

// FirstContact reports whether this was the first handshake ever observed
// for PeerFingerprint, for the UI's HandshakeComplete event.
func (e *Engine) FirstContact() bool { return e.firstContact }

func (e *Engine) fail(kind domain.ProtocolErrorKind, err error) error {
	e.state = Failed
	return &domain.ProtocolError{Kind: kind, Err: err}
}

// Start begins the handshake as the initiator, returning the HELLO frame
// to send.
func (e *Engine) Start() (wire.Frame, error) {
	if e.state != Idle {
		return wire.Frame{}, e.fail(domain.ProtocolUnexpectedState, fmt.Errorf("Start called in state %s", e.state))
	}
	e.role = domain.RoleInitiator

	priv, pub, err := crypto.GenerateExchangeKey()
	if err != nil {
		return wire.Frame{}, e.fail(domain.ProtocolBadFrame, err)
	}
	e.ownEphPriv, e.ownEphPub = priv, pub

	m := wire.HelloMessage{
		IdentityPub: e.id.SigningPub,
		ExchangePub: e.ownEphPub,
	}
	m.Signature = crypto.Sign(e.id.SigningPriv, wire.HelloTranscript(m.IdentityPub, m.ExchangePub))
	e.state = SentHello
	return wire.Frame{Type: wire.TypeHello, Payload: wire.EncodeHello(m)}, nil
}

// Accept begins the handshake as the responder. It does not emit a frame;
// the responder waits for HELLO.
func (e *Engine) Accept() error {
	if e.state != Idle {
		return e.fail(domain.ProtocolUnexpectedState, fmt.Errorf("Accept called in state %s", e.state))
	}
	e.role = domain.RoleResponder
	e.state = WaitHello
	return nil
}

// Step feeds one inbound frame to the engine and returns the frame to send
// in response, if any. now is used for the AEAD associated data of
// AEAD-sealed handshake messages.
func (e *Engine) Step(f wire.Frame, now time.Time) (*wire.Frame, error) {
	switch e.state {
	case WaitHello:
		return e.onHello(f, now)
	case SentHello:
		return e.onHelloAck(f, now)
	case SentAck:
		return e.onChallengeResponse(f, now)
	case SentChallenge:
		return e.onReady(f, now)
	default:
		return nil, e.fail(domain.ProtocolUnexpectedState, fmt.Errorf("Step called in state %s with frame %s", e.state, f.Type))
	}
}

func (e *Engine) onHello(f wire.Frame, now time.Time) (*wire.Frame, error) {
	if f.Type != wire.TypeHello {
		return nil, e.fail(domain.ProtocolUnexpectedState, fmt.Errorf("expected HELLO, got %s", f.Type))
	}
	m, err := wire.DecodeHello(f.Payload)
	if err != nil {
		return nil, e.fail(domain.ProtocolBadFrame, err)
	}
	if !crypto.Verify(m.IdentityPub, wire.HelloTranscript(m.IdentityPub, m.ExchangePub), m.Signature) {
		return nil, e.fail(domain.ProtocolBadSignature, fmt.Errorf("HELLO signature invalid"))
	}

	fp := crypto.Fingerprint(m.IdentityPub)
	if err := e.pinOrVerify(fp, m.IdentityPub, now); err != nil {
		return nil, err
	}

	e.peerIdentityPub = m.IdentityPub
	e.peerEphPub = m.ExchangePub
	e.peerFingerprint = fp

	priv, pub, err := crypto.GenerateExchangeKey()
	if err != nil {
		return nil, e.fail(domain.ProtocolBadFrame, err)
	}
	e.ownEphPriv, e.ownEphPub = priv, pub

	challenge, err := crypto.Random(32)
	if err != nil {
		return nil, e.fail(domain.ProtocolBadFrame, err)
	}
	copy(e.challenge[:], challenge)

	ack := wire.HelloAckMessage{
		IdentityPub: e.id.SigningPub,
		ExchangePub: e.ownEphPub,
		Challenge:   e.challenge,
	}
	ack.Signature = crypto.Sign(e.id.SigningPriv, wire.HelloAckTranscript(ack.IdentityPub, ack.ExchangePub, ack.Challenge))

	if err := e.deriveSessionKey(); err != nil {
		return nil, e.fail(domain.ProtocolBadFrame, err)
	}

	e.state = SentAck
	out := wire.Frame{Type: wire.TypeHelloAck, Payload: wire.EncodeHelloAck(ack)}
	return &out, nil
}

func (e *Engine) onHelloAck(f wire.Frame, now time.Time) (*wire.Frame, error) {
	if f.Type != wire.TypeHelloAck {
		return nil, e.fail(domain.ProtocolUnexpectedState, fmt.Errorf("expected HELLO_ACK, got %s", f.Type))
	}
	m, err := wire.DecodeHelloAck(f.Payload)
	if err != nil {
		return nil, e.fail(domain.ProtocolBadFrame, err)
	}
	if !crypto.Verify(m.IdentityPub, wire.HelloAckTranscript(m.IdentityPub, m.ExchangePub, m.Challenge), m.Signature) {
		return nil, e.fail(domain.ProtocolBadSignature, fmt.Errorf("HELLO_ACK signature invalid"))
	}

	fp := crypto.Fingerprint(m.IdentityPub)
	if err := e.pinOrVerify(fp, m.IdentityPub, now); err != nil {
		return nil, err
	}

	e.peerIdentityPub = m.IdentityPub
	e.peerEphPub = m.ExchangePub
	e.peerFingerprint = fp
	e.challenge = m.Challenge

	if err := e.deriveSessionKey(); err != nil {
		return nil, e.fail(domain.ProtocolBadFrame, err)
	}

	sig := crypto.Sign(e.id.SigningPriv, e.challenge[:])
	nonce, err := crypto.Random(12)
	if err != nil {
		return nil, e.fail(domain.ProtocolBadFrame, err)
	}
	ownFP := crypto.Fingerprint(e.id.SigningPub)
	aad := wire.BuildAAD(wire.TypeChallengeResponse, ownFP, now.Unix())
	ct, err := crypto.Seal(e.sessionKey, nonce, aad, sig)
	if err != nil {
		return nil, e.fail(domain.ProtocolBadFrame, err)
	}

	var sp wire.SealedPayload
	sp.Version = wire.RecordVersion
	copy(sp.Nonce[:], nonce)
	sp.CipherText = ct

	e.state = SentChallenge
	out := wire.Frame{Type: wire.TypeChallengeResponse, Payload: wire.EncodeSealed(sp)}
	return &out, nil
}

func (e *Engine) onChallengeResponse(f wire.Frame, now time.Time) (*wire.Frame, error) {
	if f.Type != wire.TypeChallengeResponse {
		return nil, e.fail(domain.ProtocolUnexpectedState, fmt.Errorf("expected CHALLENGE_RESPONSE, got %s", f.Type))
	}
	sp, err := wire.DecodeSealed(f.Payload)
	if err != nil {
		return nil, e.fail(domain.ProtocolUnknownVersion, err)
	}
	aad := wire.BuildAAD(wire.TypeChallengeResponse, e.peerFingerprint, now.Unix())
	sig, err := crypto.Open(e.sessionKey, sp.Nonce[:], aad, sp.CipherText)
	if err != nil {
		return nil, e.fail(domain.ProtocolBadChallengeResponse, err)
	}
	if !crypto.Verify(e.peerIdentityPub, e.challenge[:], sig) {
		return nil, e.fail(domain.ProtocolBadChallengeResponse, fmt.Errorf("challenge signature invalid"))
	}

	nonce, err := crypto.Random(12)
	if err != nil {
		return nil, e.fail(domain.ProtocolBadFrame, err)
	}
	ownFP := crypto.Fingerprint(e.id.SigningPub)
	readyAAD := wire.BuildAAD(wire.TypeReady, ownFP, now.Unix())
	ct, err := crypto.Seal(e.sessionKey, nonce, readyAAD, nil)
	if err != nil {
		return nil, e.fail(domain.ProtocolBadFrame, err)
	}
	var rp wire.SealedPayload
	rp.Version = wire.RecordVersion
	copy(rp.Nonce[:], nonce)
	rp.CipherText = ct

	e.state = Established
	out := wire.Frame{Type: wire.TypeReady, Payload: wire.EncodeSealed(rp)}
	return &out, nil
}

func (e *Engine) onReady(f wire.Frame, now time.Time) (*wire.Frame, error) {
	if f.Type != wire.TypeReady {
		return nil, e.fail(domain.ProtocolUnexpectedState, fmt.Errorf("expected READY, got %s", f.Type))
	}
	sp, err := wire.DecodeSealed(f.Payload)
	if err != nil {
		return nil, e.fail(domain.ProtocolUnknownVersion, err)
	}
	aad := wire.BuildAAD(wire.TypeReady, e.peerFingerprint, now.Unix())
	if _, err := crypto.Open(e.sessionKey, sp.Nonce[:], aad, sp.CipherText); err != nil {
		return nil, e.fail(domain.ProtocolAuthFail, err)
	}
	e.state = Established
	return nil, nil
}

// pinOrVerify applies trust-on-first-use pinning: the first time fp is
// seen, its identity key is recorded; on every later contact the stored
// key must match.
func (e *Engine) pinOrVerify(fp domain.Fingerprint, identityPub domain.SigningPublic, now time.Time) error {
	rec, ok, err := e.peers.LoadPeer(fp)
	if err != nil {
		return e.fail(domain.ProtocolBadFrame, err)
	}
	if !ok {
		e.firstContact = true
		return nil
	}
	if !bytes.Equal(rec.IdentityPub[:], identityPub[:]) {
		return e.fail(domain.ProtocolIdentityMismatch, fmt.Errorf("peer %s presented an identity key different from the pinned one", fp))
	}
	e.firstContact = false
	return nil
}

// CommitPeer persists the TOFU pin now that the peer has been
// authenticated. Called once State() == Established, so a handshake that
// later fails the challenge never leaves a half-trusted record behind.
func (e *Engine) CommitPeer(now time.Time, displayName string) error {
	rec := domain.PeerRecord{
		Fingerprint: e.peerFingerprint,
		IdentityPub: e.peerIdentityPub,
		DisplayName: displayName,
		LastSeen:    now,
		Trust:       domain.TrustPinned,
	}
	if e.firstContact {
		rec.FirstSeen = now
		rec.Trust = domain.TrustUnknown
	} else if existing, ok, err := e.peers.LoadPeer(e.peerFingerprint); err == nil && ok {
		rec.FirstSeen = existing.FirstSeen
		rec.Verified = existing.Verified
		if existing.Trust > domain.TrustPinned {
			rec.Trust = existing.Trust
		}
	}
	return e.peers.SavePeer(rec)
}

// deriveSessionKey computes the shared session key from the two ephemeral
// keys now that both are known (spec §4.D).
func (e *Engine) deriveSessionKey() error {
	shared, err := crypto.ECDH(e.ownEphPriv, e.peerEphPub)
	if err != nil {
		return err
	}
	defer crypto.Zero(shared[:])

	var iPub, rPub domain.ExchangePublic
	if e.role == domain.RoleInitiator {
		iPub, rPub = e.ownEphPub, e.peerEphPub
	} else {
		iPub, rPub = e.peerEphPub, e.ownEphPub
	}
	salt := sortConcat(iPub, rPub)

	key, err := crypto.HKDF(shared[:], salt, []byte("p2pmsg v1 session"), 32)
	if err != nil {
		return err
	}
	e.sessionKey = key
	return nil
}

// sortConcat concatenates a and b in lexicographic order so both ends of
// the handshake agree on the HKDF salt without a role-dependent branch.
func sortConcat(a, b domain.ExchangePublic) []byte {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return append(append([]byte{}, a[:]...), b[:]...)
	}
	return append(append([]byte{}, b[:]...), a[:]...)
}
