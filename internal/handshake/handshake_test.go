package handshake_test

import (
	"errors"
	"testing"
	"time"

	"p2pmsg/internal/crypto"
	"p2pmsg/internal/domain"
	"p2pmsg/internal/handshake"
	"p2pmsg/internal/wire"
)

type mockPeers struct {
	rows map[domain.Fingerprint]domain.PeerRecord
}

func newMockPeers() *mockPeers { return &mockPeers{rows: map[domain.Fingerprint]domain.PeerRecord{}} }

func (m *mockPeers) LoadPeer(fp domain.Fingerprint) (domain.PeerRecord, bool, error) {
	rec, ok := m.rows[fp]
	return rec, ok, nil
}

func (m *mockPeers) SavePeer(rec domain.PeerRecord) error {
	m.rows[rec.Fingerprint] = rec
	return nil
}

func newIdentity(t *testing.T) domain.Identity {
	t.Helper()
	signPriv, signPub, err := crypto.GenerateSigningKey()
	if err != nil {
		t.Fatalf("GenerateSigningKey: %v", err)
	}
	xPriv, xPub, err := crypto.GenerateExchangeKey()
	if err != nil {
		t.Fatalf("GenerateExchangeKey: %v", err)
	}
	return domain.Identity{SigningPub: signPub, SigningPriv: signPriv, ExchangePub: xPub, ExchangePriv: xPriv}
}

// runHandshake drives I and R to completion, returning both engines.
func runHandshake(t *testing.T, iPeers, rPeers handshake.PeerStore) (*handshake.Engine, *handshake.Engine) {
	t.Helper()
	now := time.Now()

	iID := newIdentity(t)
	rID := newIdentity(t)

	i := handshake.New(iID, iPeers)
	r := handshake.New(rID, rPeers)

	if err := r.Accept(); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	hello, err := i.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	ack, err := r.Step(hello, now)
	if err != nil {
		t.Fatalf("R.Step(HELLO): %v", err)
	}
	challResp, err := i.Step(*ack, now)
	if err != nil {
		t.Fatalf("I.Step(HELLO_ACK): %v", err)
	}
	ready, err := r.Step(*challResp, now)
	if err != nil {
		t.Fatalf("R.Step(CHALLENGE_RESPONSE): %v", err)
	}
	if _, err := i.Step(*ready, now); err != nil {
		t.Fatalf("I.Step(READY): %v", err)
	}
	return i, r
}

func TestHandshake_FullRoundTrip_BothEstablishSameSessionKey(t *testing.T) {
	i, r := runHandshake(t, newMockPeers(), newMockPeers())

	if i.State() != handshake.Established || r.State() != handshake.Established {
		t.Fatalf("expected both Established, got I=%s R=%s", i.State(), r.State())
	}
	if string(i.SessionKey()) != string(r.SessionKey()) {
		t.Fatal("session keys diverge")
	}
	if !i.FirstContact() || !r.FirstContact() {
		t.Fatal("expected first contact on both sides")
	}
}

func TestHandshake_TamperedHelloSignature_Fails(t *testing.T) {
	now := time.Now()
	iID := newIdentity(t)
	rID := newIdentity(t)

	i := handshake.New(iID, newMockPeers())
	r := handshake.New(rID, newMockPeers())
	if err := r.Accept(); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	hello, err := i.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	hello.Payload[len(hello.Payload)-1] ^= 0xFF // flip a signature bit

	_, stepErr := r.Step(hello, now)
	if stepErr == nil {
		t.Fatal("expected signature verification to fail")
	}
	if r.State() != handshake.Failed {
		t.Fatalf("expected Failed, got %s", r.State())
	}
	var perr *domain.ProtocolError
	if !errors.As(stepErr, &perr) || perr.Kind != domain.ProtocolBadSignature {
		t.Fatalf("expected ProtocolBadSignature, got %v", stepErr)
	}
}

func TestHandshake_IdentityMismatch_RejectsImpersonator(t *testing.T) {
	now := time.Now()
	rPeers := newMockPeers()

	iID := newIdentity(t)
	rID := newIdentity(t)
	i := handshake.New(iID, newMockPeers())
	r := handshake.New(rID, rPeers)
	if err := r.Accept(); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	hello, err := i.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	fp := crypto.Fingerprint(iID.SigningPub)
	impostorID := newIdentity(t)
	rPeers.rows[fp] = domain.PeerRecord{Fingerprint: fp, IdentityPub: impostorID.SigningPub}

	_, err = r.Step(hello, now)
	if err == nil {
		t.Fatal("expected IdentityMismatch error")
	}
	var perr *domain.ProtocolError
	if !errors.As(err, &perr) || perr.Kind != domain.ProtocolIdentityMismatch {
		t.Fatalf("expected ProtocolIdentityMismatch, got %v", err)
	}
}

func TestHandshake_BadChallengeResponse_Fails(t *testing.T) {
	now := time.Now()
	iID := newIdentity(t)
	rID := newIdentity(t)
	i := handshake.New(iID, newMockPeers())
	r := handshake.New(rID, newMockPeers())
	if err := r.Accept(); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	hello, err := i.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	ack, err := r.Step(hello, now)
	if err != nil {
		t.Fatalf("R.Step(HELLO): %v", err)
	}
	challResp, err := i.Step(*ack, now)
	if err != nil {
		t.Fatalf("I.Step(HELLO_ACK): %v", err)
	}
	challResp.Payload[len(challResp.Payload)-1] ^= 0xFF // corrupt the AEAD tag

	if _, err := r.Step(*challResp, now); err == nil {
		t.Fatal("expected CHALLENGE_RESPONSE to fail")
	}
	if r.State() != handshake.Failed {
		t.Fatalf("expected Failed, got %s", r.State())
	}
}

func TestHandshake_PinnedPeer_SameIdentityKeyStillEstablishes(t *testing.T) {
	now := time.Now()
	iID := newIdentity(t)
	rID := newIdentity(t)
	iPeers, rPeers := newMockPeers(), newMockPeers()

	i := handshake.New(iID, iPeers)
	r := handshake.New(rID, rPeers)
	if err := r.Accept(); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	hello, err := i.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	ack, err := r.Step(hello, now)
	if err != nil {
		t.Fatalf("R.Step(HELLO): %v", err)
	}
	if err := r.CommitPeer(now, ""); err != nil {
		t.Fatalf("CommitPeer: %v", err)
	}
	challResp, err := i.Step(*ack, now)
	if err != nil {
		t.Fatalf("I.Step(HELLO_ACK): %v", err)
	}
	if _, err := r.Step(*challResp, now); err != nil {
		t.Fatalf("R.Step(CHALLENGE_RESPONSE): %v", err)
	}

	// Same identity reconnects; the pinned record must match and the
	// handshake must establish again rather than raising IdentityMismatch.
	i2 := handshake.New(iID, iPeers)
	r2 := handshake.New(rID, rPeers)
	if err := r2.Accept(); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	hello2, err := i2.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	ack2, err := r2.Step(hello2, now)
	if err != nil {
		t.Fatalf("expected pinned peer to re-authenticate, got %v", err)
	}
	if r2.FirstContact() {
		t.Fatal("expected FirstContact to be false on a pinned peer")
	}
	challResp2, err := i2.Step(*ack2, now)
	if err != nil {
		t.Fatalf("I2.Step(HELLO_ACK): %v", err)
	}
	ready2, err := r2.Step(*challResp2, now)
	if err != nil {
		t.Fatalf("R2.Step(CHALLENGE_RESPONSE): %v", err)
	}
	if _, err := i2.Step(*ready2, now); err != nil {
		t.Fatalf("I2.Step(READY): %v", err)
	}
	if i2.State() != handshake.Established || r2.State() != handshake.Established {
		t.Fatalf("expected both Established, got I=%s R=%s", i2.State(), r2.State())
	}
}

func TestHandshake_UnexpectedFrameType_Fails(t *testing.T) {
	now := time.Now()
	rID := newIdentity(t)
	r := handshake.New(rID, newMockPeers())
	if err := r.Accept(); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	_, err := r.Step(wire.Frame{Type: wire.TypeReady, Payload: []byte("junk")}, now)
	if err == nil {
		t.Fatal("expected error for out-of-order frame")
	}
	if r.State() != handshake.Failed {
		t.Fatalf("expected Failed, got %s", r.State())
	}
}
