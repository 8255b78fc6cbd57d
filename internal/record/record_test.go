package record_test

import (
	"testing"
	"time"

	"p2pmsg/internal/crypto"
	"p2pmsg/internal/domain"
	"p2pmsg/internal/record"
	"p2pmsg/internal/wire"
)

func fingerprintOf(b byte) domain.Fingerprint {
	var fp domain.Fingerprint
	fp[0] = b
	return fp
}

func newSessionPair(t *testing.T, now time.Time) (*record.Session, *record.Session) {
	t.Helper()
	key, err := crypto.Random(32)
	if err != nil {
		t.Fatalf("Random: %v", err)
	}
	iFP, rFP := fingerprintOf(1), fingerprintOf(2)
	i := record.New(domain.RoleInitiator, key, iFP, rFP, 1024, 1000, 24*time.Hour, now)
	r := record.New(domain.RoleResponder, key, rFP, iFP, 1024, 1000, 24*time.Hour, now)
	return i, r
}

func TestSession_SealOpen_RoundTrip(t *testing.T) {
	now := time.Now()
	i, r := newSessionPair(t, now)

	f, err := i.Seal(wire.TypeText, []byte("hello"), now)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	pt, err := r.Open(f, now)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(pt) != "hello" {
		t.Fatalf("got %q", pt)
	}
}

func TestSession_Open_RejectsSpoofedRoleTag(t *testing.T) {
	now := time.Now()
	i, _ := newSessionPair(t, now)

	f, err := i.Seal(wire.TypeText, []byte("hello"), now)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	// Feed our own sealed frame back to ourselves: its nonce carries our
	// own role tag, which must be rejected as a spoofed direction.
	if _, err := i.Open(f, now); err == nil {
		t.Fatal("expected role-tag spoof to be rejected")
	}
}

func TestSession_Open_RejectsReplay(t *testing.T) {
	now := time.Now()
	key, err := crypto.Random(32)
	if err != nil {
		t.Fatalf("Random: %v", err)
	}
	iFP, rFP := fingerprintOf(1), fingerprintOf(2)
	i := record.New(domain.RoleInitiator, key, iFP, rFP, 1024, 1000, 24*time.Hour, now)
	r := record.New(domain.RoleResponder, key, rFP, iFP, 1024, 1000, 24*time.Hour, now)

	f, err := i.Seal(wire.TypeText, []byte("hello"), now)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := r.Open(f, now); err != nil {
		t.Fatalf("first Open: %v", err)
	}

	// A second receiver under the same session key sees the frame for the
	// first time, then sees the same frame again as a replay.
	r2 := record.New(domain.RoleResponder, key, rFP, iFP, 1024, 1000, 24*time.Hour, now)
	if _, err := r2.Open(f, now); err != nil {
		t.Fatalf("Open on fresh receiver: %v", err)
	}
	if _, err := r2.Open(f, now); err == nil {
		t.Fatal("expected replay to be rejected")
	}
	if !r2.Failed() {
		t.Fatal("expected session to mark itself failed after a replay")
	}
}

func TestSession_Open_RejectsTamperedCiphertext(t *testing.T) {
	now := time.Now()
	i, r := newSessionPair(t, now)

	f, err := i.Seal(wire.TypeText, []byte("hello"), now)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	f.Payload[len(f.Payload)-1] ^= 0xFF

	if _, err := r.Open(f, now); err == nil {
		t.Fatal("expected tampered ciphertext to fail")
	}
	if !r.Failed() {
		t.Fatal("expected session to mark itself failed")
	}
}

func TestSession_Rekey_OldKeyCannotOpenNewFrames(t *testing.T) {
	now := time.Now()
	key, err := crypto.Random(32)
	if err != nil {
		t.Fatalf("Random: %v", err)
	}
	iFP, rFP := fingerprintOf(1), fingerprintOf(2)
	i := record.New(domain.RoleInitiator, key, iFP, rFP, 1024, 1000, 24*time.Hour, now)
	r := record.New(domain.RoleResponder, key, rFP, iFP, 1024, 1000, 24*time.Hour, now)
	// stale keeps the pre-rekey session key for the whole test.
	stale := record.New(domain.RoleResponder, key, rFP, iFP, 1024, 1000, 24*time.Hour, now)

	reqFrame, err := i.BeginRekey(now)
	if err != nil {
		t.Fatalf("BeginRekey: %v", err)
	}
	reqPlain, err := r.Open(reqFrame, now)
	if err != nil {
		t.Fatalf("R.Open(REKEY_REQUEST): %v", err)
	}
	ackFrame, err := r.RespondRekey(reqPlain, now)
	if err != nil {
		t.Fatalf("RespondRekey: %v", err)
	}
	ackPlain, err := i.Open(ackFrame, now)
	if err != nil {
		t.Fatalf("I.Open(REKEY_ACK): %v", err)
	}
	if err := i.CompleteRekey(ackPlain, now); err != nil {
		t.Fatalf("CompleteRekey: %v", err)
	}

	// Both sides reset their counters to 0 on switch, so a fresh TEXT
	// frame from the initiator must open cleanly under the new key.
	f, err := i.Seal(wire.TypeText, []byte("post-rekey"), now)
	if err != nil {
		t.Fatalf("Seal after rekey: %v", err)
	}
	pt, err := r.Open(f, now)
	if err != nil {
		t.Fatalf("Open after rekey: %v", err)
	}
	if string(pt) != "post-rekey" {
		t.Fatalf("got %q", pt)
	}
	if _, err := stale.Open(f, now); err == nil {
		t.Fatal("expected the pre-rekey key to fail on a post-rekey frame")
	}
}

func TestSession_NeedsRekey_OnMessageThreshold(t *testing.T) {
	now := time.Now()
	key, _ := crypto.Random(32)
	s := record.New(domain.RoleInitiator, key, fingerprintOf(1), fingerprintOf(2), 1024, 3, 24*time.Hour, now)

	for i := 0; i < 3; i++ {
		if s.NeedsRekey(now) {
			t.Fatalf("NeedsRekey true too early at iteration %d", i)
		}
		if _, err := s.Seal(wire.TypeText, []byte("x"), now); err != nil {
			t.Fatalf("Seal: %v", err)
		}
	}
	if !s.NeedsRekey(now) {
		t.Fatal("expected NeedsRekey true after reaching the threshold")
	}
}
