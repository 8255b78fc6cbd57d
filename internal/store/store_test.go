package store

import (
	"path/filepath"
	"testing"
	"time"

	"p2pmsg/internal/crypto"
	"p2pmsg/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	priv, _ := signingKeyPair(t)

	s, err := Open(filepath.Join(dir, "store.db"), filepath.Join(dir, "files"), priv)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func signingKeyPair(t *testing.T) (domain.SigningPrivate, domain.SigningPublic) {
	t.Helper()
	priv, pub, err := crypto.GenerateSigningKey()
	if err != nil {
		t.Fatalf("GenerateSigningKey: %v", err)
	}
	return priv, pub
}

func testFingerprint(t *testing.T) domain.Fingerprint {
	t.Helper()
	_, pub := signingKeyPair(t)
	return crypto.Fingerprint(pub)
}

func TestStore_EnsureConversation_IsIdempotentPerPeer(t *testing.T) {
	s := newTestStore(t)
	peer := testFingerprint(t)

	c1, err := s.EnsureConversation(peer)
	if err != nil {
		t.Fatalf("EnsureConversation: %v", err)
	}
	c2, err := s.EnsureConversation(peer)
	if err != nil {
		t.Fatalf("EnsureConversation (second): %v", err)
	}
	if c1.ID != c2.ID {
		t.Fatalf("expected same conversation id, got %q and %q", c1.ID, c2.ID)
	}
}

func TestStore_AppendAndHistory_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	peer := testFingerprint(t)

	conv, err := s.EnsureConversation(peer)
	if err != nil {
		t.Fatalf("EnsureConversation: %v", err)
	}

	base := time.Now()
	for i, body := range []string{"hello", "there", "friend"} {
		msg := domain.Message{
			ConversationID: conv.ID,
			Direction:      domain.DirectionSent,
			Kind:           domain.KindText,
			Plaintext:      []byte(body),
			Timestamp:      base.Add(time.Duration(i) * time.Second),
		}
		if err := s.AppendMessage(msg); err != nil {
			t.Fatalf("AppendMessage(%q): %v", body, err)
		}
	}

	hist, err := s.History(peer, 10, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("want 3 messages, got %d", len(hist))
	}
	want := []string{"hello", "there", "friend"}
	for i, m := range hist {
		if string(m.Plaintext) != want[i] {
			t.Errorf("message %d: want %q, got %q", i, want[i], m.Plaintext)
		}
	}
}

func TestStore_AppendMessage_DuplicateIsIgnored(t *testing.T) {
	s := newTestStore(t)
	peer := testFingerprint(t)
	conv, err := s.EnsureConversation(peer)
	if err != nil {
		t.Fatalf("EnsureConversation: %v", err)
	}

	ts := time.Now()
	msg := domain.Message{ID: "fixed-id", ConversationID: conv.ID, Direction: domain.DirectionSent, Kind: domain.KindText, Plaintext: []byte("once"), Timestamp: ts}
	if err := s.AppendMessage(msg); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := s.AppendMessage(msg); err != nil {
		t.Fatalf("AppendMessage (duplicate): %v", err)
	}

	hist, err := s.History(peer, 10, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("want 1 message after duplicate insert, got %d", len(hist))
	}
}

func TestStore_SaveAttachment_RejectsPathTraversal(t *testing.T) {
	s := newTestStore(t)
	peer := testFingerprint(t)

	if _, err := s.SaveAttachment(peer, "..", []byte("x")); err == nil {
		t.Fatal("expected an error for a bare '..' attachment name")
	}
	if _, err := s.SaveAttachment(peer, ".", []byte("x")); err == nil {
		t.Fatal("expected an error for a bare '.' attachment name")
	}
	if _, err := s.SaveAttachment(peer, "", []byte("x")); err == nil {
		t.Fatal("expected an error for an empty attachment name")
	}
}

func TestStore_SaveAttachment_WritesUnderPeerDirectory(t *testing.T) {
	s := newTestStore(t)
	peer := testFingerprint(t)

	path, err := s.SaveAttachment(peer, "../weird/report.pdf", []byte("contents"))
	if err != nil {
		t.Fatalf("SaveAttachment: %v", err)
	}
	if filepath.Base(path) != "report.pdf" {
		t.Fatalf("want basename report.pdf, got %q", path)
	}
	if filepath.Base(filepath.Dir(path)) != peer.String() {
		t.Fatalf("want attachment under peer directory, got %q", path)
	}
}
