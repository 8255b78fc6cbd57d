package wire_test

import (
	"bytes"
	"testing"

	"p2pmsg/internal/domain"
	"p2pmsg/internal/wire"
)

func TestFrame_EncodeDecodeRoundTrip(t *testing.T) {
	f := wire.Frame{Type: wire.TypeText, Payload: []byte("hello")}
	buf := bytes.NewBuffer(wire.Encode(f))

	got, err := wire.ReadFrame(buf, 1024)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Type != f.Type || !bytes.Equal(got.Payload, f.Payload) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, f)
	}
}

func TestReadFrame_RejectsOversizedLength(t *testing.T) {
	f := wire.Frame{Type: wire.TypeText, Payload: make([]byte, 100)}
	buf := bytes.NewBuffer(wire.Encode(f))

	_, err := wire.ReadFrame(buf, 10)
	if err != wire.ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestHello_EncodeDecodeRoundTrip(t *testing.T) {
	m := wire.HelloMessage{Signature: bytes.Repeat([]byte{0x09}, 64)}
	m.IdentityPub[0] = 1
	m.ExchangePub[0] = 2

	got, err := wire.DecodeHello(wire.EncodeHello(m))
	if err != nil {
		t.Fatalf("DecodeHello: %v", err)
	}
	if got.IdentityPub != m.IdentityPub || got.ExchangePub != m.ExchangePub || !bytes.Equal(got.Signature, m.Signature) {
		t.Fatalf("round trip mismatch")
	}
}

func TestDecodeSealed_RejectsUnknownVersion(t *testing.T) {
	p := wire.SealedPayload{Version: 0x02, CipherText: []byte("ct")}
	_, err := wire.DecodeSealed(wire.EncodeSealed(p))
	if err != wire.ErrUnknownVersion {
		t.Fatalf("expected ErrUnknownVersion, got %v", err)
	}
}

func TestBuildAAD_FloorsToMinute(t *testing.T) {
	var fp domain.Fingerprint
	a := wire.BuildAAD(wire.TypeText, fp, 125) // minute 120
	b := wire.BuildAAD(wire.TypeText, fp, 179) // still minute 120
	if !bytes.Equal(a, b) {
		t.Fatal("expected AAD to be identical within the same minute bucket")
	}
	c := wire.BuildAAD(wire.TypeText, fp, 180) // minute 180
	if bytes.Equal(a, c) {
		t.Fatal("expected AAD to differ across minute buckets")
	}
}
