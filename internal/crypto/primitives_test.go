package crypto_test

import (
	"bytes"
	"testing"

	"p2pmsg/internal/crypto"
)

func TestECDH_BothSidesAgree(t *testing.T) {
	aPriv, aPub, err := crypto.GenerateExchangeKey()
	if err != nil {
		t.Fatalf("GenerateExchangeKey: %v", err)
	}
	bPriv, bPub, err := crypto.GenerateExchangeKey()
	if err != nil {
		t.Fatalf("GenerateExchangeKey: %v", err)
	}

	aShared, err := crypto.ECDH(aPriv, bPub)
	if err != nil {
		t.Fatalf("ECDH a: %v", err)
	}
	bShared, err := crypto.ECDH(bPriv, aPub)
	if err != nil {
		t.Fatalf("ECDH b: %v", err)
	}
	if aShared != bShared {
		t.Fatal("shared secrets disagree")
	}
}

func TestSignVerify_TamperedSignatureFails(t *testing.T) {
	priv, pub, err := crypto.GenerateSigningKey()
	if err != nil {
		t.Fatalf("GenerateSigningKey: %v", err)
	}
	msg := []byte("hello")
	sig := crypto.Sign(priv, msg)
	if !crypto.Verify(pub, msg, sig) {
		t.Fatal("expected valid signature to verify")
	}
	sig[0] ^= 0xFF
	if crypto.Verify(pub, msg, sig) {
		t.Fatal("expected tampered signature to fail verification")
	}
}

func TestSealOpen_RoundTripAndTamper(t *testing.T) {
	key, err := crypto.Random(32)
	if err != nil {
		t.Fatalf("Random: %v", err)
	}
	nonce, err := crypto.Random(12)
	if err != nil {
		t.Fatalf("Random: %v", err)
	}
	aad := []byte("aad")
	pt := []byte("the quick brown fox")

	ct, err := crypto.Seal(key, nonce, aad, pt)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	got, err := crypto.Open(key, nonce, aad, ct)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, pt) {
		t.Fatalf("round trip mismatch: got %q want %q", got, pt)
	}

	tampered := append([]byte{}, ct...)
	tampered[0] ^= 0x01
	if _, err := crypto.Open(key, nonce, aad, tampered); err != crypto.ErrOpenFailed {
		t.Fatalf("expected ErrOpenFailed, got %v", err)
	}
}

func TestDeriveVaultKey_Deterministic(t *testing.T) {
	salt := bytes.Repeat([]byte{0x01}, 16)
	k1 := crypto.DeriveVaultKey("correct horse", salt, crypto.DefaultArgon2Params)
	k2 := crypto.DeriveVaultKey("correct horse", salt, crypto.DefaultArgon2Params)
	if !bytes.Equal(k1, k2) {
		t.Fatal("expected deterministic derivation for same passphrase and salt")
	}
	k3 := crypto.DeriveVaultKey("wrong password", salt, crypto.DefaultArgon2Params)
	if bytes.Equal(k1, k3) {
		t.Fatal("expected different passphrases to derive different keys")
	}
}
