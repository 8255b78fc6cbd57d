package vault_test

import (
	"errors"
	"testing"

	"p2pmsg/internal/crypto"
	"p2pmsg/internal/domain"
	"p2pmsg/internal/vault"
)

func newTestVault(t *testing.T) *vault.Vault {
	t.Helper()
	v, err := vault.New(t.TempDir(), crypto.DefaultArgon2Params)
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}
	return v
}

func TestInitializeThenOpen_SamePublicKeys(t *testing.T) {
	v := newTestVault(t)

	id, err := v.Initialize("pw-A")
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	got, err := v.Open("pw-A")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got.SigningPub != id.SigningPub || got.ExchangePub != id.ExchangePub {
		t.Fatal("public keys changed across Initialize/Open")
	}
}

func TestInitialize_FailsIfAlreadyExists(t *testing.T) {
	v := newTestVault(t)
	if _, err := v.Initialize("pw"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	_, err := v.Initialize("pw")
	var verr *domain.VaultError
	if !errors.As(err, &verr) || verr.Kind != domain.VaultExists {
		t.Fatalf("expected VaultExists, got %v", err)
	}
}

func TestOpen_WrongPassphraseFails(t *testing.T) {
	v := newTestVault(t)
	if _, err := v.Initialize("correct"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	_, err := v.Open("wrong")
	var verr *domain.VaultError
	if !errors.As(err, &verr) || verr.Kind != domain.VaultBadPassphrase {
		t.Fatalf("expected VaultBadPassphrase, got %v", err)
	}
}

func TestRotatePassphrase_OldFailsNewSucceeds(t *testing.T) {
	v := newTestVault(t)
	id, err := v.Initialize("old")
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if err := v.RotatePassphrase("old", "new"); err != nil {
		t.Fatalf("RotatePassphrase: %v", err)
	}

	if _, err := v.Open("old"); err == nil {
		t.Fatal("expected old passphrase to fail after rotation")
	}

	got, err := v.Open("new")
	if err != nil {
		t.Fatalf("Open with new passphrase: %v", err)
	}
	if got.SigningPub != id.SigningPub {
		t.Fatal("identity public key changed across rotation")
	}
}

func TestPeerPinning_SaveLoadAndVerify(t *testing.T) {
	v := newTestVault(t)

	var fp domain.Fingerprint
	fp[0] = 0xAB

	rec := domain.PeerRecord{Fingerprint: fp, DisplayName: "bob"}
	if err := v.SavePeer(rec); err != nil {
		t.Fatalf("SavePeer: %v", err)
	}

	got, ok, err := v.LoadPeer(fp)
	if err != nil || !ok {
		t.Fatalf("LoadPeer: ok=%v err=%v", ok, err)
	}
	if got.Verified {
		t.Fatal("expected new peer to default to unverified")
	}

	if err := v.SetVerified(fp, true); err != nil {
		t.Fatalf("SetVerified: %v", err)
	}
	got, _, _ = v.LoadPeer(fp)
	if !got.Verified {
		t.Fatal("expected peer to be verified after SetVerified")
	}
}
