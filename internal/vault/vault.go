package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"p2pmsg/internal/crypto"
	"p2pmsg/internal/domain"
)

const (
	identityFilename = "identity.key"
	exchangeFilename = "exchange.key"
)

// Vault is the on-disk, passphrase-protected store of long-term private
// keys (spec §4.B). Its key files are read-only after Open apart from
// RotatePassphrase; the peer book beside them changes through SavePeer
// and SetVerified.
type Vault struct {
	dir    string
	params crypto.Argon2Params

	mu sync.Mutex
}

// New returns a Vault rooted at dir. dir is created with 0700 permissions
// if it does not already exist.
func New(dir string, params crypto.Argon2Params) (*Vault, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, &domain.VaultError{Kind: domain.VaultCorrupt, Err: err}
	}
	return &Vault{dir: dir, params: params}, nil
}

func (v *Vault) identityPath() string { return filepath.Join(v.dir, identityFilename) }
func (v *Vault) exchangePath() string { return filepath.Join(v.dir, exchangeFilename) }

// Initialize generates both long-term keypairs, derives the vault key,
// seals the private keys, and persists them with mode 0600. It fails with
// VaultExists if a vault is already present (spec §4.B).
func (v *Vault) Initialize(passphrase string) (domain.Identity, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, err := os.Stat(v.identityPath()); err == nil {
		return domain.Identity{}, &domain.VaultError{Kind: domain.VaultExists}
	}

	signPriv, signPub, err := crypto.GenerateSigningKey()
	if err != nil {
		return domain.Identity{}, &domain.VaultError{Kind: domain.VaultCorrupt, Err: err}
	}
	xPriv, xPub, err := crypto.GenerateExchangeKey()
	if err != nil {
		return domain.Identity{}, &domain.VaultError{Kind: domain.VaultCorrupt, Err: err}
	}
	createdAt := time.Now().Unix()

	if err := v.writeSealed(v.identityPath(), keyTypeSigning, signPriv.Slice(), signPub.Slice(), passphrase, createdAt); err != nil {
		return domain.Identity{}, err
	}
	if err := v.writeSealed(v.exchangePath(), keyTypeExchange, xPriv.Slice(), xPub.Slice(), passphrase, createdAt); err != nil {
		return domain.Identity{}, err
	}

	id := domain.Identity{
		SigningPub:   signPub,
		SigningPriv:  signPriv,
		ExchangePub:  xPub,
		ExchangePriv: xPriv,
		CreatedAt:    createdAt,
	}
	return id, nil
}

// Open loads both key files, deriving a candidate vault key from each
// file's own salt and attempting to AEAD-open the sealed private key. It
// fails fast with BadPassphrase on the first authentication failure —
// invariant 6: no partial-open side effects, no private key bytes are
// ever written out decrypted.
func (v *Vault) Open(passphrase string) (domain.Identity, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	signRec, err := v.readRecord(v.identityPath())
	if err != nil {
		return domain.Identity{}, err
	}
	xRec, err := v.readRecord(v.exchangePath())
	if err != nil {
		return domain.Identity{}, err
	}

	signPriv, err := v.openSealed(signRec, passphrase)
	if err != nil {
		return domain.Identity{}, err
	}
	defer crypto.Zero(signPriv)

	xPriv, err := v.openSealed(xRec, passphrase)
	if err != nil {
		return domain.Identity{}, err
	}
	defer crypto.Zero(xPriv)

	var id domain.Identity
	copy(id.SigningPriv[:], signPriv)
	copy(id.SigningPub[:], signRec.Public)
	copy(id.ExchangePriv[:], xPriv)
	copy(id.ExchangePub[:], xRec.Public)
	id.CreatedAt = signRec.CreatedAt
	return id, nil
}

// RotatePassphrase opens the vault under oldPassphrase, re-seals both
// private keys under a fresh salt and newPassphrase, and replaces the
// on-disk files one at a time, each atomically. The two files are not
// replaced as one unit: if re-sealing or writing the exchange key fails,
// identity.key has already been replaced under newPassphrase.
func (v *Vault) RotatePassphrase(oldPassphrase, newPassphrase string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	signRec, err := v.readRecord(v.identityPath())
	if err != nil {
		return err
	}
	xRec, err := v.readRecord(v.exchangePath())
	if err != nil {
		return err
	}

	signPriv, err := v.openSealed(signRec, oldPassphrase)
	if err != nil {
		return err
	}
	defer crypto.Zero(signPriv)
	xPriv, err := v.openSealed(xRec, oldPassphrase)
	if err != nil {
		return err
	}
	defer crypto.Zero(xPriv)

	if err := v.writeSealed(v.identityPath(), keyTypeSigning, signPriv, signRec.Public, newPassphrase, signRec.CreatedAt); err != nil {
		return err
	}
	if err := v.writeSealed(v.exchangePath(), keyTypeExchange, xPriv, xRec.Public, newPassphrase, xRec.CreatedAt); err != nil {
		return err
	}
	return nil
}

func (v *Vault) readRecord(path string) (keyRecord, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return keyRecord{}, &domain.VaultError{Kind: domain.VaultNotFound, Err: err}
		}
		return keyRecord{}, &domain.VaultError{Kind: domain.VaultCorrupt, Err: err}
	}
	rec, err := decodeKeyRecord(b)
	if err != nil {
		return keyRecord{}, &domain.VaultError{Kind: domain.VaultCorrupt, Err: err}
	}
	return rec, nil
}

func (v *Vault) openSealed(rec keyRecord, passphrase string) ([]byte, error) {
	kek := crypto.DeriveVaultKey(passphrase, rec.Salt[:], v.params)
	defer crypto.Zero(kek)

	pt, err := crypto.Open(kek, rec.Nonce[:], nil, rec.Sealed)
	if err != nil {
		return nil, &domain.VaultError{Kind: domain.VaultBadPassphrase}
	}
	return pt, nil
}

func (v *Vault) writeSealed(path string, kt keyType, priv, pub []byte, passphrase string, createdAt int64) error {
	salt, err := crypto.Random(saltLen)
	if err != nil {
		return &domain.VaultError{Kind: domain.VaultCorrupt, Err: err}
	}
	nonce, err := crypto.Random(nonceLen)
	if err != nil {
		return &domain.VaultError{Kind: domain.VaultCorrupt, Err: err}
	}

	kek := crypto.DeriveVaultKey(passphrase, salt, v.params)
	defer crypto.Zero(kek)

	sealed, err := crypto.Seal(kek, nonce, nil, priv)
	if err != nil {
		return &domain.VaultError{Kind: domain.VaultCorrupt, Err: err}
	}

	rec := keyRecord{KeyType: kt, Sealed: sealed, Public: pub, CreatedAt: createdAt}
	copy(rec.Salt[:], salt)
	copy(rec.Nonce[:], nonce)

	return atomicWriteFile(path, encodeKeyRecord(rec), 0o600)
}

func atomicWriteFile(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("vault: create temp file: %w", err)
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("vault: write temp file: %w", err)
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		return fmt.Errorf("vault: chmod temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("vault: close temp file: %w", err)
	}
	return os.Rename(tmp, path)
}
