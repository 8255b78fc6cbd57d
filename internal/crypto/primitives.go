package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"p2pmsg/internal/domain"
)

// Fingerprint returns the SHA-256 digest of an identity's signing public
// key (spec §3).
func Fingerprint(pub domain.SigningPublic) domain.Fingerprint {
	return domain.Fingerprint(sha256.Sum256(pub[:]))
}

// ErrOpenFailed is returned by Open on AEAD authentication failure. It
// never carries the underlying library error, since that can leak timing
// or content information in logs.
var ErrOpenFailed = errors.New("aead: authentication failed")

// GenerateExchangeKey returns a fresh, RFC 7748-clamped X25519 keypair.
func GenerateExchangeKey() (domain.ExchangePrivate, domain.ExchangePublic, error) {
	var priv domain.ExchangePrivate
	if _, err := rand.Read(priv[:]); err != nil {
		return priv, domain.ExchangePublic{}, err
	}
	clamp(&priv)

	pub, err := curve25519.X25519(priv.Slice(), curve25519.Basepoint)
	if err != nil {
		return priv, domain.ExchangePublic{}, err
	}
	return priv, domain.MustExchangePublic(pub), nil
}

func clamp(k *domain.ExchangePrivate) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}

// GenerateSigningKey returns a fresh Ed25519 keypair.
func GenerateSigningKey() (domain.SigningPrivate, domain.SigningPublic, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return domain.SigningPrivate{}, domain.SigningPublic{}, err
	}
	var sp domain.SigningPrivate
	var pp domain.SigningPublic
	copy(sp[:], priv)
	copy(pp[:], pub)
	return sp, pp, nil
}

// Sign returns an Ed25519 signature over msg.
func Sign(priv domain.SigningPrivate, msg []byte) []byte {
	return ed25519.Sign(ed25519.PrivateKey(priv[:]), msg)
}

// Verify reports whether sig is a valid Ed25519 signature over msg by pub.
// ed25519.Verify runs in constant time with respect to the signature.
func Verify(pub domain.SigningPublic, msg, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig)
}

// ECDH computes the X25519 shared secret between priv and pub. Low-order
// points (an all-zero result) surface as an error from curve25519.X25519
// rather than silently producing a weak shared secret; non-canonical
// encodings are accepted.
func ECDH(priv domain.ExchangePrivate, pub domain.ExchangePublic) ([32]byte, error) {
	var out [32]byte
	secret, err := curve25519.X25519(priv.Slice(), pub.Slice())
	if err != nil {
		return out, err
	}
	copy(out[:], secret)
	return out, nil
}

// HKDF derives outLen bytes from ikm using HKDF-SHA256 per RFC 5869.
func HKDF(ikm, salt, info []byte, outLen int) ([]byte, error) {
	r := hkdf.New(sha256.New, ikm, salt, info)
	out := make([]byte, outLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Seal AEAD-encrypts plaintext with key and nonce, binding aad. It returns
// ciphertext||tag.
func Seal(key, nonce, aad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// Open AEAD-decrypts ciphertext (which includes the trailing tag) with key,
// nonce and aad. Any failure collapses to ErrOpenFailed.
func Open(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, ErrOpenFailed
	}
	pt, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return pt, nil
}

// Argon2Params are the Argon2id tuning knobs fixed in spec §4.B. They are
// not stored in the vault files, so a file opens only under the same
// parameters that sealed it.
type Argon2Params struct {
	TimeCost    uint32
	MemoryKiB   uint32
	Parallelism uint8
}

// DefaultArgon2Params are spec §4.B's fixed defaults: time=2, memory=100MiB,
// parallelism=8.
var DefaultArgon2Params = Argon2Params{TimeCost: 2, MemoryKiB: 100 * 1024, Parallelism: 8}

// DeriveVaultKey runs Argon2id over passphrase and salt, producing a
// 32-byte vault key.
func DeriveVaultKey(passphrase string, salt []byte, p Argon2Params) []byte {
	return argon2.IDKey([]byte(passphrase), salt, p.TimeCost, p.MemoryKiB, p.Parallelism, 32)
}

// Random returns n cryptographically random bytes.
func Random(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
