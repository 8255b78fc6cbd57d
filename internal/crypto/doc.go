// Package crypto is a thin typed façade over the cryptographic primitives
// the core uses: X25519 key agreement, Ed25519 signatures, ChaCha20-Poly1305
// AEAD, HKDF-SHA256, Argon2id, and a CSPRNG. It exists so every other
// package reaches for domain-typed keys and byte slices instead of
// threading raw algorithm choices through the codebase.
//
// Secrets returned from here should be released with Zero once a caller is
// done with them; the vault and record layer do this at every scope exit.
package crypto
