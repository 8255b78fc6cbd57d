// Package vault is the encrypted-at-rest long-term identity store (spec
// §4.B). It generates, seals and loads the signing and exchange keypairs,
// derives the vault key from a user passphrase with Argon2id, and pins
// peer identity keys on first contact (trust-on-first-use).
//
// Grounded on _examples teacher internal/store/identity_store.go and
// internal/store/file_store.go: atomic write-via-tempfile-then-rename,
// 0600 permissions, passphrase-keyed AEAD-sealed secrets. Generalized from
// the teacher's single JSON blob into spec §4.B's binary VLT1 record
// layout, and from scrypt to Argon2id per spec.
package vault
