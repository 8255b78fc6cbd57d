package crypto

import "crypto/subtle"

// Zero overwrites b with zeros. It uses subtle.ConstantTimeCopy rather than
// a plain loop so the compiler is less likely to elide the write as dead
// code, the same technique the vault and record layer rely on to satisfy
// the "private key outlives no operation that needs it" invariant.
func Zero(b []byte) {
	if len(b) == 0 {
		return
	}
	zero := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zero)
}

// SecretBytes is a byte slice known to hold sensitive material. Release
// zeroes the backing array; callers should defer it immediately after the
// secret is produced.
type SecretBytes []byte

// Release zeroes the underlying bytes. Safe to call multiple times.
func (s SecretBytes) Release() { Zero(s) }
