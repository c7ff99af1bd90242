// Package token generates opaque bearer secrets and derives the
// storage-safe fingerprints used to locate them.
//
// A secret exists in plaintext only in the return value of the issuing
// call; everything persisted or logged is a keyed fingerprint from which
// the secret cannot be recovered or forged. Fingerprint derivation is
// deterministic so it can serve as a lookup key; secret generation never
// is.
package token
