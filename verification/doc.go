// Package verification is the one-time token ledger backing email
// confirmation, password reset, email change, and account deletion.
//
// Records are keyed by the SHA-256 of the opaque token, so the store
// never holds a usable credential. Consumption is a WATCH/MULTI
// compare-and-swap: every predicate is re-checked inside the transaction
// and usedAt is written in the same atomic update that returns the
// record, so concurrent consumers resolve to exactly one winner. Used
// and expired records are retained for a bounded window, keeping
// "already used" and "expired" distinguishable from "not found".
package verification
