// Package session stores login sessions in Redis, keyed by token
// fingerprint.
//
// Rows are versioned binary blobs with the revoked flag at a fixed
// offset, which keeps the conditional-revoke Lua script free of variable
// layout parsing. Revocation is a compare-and-swap: at most one caller
// observes the active-to-revoked transition, and revoked rows persist as
// tombstones for a bounded retention window so later lookups can tell
// "revoked" apart from "never existed". Creation enforces the per-user
// active-session cap inside the same script that inserts the row.
package session
