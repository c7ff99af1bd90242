// Package authcore is an embeddable authentication core: opaque
// fingerprint-keyed sessions in Redis, argon2id credential hashing,
// consume-once verification tokens, and brute-force lockout, behind a
// single Engine the host wires into its own transport.
//
// The package is designed for concurrent server workloads: Engine
// methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder],
// [Config], sentinel errors, and value types (SessionInfo, LoginResult,
// MetricsSnapshot, etc.). Storage adapters live in sub-packages
// (session, verification, password, token); audit dispatch and the
// built-in rate limiter live under internal/ and are never exported.
//
// # What the host owns
//
// User persistence (the [UserStore] interface), email delivery (the
// [Mailer] interface), and the transport layer: cookies, headers, and
// HTTP itself never appear in this module. The engine hands out
// plaintext secrets exactly once, at mint time; storage only ever sees
// their fingerprints.
//
// # Performance contract
//
// ValidateSession is the hot path: one Redis round-trip, two HMACs, no
// allocation beyond the returned SessionInfo. Login and the lifecycle
// flows are allowed an argon2 derivation plus a handful of round-trips.
package authcore
