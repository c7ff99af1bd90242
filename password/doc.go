// Package password hashes credentials with argon2id and verifies them in
// constant time.
//
// Encoded hashes use the PHC string format and embed the algorithm
// parameters and salt, so hashes minted under older cost settings remain
// verifiable after a cost bump; NeedsUpgrade reports when a stored hash
// lags the active configuration. An optional server-side pepper is mixed
// into the KDF input via HMAC-SHA256, making stored hashes useless to an
// attacker who obtains the database but not the pepper.
package password
