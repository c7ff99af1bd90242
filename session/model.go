package session

// Session is one login session as persisted in Redis. TokenFP is the
// hex token fingerprint the row is keyed by; it is set on read and never
// stored inside the blob.
//
// LineageStart is the creation instant of the first session in this
// rotation chain. Rotation copies it unchanged, so the absolute lifetime
// ceiling is always measured from the original login.
type Session struct {
	TokenFP string

	ID     string
	UserID string
	Role   string

	Revoked bool

	CSRFFingerprint [32]byte
	IPHash          [32]byte
	UserAgentHash   [32]byte

	CreatedAt    int64
	UpdatedAt    int64
	ExpiresAt    int64
	LineageStart int64
}
