package authcore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vantor-labs/authcore/session"
	"github.com/vantor-labs/authcore/token"
)

// mintedSession carries a freshly created session and the one-time
// plaintext secrets that go back to the client.
type mintedSession struct {
	sess         *session.Session
	sessionToken string
	csrfToken    string
}

// createSession mints session and CSRF secrets, binds request metadata
// hashes, and persists the row. lineageStart of zero starts a new
// rotation chain at now; a non-zero value continues an existing chain
// (rotation). reuseCSRF carries an existing CSRF binding forward
// instead of minting a new secret.
func (e *Engine) createSession(
	ctx context.Context,
	userID, role string,
	enforceCap bool,
	lineageStart int64,
	reuseCSRF bool,
	csrfFP [32]byte,
) (*mintedSession, error) {
	secret, fp, err := e.codec.Issue()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	csrfToken := ""
	if !reuseCSRF {
		var csrfFingerprint token.Fingerprint
		csrfToken, csrfFingerprint, err = e.codec.IssueCSRF()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		csrfFP = csrfFingerprint
	}

	id, err := token.NewID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	now := e.now()
	if lineageStart == 0 {
		lineageStart = now.Unix()
	}
	expiresAt := now.Add(e.config.Session.TTL).Unix()
	if ceiling := lineageStart + int64(e.config.Session.AbsoluteLifetime/time.Second); expiresAt > ceiling {
		expiresAt = ceiling
	}

	ipHash, uaHash := e.metadataHashes(ctx)
	sess := &session.Session{
		TokenFP:         hex.EncodeToString(fp[:]),
		ID:              id,
		UserID:          userID,
		Role:            role,
		CSRFFingerprint: csrfFP,
		IPHash:          ipHash,
		UserAgentHash:   uaHash,
		CreatedAt:       now.Unix(),
		UpdatedAt:       now.Unix(),
		ExpiresAt:       expiresAt,
		LineageStart:    lineageStart,
	}

	maxActive := 0
	if enforceCap {
		maxActive = e.config.Session.MaxSessionsPerUser
	}
	ttl := time.Unix(expiresAt, 0).Sub(now)
	if ttl <= 0 {
		// Chain already at its ceiling; nothing to mint.
		return nil, ErrSessionExpired
	}

	err = e.sessions.Save(ctx, sess, ttl, maxActive, e.config.Session.EvictOldestAtCap)
	if err != nil {
		if errors.Is(err, session.ErrLimitExceeded) {
			e.metricInc(MetricSessionLimitHit)
			return nil, ErrSessionLimitExceeded
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricSessionCreated)
	return &mintedSession{sess: sess, sessionToken: secret, csrfToken: csrfToken}, nil
}

// resolveSession maps a presented token to its live session row.
// Expiry observed here is persisted through the conditional revoke so
// a concurrent rotation cannot resurrect the session.
func (e *Engine) resolveSession(ctx context.Context, sessionToken string) (*session.Session, error) {
	if sessionToken == "" {
		return nil, ErrSessionNotFound
	}

	fp := e.codec.Fingerprint(sessionToken)
	fpHex := hex.EncodeToString(fp[:])

	sess, err := e.sessions.Get(ctx, fpHex)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if sess.Revoked {
		return nil, ErrSessionRevoked
	}

	if e.now().Unix() > sess.ExpiresAt {
		if _, revokeErr := e.sessions.Revoke(ctx, fpHex); revokeErr == nil {
			e.metricInc(MetricSessionInvalidated)
		}
		e.emitAudit(ctx, auditEventSessionExpired, false, sess.UserID, sess.ID, ErrSessionExpired, nil)
		return nil, ErrSessionExpired
	}

	return sess, nil
}

// checkCSRF verifies a bound CSRF secret. An empty secret skips the
// check: read-only endpoints may validate without one, and hosts that
// disable CSRF protection never supply it.
func (e *Engine) checkCSRF(ctx context.Context, sess *session.Session, csrfSecret string) error {
	if !e.config.Security.CSRFProtection || csrfSecret == "" {
		return nil
	}
	if !e.codec.VerifyCSRF(csrfSecret, sess.CSRFFingerprint) {
		e.metricInc(MetricCSRFRejected)
		e.emitAudit(ctx, auditEventCSRFRejected, false, sess.UserID, sess.ID, ErrCSRFInvalid, nil)
		return ErrCSRFInvalid
	}
	return nil
}

// detectMetadataChange compares the request's IP and User-Agent hashes
// against the ones bound at session creation. Detection only: changes
// are audited and counted, never rejected, since NAT and mobile
// networks make both volatile.
func (e *Engine) detectMetadataChange(ctx context.Context, sess *session.Session) {
	if !e.config.Security.DetectMetadataChange {
		return
	}

	ipHash, uaHash := e.metadataHashes(ctx)
	var zero [32]byte
	ipChanged := ipHash != zero && sess.IPHash != zero && ipHash != sess.IPHash
	uaChanged := uaHash != zero && sess.UserAgentHash != zero && uaHash != sess.UserAgentHash
	if !ipChanged && !uaChanged {
		return
	}

	e.metricInc(MetricMetadataChange)
	e.emitAudit(ctx, auditEventMetadataChange, true, sess.UserID, sess.ID, nil, func() map[string]string {
		return map[string]string{
			"ip_changed": fmt.Sprintf("%t", ipChanged),
			"ua_changed": fmt.Sprintf("%t", uaChanged),
		}
	})
}

// ValidateSession authenticates a request. It verifies the token
// fingerprint, terminality, expiry, and (when a secret is supplied)
// the CSRF binding. It never rotates; use CurrentSession for that.
func (e *Engine) ValidateSession(ctx context.Context, sessionToken, csrfSecret string) (SessionInfo, error) {
	if e == nil {
		return SessionInfo{}, ErrEngineNotReady
	}
	start := time.Now()
	defer func() { e.metricObserve(MetricValidateLatency, time.Since(start)) }()

	sess, err := e.resolveSession(ctx, sessionToken)
	if err != nil {
		return SessionInfo{}, err
	}
	if err := e.checkCSRF(ctx, sess, csrfSecret); err != nil {
		return SessionInfo{}, err
	}
	e.detectMetadataChange(ctx, sess)

	return sessionInfo(sess), nil
}

// CurrentSession validates like ValidateSession and additionally
// rotates the session when it has aged past the rolling interval. On
// rotation the result carries the replacement secrets; the old token
// is revoked and stops working immediately.
//
// Two concurrent calls can both mint a replacement; the conditional
// revoke decides the winner and the loser's replacement remains a
// valid member of the same lineage. Clients keep whichever token they
// received.
func (e *Engine) CurrentSession(ctx context.Context, sessionToken, csrfSecret string) (*CurrentSessionResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() { e.metricObserve(MetricValidateLatency, time.Since(start)) }()

	sess, err := e.resolveSession(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	if err := e.checkCSRF(ctx, sess, csrfSecret); err != nil {
		return nil, err
	}
	e.detectMetadataChange(ctx, sess)

	now := e.now()
	interval := e.config.Session.RollingInterval
	if interval <= 0 || now.Sub(time.Unix(sess.UpdatedAt, 0)) <= interval {
		return &CurrentSessionResult{Session: sessionInfo(sess)}, nil
	}

	// Rotation is due. A chain at its absolute lifetime ceiling is
	// hard-expired instead of rotated.
	ceiling := time.Unix(sess.LineageStart, 0).Add(e.config.Session.AbsoluteLifetime)
	if !now.Before(ceiling) {
		if _, revokeErr := e.sessions.Revoke(ctx, sess.TokenFP); revokeErr == nil {
			e.metricInc(MetricSessionInvalidated)
		}
		e.emitAudit(ctx, auditEventSessionExpired, false, sess.UserID, sess.ID, ErrSessionExpired, nil)
		return nil, ErrSessionExpired
	}

	reuseCSRF := !e.config.Session.RekeyCSRFOnRotate
	minted, err := e.createSession(ctx, sess.UserID, sess.Role, false, sess.LineageStart, reuseCSRF, sess.CSRFFingerprint)
	if err != nil {
		return nil, err
	}
	status, err := e.sessions.Revoke(ctx, sess.TokenFP)
	if err != nil {
		// The replacement is already live; surface it and let the old
		// row die by TTL.
		status = session.RevokeNotFound
	}

	e.metricInc(MetricSessionRotated)
	e.emitAudit(ctx, auditEventSessionRotated, true, sess.UserID, sess.ID, nil, func() map[string]string {
		return map[string]string{"revoke_won": fmt.Sprintf("%t", status == session.RevokeWinner)}
	})

	return &CurrentSessionResult{
		Session:      sessionInfo(minted.sess),
		Rotated:      true,
		SessionToken: minted.sessionToken,
		CSRFToken:    minted.csrfToken,
	}, nil
}

// Logout revokes the presented session. Idempotent: an unknown or
// already-revoked token is a successful logout.
func (e *Engine) Logout(ctx context.Context, sessionToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if sessionToken == "" {
		return nil
	}

	fp := e.codec.Fingerprint(sessionToken)
	fpHex := hex.EncodeToString(fp[:])

	status, err := e.sessions.Revoke(ctx, fpHex)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if status == session.RevokeWinner {
		e.metricInc(MetricLogout)
		e.metricInc(MetricSessionInvalidated)
		e.emitAudit(ctx, auditEventLogoutSession, true, "", "", nil, nil)
	}
	return nil
}

// RevokeSession revokes one of userID's sessions by its fingerprint,
// as listed by ListSessions. A fingerprint belonging to another user
// reports ErrSessionNotFound.
func (e *Engine) RevokeSession(ctx context.Context, userID, fingerprint string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	sess, err := e.sessions.Get(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if sess.UserID != userID {
		return ErrSessionNotFound
	}
	if sess.Revoked {
		return nil
	}

	if _, err := e.sessions.Revoke(ctx, fingerprint); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventSessionRevoked, true, userID, sess.ID, nil, nil)
	return nil
}

// RevokeAllSessions revokes every active session of a user. Used on
// password reset, email change, account deletion, and host-initiated
// "log out everywhere".
func (e *Engine) RevokeAllSessions(ctx context.Context, userID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	revoked, err := e.sessions.RevokeAllForUser(ctx, userID)
	if err != nil {
		return revoked, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprintf("%d", revoked)}
	})
	return revoked, nil
}

// ListSessions returns the user's active sessions, oldest first.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	fingerprints, err := e.sessions.ActiveFingerprints(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	rows, err := e.sessions.GetMany(ctx, fingerprints)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	infos := make([]SessionInfo, 0, len(rows))
	for _, row := range rows {
		infos = append(infos, sessionInfo(row))
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos, nil
}
