package authcore

import (
	"context"

	"github.com/vantor-labs/authcore/jwt"
)

// AccessClaims is the verified claim set of a stateless access token.
type AccessClaims = jwt.AccessClaims

// MintAccessToken validates the presented session and issues a
// short-lived signed access token bound to it. The token outlives
// neither its TTL nor meaningfully lags session revocation: the TTL is
// the revocation horizon, which is why it defaults to minutes.
func (e *Engine) MintAccessToken(ctx context.Context, sessionToken string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	if e.access == nil {
		return "", ErrAccessTokensDisabled
	}

	sess, err := e.resolveSession(ctx, sessionToken)
	if err != nil {
		return "", err
	}

	accessToken, err := e.access.CreateAccess(sess.UserID, sess.ID, sess.Role)
	if err != nil {
		return "", ErrTokenInvalid
	}
	return accessToken, nil
}

// VerifyAccessToken checks signature and expiry without touching
// storage. Hosts that need hard revocation must validate the session
// instead.
func (e *Engine) VerifyAccessToken(tokenStr string) (*AccessClaims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.access == nil {
		return nil, ErrAccessTokensDisabled
	}

	claims, err := e.access.ParseAccess(tokenStr)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
