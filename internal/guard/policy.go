package guard

import "time"

// TokenPolicy fixes token lifetimes and the claim set of an issued session.
type TokenPolicy struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// DefaultTokenPolicy issues 15-minute access tokens and 7-day refresh tokens.
var DefaultTokenPolicy = TokenPolicy{
	AccessTTL:  15 * time.Minute,
	RefreshTTL: 7 * 24 * time.Hour,
}

// SessionClaims is what gets signed into a token.
type SessionClaims struct {
	Subject   int64
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issue returns the access and refresh claims for one login. Both carry the
// same session id; the refresh token is stored in the session cache under
// SessionKey(sessionID) for RefreshTTL.
func (p TokenPolicy) Issue(userID int64, sessionID string, now time.Time) (access, refresh SessionClaims) {
	access = SessionClaims{
		Subject:   userID,
		SessionID: sessionID,
		IssuedAt:  now,
		ExpiresAt: now.Add(p.AccessTTL),
	}
	refresh = SessionClaims{
		Subject:   userID,
		SessionID: sessionID,
		IssuedAt:  now,
		ExpiresAt: now.Add(p.RefreshTTL),
	}
	return access, refresh
}

// SessionKey is the session cache key holding a session's refresh token.
func SessionKey(sessionID string) string {
	return "refresh_token:session:" + sessionID
}
