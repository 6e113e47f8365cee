// ABOUTME: Signed-URL lease fetching with expiry derived from the embedded JWT.
// ABOUTME: The lease TTL (~1h) is unrelated to, and never coordinated with, session TTL.

package session

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/parley/internal/api"
)

// defaultLeaseTTL is the fallback lease lifetime when neither the response
// nor the token carries an expiry.
const defaultLeaseTTL = time.Hour

// Lease is a time-bounded authorization for establishing a voice
// connection. Its expiry has nothing to do with the session registration
// TTL; a live lease can outlast an expired session and vice versa.
type Lease struct {
	AgentID   string
	SignedURL string
	ExpiresAt time.Time
}

// Expired reports whether the lease has lapsed at the given instant.
func (l *Lease) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// LeaseSource is what the lease fetcher needs from the API layer.
type LeaseSource interface {
	GetSignedURL(ctx context.Context, agentID string) (*api.SignedURL, error)
}

// FetchLease obtains a signed connection URL for the optional agent id.
// When the backend omits expiresAt the expiry is recovered from the signed
// URL's embedded token (an unverified parse; the client only needs the
// timestamp, not trust), falling back to one hour from now.
func FetchLease(ctx context.Context, src LeaseSource, agentID string, logger *slog.Logger) (*Lease, error) {
	if logger == nil {
		logger = slog.Default()
	}

	signed, err := src.GetSignedURL(ctx, agentID)
	if err != nil {
		return nil, err
	}

	expiresAt := signed.ExpiresAt
	if expiresAt.IsZero() {
		if exp, ok := expiryFromToken(signed.SignedURL); ok {
			expiresAt = exp
		} else {
			expiresAt = time.Now().Add(defaultLeaseTTL)
			logger.Debug("signed url carries no expiry, assuming default lease TTL")
		}
	}

	return &Lease{
		AgentID:   agentID,
		SignedURL: signed.SignedURL,
		ExpiresAt: expiresAt,
	}, nil
}

// expiryFromToken pulls the exp claim out of the token query parameter of a
// signed URL. The signature is not checked; the server remains the
// authority, this only informs client-side display.
func expiryFromToken(rawURL string) (time.Time, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return time.Time{}, false
	}
	token := u.Query().Get("token")
	if token == "" {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
