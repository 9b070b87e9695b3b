package gcal

import (
	"context"
	"errors"
)

// ErrNoToken signals that no calendar credential is available. Callers treat
// it as a skip condition, not a failure.
var ErrNoToken = errors.New("gcal: no access token available")

// TokenSource yields the calendar credential for a professional. The
// interface is keyed by professional id so per-professional OAuth grants can
// be slotted in later; the shipped implementation returns one operator
// credential for everyone, which is the known limitation of the current
// deployment (all professionals sync against a single calendar identity).
type TokenSource interface {
	Token(ctx context.Context, professionalID string) (string, error)
}

// StaticTokenSource returns a fixed operator token for every professional.
type StaticTokenSource struct {
	AccessToken string
}

// Token returns the configured token or ErrNoToken when unset.
func (s *StaticTokenSource) Token(context.Context, string) (string, error) {
	if s == nil || s.AccessToken == "" {
		return "", ErrNoToken
	}
	return s.AccessToken, nil
}

var _ TokenSource = (*StaticTokenSource)(nil)
