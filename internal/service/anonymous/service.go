package anonymous

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// Service issues guest identities: an identifier that scopes a guest's
// carts plus bearer tokens that resolve back to it. Identifiers live as
// long as their tokens; the migration service re-homes carts at login.
type Service struct {
	tokens     *tokenManager
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func New() *Service {
	return &Service{
		tokens:     newTokenManager(),
		accessTTL:  3 * time.Hour,
		refreshTTL: 30 * 24 * time.Hour,
	}
}

// Issue mints a fresh guest identifier with an access and a refresh token.
func (s *Service) Issue(ctx context.Context) (accessToken, refreshToken, guestID string, err error) {
	guestID = "guest:" + uuid.NewString()
	accessToken, err = s.tokens.Issue(guestID, s.accessTTL)
	if err != nil {
		return "", "", "", err
	}
	refreshToken, err = s.tokens.Issue(guestID, s.refreshTTL)
	if err != nil {
		return "", "", "", err
	}
	return accessToken, refreshToken, guestID, nil
}

// LookupByToken resolves a token to its guest identifier.
func (s *Service) LookupByToken(ctx context.Context, token string) (string, error) {
	meta, ok := s.tokens.Validate(token)
	if !ok {
		return "", ErrInvalidToken
	}
	return meta.GuestID, nil
}

func (s *Service) AccessTTLSeconds() int {
	return int(s.accessTTL.Seconds())
}
