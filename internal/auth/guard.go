package auth

import (
	"context"
	"errors"
	"strings"

	"linkshorty/internal/apperr"
	"linkshorty/internal/domain"
	"linkshorty/internal/repository"
)

const (
	MsgMissingToken = "Access token not provided"
	MsgInvalidToken = "Invalid token"
	MsgUserGone     = "User not found"
	msgGuardFailure = "Internal server error while verifying token"
)

// TokenVerifier resolves a token string into a user id.
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

// Guard turns an Authorization header into a fresh identity.
type Guard struct {
	tokens TokenVerifier
	users  repository.UserRepository
}

func NewGuard(tokens TokenVerifier, users repository.UserRepository) *Guard {
	return &Guard{tokens: tokens, users: users}
}

// Authenticate verifies the bearer token in header and re-reads its subject
// from the directory, so tokens of users that no longer exist stop working.
func (g *Guard) Authenticate(ctx context.Context, header string) (domain.Identity, error) {
	token, ok := BearerToken(header)
	if !ok {
		return domain.Identity{}, apperr.New(apperr.KindMissingToken, MsgMissingToken)
	}

	userID, err := g.tokens.Verify(token)
	if err != nil {
		// expired and forged tokens look the same to the client
		return domain.Identity{}, apperr.Wrap(apperr.KindInvalidToken, MsgInvalidToken, err)
	}

	user, err := g.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return domain.Identity{}, apperr.Wrap(apperr.KindUserGone, MsgUserGone, err)
		}
		return domain.Identity{}, apperr.Internal(msgGuardFailure, err)
	}

	return user.Identity(), nil
}

// BearerToken extracts the credential from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
