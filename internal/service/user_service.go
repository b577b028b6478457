package service

import (
	"context"
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"

	"linkshorty/internal/apperr"
	"linkshorty/internal/auth"
	"linkshorty/internal/domain"
	"linkshorty/internal/repository"
)

const (
	MsgDuplicateUser      = "User with this username already exists"
	MsgInvalidCredentials = "Invalid username or password"
	MsgUnauthenticated    = "User is not authenticated"

	msgRegisterFailed = "Internal server error during registration"
	msgLoginFailed    = "Internal server error during login"
)

// TokenIssuer mints access tokens for a user id.
type TokenIssuer interface {
	Issue(userID int64) (string, error)
}

// AuthResult is returned by successful register and login calls.
type AuthResult struct {
	User  domain.Identity
	Token string
}

// UserService describes the register, login and profile flows.
type UserService interface {
	Register(ctx context.Context, username, password string) (*AuthResult, error)
	Login(ctx context.Context, username, password string) (*AuthResult, error)
	Profile(identity *domain.Identity) (domain.Identity, error)
}

type userService struct {
	users    repository.UserRepository
	hasher   auth.PasswordHasher
	tokens   TokenIssuer
	validate *validator.Validate

	dummyOnce sync.Once
	dummyHash string
}

func NewUserService(users repository.UserRepository, hasher auth.PasswordHasher, tokens TokenIssuer) UserService {
	return &userService{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		validate: newValidator(),
	}
}

func (s *userService) Register(ctx context.Context, username, password string) (*AuthResult, error) {
	if err := validateInput(s.validate, registerInput{Username: username, Password: password}); err != nil {
		return nil, err
	}

	_, err := s.users.GetByUsername(ctx, username)
	switch {
	case err == nil:
		return nil, apperr.New(apperr.KindDuplicateUser, MsgDuplicateUser)
	case !errors.Is(err, repository.ErrUserNotFound):
		return nil, apperr.Internal(msgRegisterFailed, err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperr.Internal(msgRegisterFailed, err)
	}

	user := &domain.User{
		Username:     username,
		PasswordHash: hash,
	}
	if _, err := s.users.Create(ctx, user); err != nil {
		// lost a race with a concurrent registration of the same name
		if errors.Is(err, repository.ErrUserExists) {
			return nil, apperr.Wrap(apperr.KindDuplicateUser, MsgDuplicateUser, err)
		}
		return nil, apperr.Internal(msgRegisterFailed, err)
	}

	return s.issue(user, msgRegisterFailed)
}

func (s *userService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	if err := validateInput(s.validate, loginInput{Username: username, Password: password}); err != nil {
		return nil, err
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// burn the same bcrypt time as a real check so unknown names are not faster
			s.hasher.Verify(password, s.timingHash())
			return nil, apperr.New(apperr.KindInvalidCredentials, MsgInvalidCredentials)
		}
		return nil, apperr.Internal(msgLoginFailed, err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, apperr.New(apperr.KindInvalidCredentials, MsgInvalidCredentials)
	}

	return s.issue(user, msgLoginFailed)
}

func (s *userService) Profile(identity *domain.Identity) (domain.Identity, error) {
	if identity == nil {
		return domain.Identity{}, apperr.New(apperr.KindUnauthenticated, MsgUnauthenticated)
	}
	return *identity, nil
}

func (s *userService) issue(user *domain.User, failureMsg string) (*AuthResult, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, apperr.Internal(failureMsg, err)
	}
	return &AuthResult{User: user.Identity(), Token: token}, nil
}

func (s *userService) timingHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("timing-equalizer-password")
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}
