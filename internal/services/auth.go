package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/expense-tracker/authgate/internal/core"
	"github.com/expense-tracker/authgate/internal/identity"
	"github.com/expense-tracker/authgate/internal/models"

	"go.uber.org/zap"
)

// LoginResult is a browser session: the access token and the signed-in user.
type LoginResult struct {
	Token *core.TokenResult
	User  *models.User
}

// AuthService signs browser users in with a Google ID token.
type AuthService struct {
	identity core.IdentityProvider
	users    *UserService
	tokens   core.TokenProvider
	logger   *zap.Logger
	metrics  core.Recorder
}

func NewAuthService(
	idp core.IdentityProvider,
	users *UserService,
	tokens core.TokenProvider,
	logger *zap.Logger,
	recorder core.Recorder,
) *AuthService {
	return &AuthService{
		identity: idp,
		users:    users,
		tokens:   tokens,
		logger:   logger,
		metrics:  recorder,
	}
}

// LoginWithAssertion verifies the assertion, upserts the user and issues a
// session token. Verification failures collapse into ErrSignInFailed, except
// an unreachable provider which yields ErrIdentityUnavailable.
func (s *AuthService) LoginWithAssertion(ctx context.Context, assertion string) (*LoginResult, error) {
	res, err := s.login(ctx, strings.TrimSpace(assertion))
	s.metrics.RecordLogin("assertion", err == nil)
	return res, err
}

func (s *AuthService) login(ctx context.Context, assertion string) (*LoginResult, error) {
	if assertion == "" {
		return nil, ErrSignInFailed
	}

	ext, err := s.identity.Verify(ctx, assertion)
	if err != nil {
		if identity.IsProviderUnavailable(err) {
			return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrSignInFailed, err)
	}

	user, err := s.users.UpsertFromIdentity(ctx, ext)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, fmt.Errorf("%w: %v", ErrSignInFailed, err)
		}
		return nil, err
	}

	tok, err := s.tokens.Issue(core.TokenSubject{
		UserID:  user.ID,
		Email:   user.Email,
		IsAdmin: user.IsAdmin,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTokenIssued(core.TokenCategoryAccess, "login")
	s.logger.Info("user signed in", zap.String("user_id", user.ID), zap.Bool("is_admin", user.IsAdmin))

	return &LoginResult{Token: tok, User: user}, nil
}
