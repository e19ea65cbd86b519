package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/expense-tracker/authgate/internal/config"
	"github.com/expense-tracker/authgate/internal/core"
	"github.com/expense-tracker/authgate/internal/models"
	"github.com/expense-tracker/authgate/internal/store"

	"go.uber.org/zap"
)

// Actor recorded for admin grants made from ADMIN_EMAILS rather than by a user.
const bootstrapActor = "bootstrap"

// UserService owns the user directory policy: profile upserts, admin
// bootstrap and elevation. Reads go through a cache-aside user cache.
type UserService struct {
	store        *store.Store
	cache        core.Cache[models.User]
	cacheTTL     time.Duration
	adminEmails  func(email string) bool
	requireAdmin bool
	logger       *zap.Logger
	metrics      core.Recorder
}

func NewUserService(
	s *store.Store,
	cfg *config.Config,
	userCache core.Cache[models.User],
	logger *zap.Logger,
	recorder core.Recorder,
) *UserService {
	return &UserService{
		store:        s,
		cache:        userCache,
		cacheTTL:     cfg.UserCacheTTL,
		adminEmails:  cfg.IsAdminEmail,
		requireAdmin: cfg.RequireAdmin,
		logger:       logger,
		metrics:      recorder,
	}
}

func userCacheKey(id string) string {
	return "user:" + id
}

// UpsertFromIdentity records a freshly verified identity. The first call for
// a subject creates the user; later calls refresh the profile fields.
// ADMIN_EMAILS is consulted only when the user is created, so a later
// demotion sticks across sign-ins.
func (s *UserService) UpsertFromIdentity(
	ctx context.Context,
	id *core.ExternalIdentity,
) (*models.User, error) {
	user, created, err := s.store.UpsertUser(ctx, id.SubjectID, id.Email, id.Name, id.PictureURL)
	if err != nil {
		if errors.Is(err, store.ErrEmailConflict) {
			s.logger.Warn("email already bound to another subject",
				zap.String("email", id.Email), zap.String("subject_id", id.SubjectID))
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	s.invalidate(ctx, user.ID)

	if created && id.EmailVerified && s.adminEmails(user.Email) {
		promoted, err := s.store.SetUserAdmin(ctx, user.ID, true, false)
		if err != nil {
			return nil, fmt.Errorf("grant bootstrap admin: %w", err)
		}
		s.invalidate(ctx, user.ID)
		s.metrics.RecordAdminChange("grant")
		s.logger.Info("admin granted",
			zap.String("actor", bootstrapActor),
			zap.String("user_id", promoted.ID),
			zap.String("email", promoted.Email))
		user = promoted
	}

	return user, nil
}

// GetUser returns the user by internal id.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.cache.GetWithFetch(ctx, userCacheKey(id), s.cacheTTL,
		func(ctx context.Context, _ string) (models.User, error) {
			u, err := s.store.GetUserByID(ctx, id)
			if err != nil {
				return models.User{}, err
			}
			return *u, nil
		},
	)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *UserService) ListUsers(
	ctx context.Context,
	params store.PaginationParams,
) ([]models.User, store.PaginationResult, error) {
	return s.store.ListUsers(ctx, params)
}

// SetAdmin changes the admin flag of target on behalf of actor. Only an actor
// whose credential and current directory record both say admin may call it.
// With REQUIRE_ADMIN the last remaining admin cannot be demoted.
func (s *UserService) SetAdmin(
	ctx context.Context,
	actor *models.Identity,
	targetID string,
	isAdmin bool,
) (*models.User, error) {
	if actor == nil || !actor.IsAdmin {
		return nil, ErrForbidden
	}
	current, err := s.store.GetUserByID(ctx, actor.UserID)
	if err != nil || !current.IsAdmin {
		s.logger.Warn("admin change refused: actor no longer admin", zap.String("actor", actor.UserID))
		return nil, ErrForbidden
	}

	user, err := s.store.SetUserAdmin(ctx, targetID, isAdmin, s.requireAdmin)
	switch {
	case errors.Is(err, store.ErrRecordNotFound):
		return nil, ErrUserNotFound
	case errors.Is(err, store.ErrLastAdmin):
		return nil, ErrLastAdmin
	case err != nil:
		return nil, fmt.Errorf("set admin: %w", err)
	}
	s.invalidate(ctx, targetID)

	action := "grant"
	if !isAdmin {
		action = "revoke"
	}
	s.metrics.RecordAdminChange(action)
	s.logger.Info("admin "+action,
		zap.String("actor", actor.UserID),
		zap.String("user_id", user.ID),
		zap.String("email", user.Email))

	return user, nil
}

func (s *UserService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, userCacheKey(id)); err != nil {
		s.logger.Warn("user cache invalidation failed", zap.String("user_id", id), zap.Error(err))
	}
}
