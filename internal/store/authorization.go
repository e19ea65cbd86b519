package store

import (
	"context"
	"time"

	"github.com/expense-tracker/authgate/internal/models"
)

// Authorization request operations

func (s *Store) CreateAuthorizationRequest(
	ctx context.Context,
	req *models.AuthorizationRequest,
) error {
	return s.db.WithContext(ctx).Create(req).Error
}

func (s *Store) GetAuthorizationRequest(
	ctx context.Context,
	requestID string,
) (*models.AuthorizationRequest, error) {
	var req models.AuthorizationRequest
	if err := s.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		First(&req).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &req, nil
}

// ConsumeAuthorizationRequest flips consumed_at only if the request is still
// unconsumed and unexpired at now. Exactly one concurrent caller succeeds;
// the others get ErrAuthRequestNotUsable.
func (s *Store) ConsumeAuthorizationRequest(
	ctx context.Context,
	requestID string,
	now time.Time,
) error {
	now = now.UTC()
	res := s.db.WithContext(ctx).
		Model(&models.AuthorizationRequest{}).
		Where("request_id = ? AND consumed_at IS NULL AND expires_at > ?", requestID, now).
		Update("consumed_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAuthRequestNotUsable
	}
	return nil
}

// Authorization code operations

func (s *Store) CreateAuthorizationCode(ctx context.Context, code *models.AuthorizationCode) error {
	return s.db.WithContext(ctx).Create(code).Error
}

func (s *Store) GetAuthorizationCodeByHash(
	ctx context.Context,
	codeHash string,
) (*models.AuthorizationCode, error) {
	var code models.AuthorizationCode
	if err := s.db.WithContext(ctx).
		Where("code_hash = ?", codeHash).
		First(&code).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &code, nil
}

// RedeemAuthorizationCode atomically marks the code redeemed. It returns
// ErrAuthCodeNotUsable when the code was already redeemed (possibly by a
// concurrent request) or expired before now.
func (s *Store) RedeemAuthorizationCode(ctx context.Context, codeHash string, now time.Time) error {
	now = now.UTC()
	res := s.db.WithContext(ctx).
		Model(&models.AuthorizationCode{}).
		Where("code_hash = ? AND redeemed_at IS NULL AND expires_at > ?", codeHash, now).
		Update("redeemed_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAuthCodeNotUsable
	}
	return nil
}

// DeleteExpiredAuthorizationRecords purges requests and codes whose expiry
// passed before the cutoff. Consumed or redeemed rows past expiry go too.
func (s *Store) DeleteExpiredAuthorizationRecords(
	ctx context.Context,
	cutoff time.Time,
) (requests, codes int64, err error) {
	cutoff = cutoff.UTC()

	res := s.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&models.AuthorizationCode{})
	if res.Error != nil {
		return 0, 0, res.Error
	}
	codes = res.RowsAffected

	res = s.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&models.AuthorizationRequest{})
	if res.Error != nil {
		return 0, codes, res.Error
	}
	return res.RowsAffected, codes, nil
}
