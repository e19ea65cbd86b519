package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/expense-tracker/authgate/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertUser creates the user for subjectID on first sight and refreshes the
// displayable fields afterwards. id and is_admin are never touched by the
// update; the unique index on subject_id decides races. created reports
// whether this call inserted the row.
func (s *Store) UpsertUser(
	ctx context.Context,
	subjectID, email, name, pictureURL string,
) (user *models.User, created bool, err error) {
	now := time.Now().UTC()
	newID := uuid.New().String()
	candidate := models.User{
		ID:         newID,
		SubjectID:  subjectID,
		Email:      email,
		Name:       name,
		PictureURL: pictureURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "subject_id"}},
		DoUpdates: clause.AssignmentColumns(
			[]string{"email", "name", "picture_url", "updated_at"},
		),
	}).Create(&candidate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, false, ErrEmailConflict
		}
		return nil, false, err
	}

	user, err = s.GetUserBySubjectID(ctx, subjectID)
	if err != nil {
		return nil, false, err
	}
	return user, user.ID == newID, nil
}

func (s *Store) GetUserBySubjectID(ctx context.Context, subjectID string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("subject_id = ?", subjectID).First(&user).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &user, nil
}

// ListUsers returns one page of users ordered by creation time.
func (s *Store) ListUsers(
	ctx context.Context,
	params PaginationParams,
) ([]models.User, PaginationResult, error) {
	query := s.db.WithContext(ctx).Model(&models.User{})
	if search := strings.TrimSpace(params.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(name) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, PaginationResult{}, err
	}

	var users []models.User
	if err := query.
		Order("created_at ASC").
		Order("id ASC").
		Offset(params.offset()).
		Limit(params.PageSize).
		Find(&users).Error; err != nil {
		return nil, PaginationResult{}, err
	}

	return users, CalculatePagination(total, params.Page, params.PageSize), nil
}

// CountAdmins returns how many users currently hold the admin flag.
func (s *Store) CountAdmins(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("is_admin = ?", true).Count(&n).Error
	return n, err
}

// SetUserAdmin sets the admin flag of a user in a single conditional update.
// With keepOneAdmin, a demotion only applies while some other admin exists;
// otherwise ErrLastAdmin is returned and nothing changes.
func (s *Store) SetUserAdmin(
	ctx context.Context,
	userID string,
	isAdmin, keepOneAdmin bool,
) (*models.User, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		update := tx.Model(&models.User{}).Where("id = ?", userID)

		if !isAdmin && keepOneAdmin {
			if s.isPostgres() {
				// Lock admin rows so two concurrent demotions cannot both see the other as the survivor.
				var admins []models.User
				if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
					Where("is_admin = ?", true).
					Find(&admins).Error; err != nil {
					return err
				}
			}
			update = update.Where(
				"(SELECT COUNT(*) FROM users AS others WHERE others.is_admin = ? AND others.id <> ?) > 0",
				true, userID,
			)
		}

		res := update.Updates(map[string]any{
			"is_admin":   isAdmin,
			"updated_at": time.Now().UTC(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		var exists int64
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return ErrRecordNotFound
		}
		return ErrLastAdmin
	})
	if err != nil {
		return nil, err
	}

	return s.GetUserByID(ctx, userID)
}
