package repositories

import (
	"context"

	"hkl-restful/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SignupFilter narrows a listing. Empty fields do not constrain.
type SignupFilter struct {
	UserID string
	City   string // matched case-insensitively
}

// SignupRepository defines Signup-related database operations
type SignupRepository interface {
	Create(ctx context.Context, signup *models.Signup) error
	// FindByID returns the record with its User and Event loaded.
	FindByID(ctx context.Context, id string) (*models.Signup, error)
	// List returns matching records newest first, with User and Event loaded.
	List(ctx context.Context, filter SignupFilter) ([]models.Signup, error)
	Delete(ctx context.Context, id string) error
}

type signupRepository struct {
	db *gorm.DB
}

func NewSignupRepository(db *gorm.DB) SignupRepository {
	return &signupRepository{db: db}
}

// Create inserts the record only; associations are never upserted from here.
func (r *signupRepository) Create(ctx context.Context, signup *models.Signup) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(signup).Error
}

func (r *signupRepository) FindByID(ctx context.Context, id string) (*models.Signup, error) {
	var signup models.Signup
	err := r.db.WithContext(ctx).
		Preload("User").
		Preload("Event").
		First(&signup, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &signup, nil
}

func (r *signupRepository) List(ctx context.Context, filter SignupFilter) ([]models.Signup, error) {
	q := r.db.WithContext(ctx).Model(&models.Signup{}).Preload("User").Preload("Event")
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if key := models.CityKey(filter.City); key != "" {
		q = q.Where("city_key = ?", key)
	}

	signups := []models.Signup{}
	if err := q.Order("created_at DESC").Order("id").Find(&signups).Error; err != nil {
		return nil, err
	}
	return signups, nil
}

// Delete returns ErrNotFound when nothing was removed.
func (r *signupRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.Signup{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
