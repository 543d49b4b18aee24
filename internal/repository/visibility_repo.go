package repository

import (
	"context"

	"backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type VisibilityRepository interface {
	ListAll(ctx context.Context) ([]model.RoleFeatureVisibility, error)
	Upsert(ctx context.Context, entry *model.RoleFeatureVisibility) error
	BulkUpsert(ctx context.Context, entries []model.RoleFeatureVisibility) (int, error)
}

type visibilityRepository struct {
	db *gorm.DB
}

func NewVisibilityRepository(db *gorm.DB) VisibilityRepository {
	return &visibilityRepository{db: db}
}

func (r *visibilityRepository) ListAll(ctx context.Context) ([]model.RoleFeatureVisibility, error) {
	var entries []model.RoleFeatureVisibility
	if err := GetDB(ctx, r.db).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Upsert writes a visibility entry, overwriting an existing row for the same
// (role, feature) pair. Rows are never deleted; absence means "not active".
func (r *visibilityRepository) Upsert(ctx context.Context, entry *model.RoleFeatureVisibility) error {
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "role_id"}, {Name: "feature_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"app_id", "is_visible", "is_enabled", "configuration", "updated_at"}),
	}).Create(entry).Error
}

func (r *visibilityRepository) BulkUpsert(ctx context.Context, entries []model.RoleFeatureVisibility) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	err := GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "role_id"}, {Name: "feature_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"app_id", "is_visible", "is_enabled", "configuration", "updated_at"}),
	}).Create(&entries).Error
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}
