package repository

import (
	"certify_backend/internal/model"
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ContentRepository struct {
	DB *gorm.DB
}

func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{DB: db}
}

func (r *ContentRepository) FindBySlug(ctx context.Context, courseSlug string) (*model.CourseContent, error) {
	var c model.CourseContent
	err := r.DB.WithContext(ctx).Where("course_slug = ?", courseSlug).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Upsert 按课程 slug 写入或覆盖正文
func (r *ContentRepository) Upsert(ctx context.Context, content *model.CourseContent) error {
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "course_slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
	}).Create(content).Error
}
