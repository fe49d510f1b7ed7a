package repository

import (
	"certify_backend/internal/model"
	"context"
	"errors"

	"gorm.io/gorm"
)

// ProgressRepository 课程进度只读访问，写入由学习流程负责
type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

func (r *ProgressRepository) FindByUserAndCourse(ctx context.Context, userID uint, courseSlug string) (*model.CourseProgress, error) {
	var p model.CourseProgress
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND course_slug = ?", userID, courseSlug).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
