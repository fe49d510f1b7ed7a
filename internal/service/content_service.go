package service

import (
	"certify_backend/internal/model"
	"certify_backend/internal/repository"
	"certify_backend/pkg/logger"
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const courseContentKeyPrefix = "course_content:"

// ContentService 课程正文读取，Redis 可选作为读穿缓存
type ContentService struct {
	Repo     *repository.ContentRepository
	Redis    *redis.Client
	CacheTTL time.Duration
}

func NewContentService(repo *repository.ContentRepository, rdb *redis.Client, cacheTTL time.Duration) *ContentService {
	return &ContentService{Repo: repo, Redis: rdb, CacheTTL: cacheTTL}
}

// GetContent 返回课程正文，found=false 表示不存在
func (s *ContentService) GetContent(ctx context.Context, courseSlug string) (string, bool, error) {
	key := courseContentKeyPrefix + courseSlug

	if s.Redis != nil {
		val, err := s.Redis.Get(ctx, key).Result()
		if err == nil {
			return val, true, nil
		}
		if err != redis.Nil {
			// 缓存故障不影响主流程
			logger.Log.Warn("content cache read failed", zap.String("course", courseSlug), zap.Error(err))
		}
	}

	content, err := s.Repo.FindBySlug(ctx, courseSlug)
	if err != nil {
		return "", false, err
	}
	if content == nil {
		return "", false, nil
	}

	if s.Redis != nil && s.CacheTTL > 0 {
		if err := s.Redis.Set(ctx, key, content.Content, s.CacheTTL).Err(); err != nil {
			logger.Log.Warn("content cache write failed", zap.String("course", courseSlug), zap.Error(err))
		}
	}

	return content.Content, true, nil
}

// SaveContent 覆盖课程正文并清理缓存
func (s *ContentService) SaveContent(ctx context.Context, courseSlug, text string) error {
	if err := s.Repo.Upsert(ctx, &model.CourseContent{CourseSlug: courseSlug, Content: text}); err != nil {
		return err
	}
	if s.Redis != nil {
		if err := s.Redis.Del(ctx, courseContentKeyPrefix+courseSlug).Err(); err != nil {
			logger.Log.Warn("content cache invalidation failed", zap.String("course", courseSlug), zap.Error(err))
		}
	}
	return nil
}
