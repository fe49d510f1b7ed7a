package repository

import (
	"certify_backend/internal/model"
	"certify_backend/internal/util"
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CertificateRepository struct {
	DB *gorm.DB
}

func NewCertificateRepository(db *gorm.DB) *CertificateRepository {
	return &CertificateRepository{DB: db}
}

func preloadAttempts(db *gorm.DB) *gorm.DB {
	return db.Preload("QuizAttempts", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("attempt_number asc")
	})
}

func (r *CertificateRepository) FindByUserAndCourse(ctx context.Context, userID uint, courseSlug string) (*model.CertificateRecord, error) {
	var rec model.CertificateRecord
	err := preloadAttempts(r.DB.WithContext(ctx)).
		Where("user_id = ? AND course_slug = ?", userID, courseSlug).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIfAbsent 并发首次请求时只会有一条记录落库，返回最终存在的那条
func (r *CertificateRepository) CreateIfAbsent(ctx context.Context, rec *model.CertificateRecord) (*model.CertificateRecord, error) {
	err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Omit("QuizAttempts").
		Create(rec).Error
	if err != nil {
		return nil, err
	}

	existing, err := r.FindByUserAndCourse(ctx, rec.UserID, rec.CourseSlug)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return existing, nil
}

// Issuance 通过考试时写入的证书信息
type Issuance struct {
	CertificateNumber string
	VerificationCode  string
	VerificationURL   string
	IssuedAt          time.Time
	TotalStudyHours   int
}

// AttemptWrite 一次提交需要落库的全部变更
type AttemptWrite struct {
	CertificateID    uint
	ExpectedAttempts int
	Attempt          model.QuizAttempt
	Issuance         *Issuance
	Block            bool
	// OnIssued 在同一事务内执行，用于发放奖励
	OnIssued func(tx *gorm.DB) error
}

// RecordAttempt 以 total_quiz_attempts 做比较交换，计数不一致或记录已发证时返回 ErrConcurrentSubmission
func (r *CertificateRepository) RecordAttempt(ctx context.Context, w AttemptWrite) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"total_quiz_attempts": gorm.Expr("total_quiz_attempts + ?", 1),
			"quiz_score":          w.Attempt.Score,
		}
		switch {
		case w.Issuance != nil:
			updates["status"] = model.CertificateIssued
			updates["certificate_number"] = w.Issuance.CertificateNumber
			updates["verification_code"] = w.Issuance.VerificationCode
			updates["verification_url"] = w.Issuance.VerificationURL
			updates["issued_at"] = w.Issuance.IssuedAt
			updates["total_study_hours"] = w.Issuance.TotalStudyHours
		case w.Block:
			updates["status"] = model.CertificateBlocked
		}

		res := tx.Model(&model.CertificateRecord{}).
			Where("id = ? AND status = ? AND total_quiz_attempts = ?",
				w.CertificateID, model.CertificateQuizInProgress, w.ExpectedAttempts).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return util.ErrConcurrentSubmission
		}

		attempt := w.Attempt
		attempt.CertificateID = w.CertificateID
		if err := tx.Create(&attempt).Error; err != nil {
			return err
		}

		if w.Issuance != nil && w.OnIssued != nil {
			return w.OnIssued(tx)
		}
		return nil
	})
}

func (r *CertificateRepository) FindIssuedByVerificationCode(ctx context.Context, code string) (*model.CertificateRecord, error) {
	var rec model.CertificateRecord
	err := r.DB.WithContext(ctx).
		Where("verification_code = ? AND status = ?", code, model.CertificateIssued).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *CertificateRepository) ListIssuedByUser(ctx context.Context, userID uint) ([]model.CertificateRecord, error) {
	var recs []model.CertificateRecord
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.CertificateIssued).
		Order("issued_at desc").
		Find(&recs).Error
	return recs, err
}

// IssuedCertificateRow 管理端导出行
type IssuedCertificateRow struct {
	CertificateNumber string
	VerificationCode  string
	CourseSlug        string
	CourseTitle       string
	UserID            uint
	UserName          string
	UserEmail         string
	QuizScore         int
	TotalQuizAttempts int
	TotalStudyHours   int
	IssuedAt          time.Time
}

func (r *CertificateRepository) ListIssued(ctx context.Context) ([]IssuedCertificateRow, error) {
	var rows []IssuedCertificateRow
	err := r.DB.WithContext(ctx).Table("certificates c").
		Select("c.certificate_number, c.verification_code, c.course_slug, c.course_title, c.user_id, " +
			"u.name as user_name, u.email as user_email, c.quiz_score, c.total_quiz_attempts, c.total_study_hours, c.issued_at").
		Joins("LEFT JOIN users u ON u.id = c.user_id").
		Where("c.status = ? AND c.deleted_at IS NULL", model.CertificateIssued).
		Order("c.issued_at desc").
		Scan(&rows).Error
	return rows, err
}
