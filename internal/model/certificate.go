package model

import (
	"time"

	"gorm.io/datatypes"
)

type CertificateStatus string

const (
	CertificateQuizInProgress CertificateStatus = "quiz_in_progress"
	CertificateIssued         CertificateStatus = "issued"
	// CertificateBlocked 次数用尽且未通过，终态
	CertificateBlocked CertificateStatus = "blocked"
)

// CourseSnapshot 创建记录时复制的课程信息，之后不再随目录变化
type CourseSnapshot struct {
	Title        string `gorm:"size:255" json:"title"`
	Level        string `gorm:"size:50" json:"level"`
	Duration     string `gorm:"size:50" json:"duration"`
	LessonCount  int    `json:"lessonCount"`
	SectionCount int    `json:"sectionCount"`
}

func NewCourseSnapshot(c CatalogCourse) CourseSnapshot {
	return CourseSnapshot{
		Title:        c.Title,
		Level:        c.Level,
		Duration:     c.Duration,
		LessonCount:  c.LessonCount,
		SectionCount: c.SectionCount,
	}
}

// swagger:model CertificateRecord
type CertificateRecord struct {
	BaseModel
	UserID              uint              `gorm:"uniqueIndex:idx_cert_user_course;not null" json:"userId"`
	CourseSlug          string            `gorm:"size:150;uniqueIndex:idx_cert_user_course;not null" json:"courseSlug"`
	Course              CourseSnapshot    `gorm:"embedded;embeddedPrefix:course_" json:"course"`
	Status              CertificateStatus `gorm:"size:30;index;not null" json:"status"`
	TotalQuizAttempts   int               `gorm:"default:0;not null" json:"totalQuizAttempts"`
	QuizScore           int               `gorm:"default:0" json:"quizScore"`
	QuizAttempts        []QuizAttempt     `gorm:"foreignKey:CertificateID" json:"quizAttempts"`
	ProgressStartedAt   time.Time         `json:"progressStartedAt"`
	ProgressCompletedAt time.Time         `json:"progressCompletedAt"`
	CertificateNumber   *string           `gorm:"size:40;uniqueIndex" json:"certificateNumber,omitempty"`
	VerificationCode    *string           `gorm:"size:20;uniqueIndex" json:"verificationCode,omitempty"`
	VerificationURL     string            `gorm:"size:255" json:"verificationUrl,omitempty"`
	IssuedAt            *time.Time        `json:"issuedAt,omitempty"`
	TotalStudyHours     int               `json:"totalStudyHours"`
}

func (CertificateRecord) TableName() string {
	return "certificates"
}

func (r *CertificateRecord) IsIssued() bool {
	return r.Status == CertificateIssued
}

// AttemptsExhausted 同时检查持久化状态与计数，兼容策略调整前写入的记录
func (r *CertificateRecord) AttemptsExhausted(maxAttempts int) bool {
	return r.Status == CertificateBlocked || r.TotalQuizAttempts >= maxAttempts
}

// QuestionResult 单题作答明细
type QuestionResult struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	SelectedIndex int      `json:"selectedIndex"`
	CorrectIndex  int      `json:"correctIndex"`
	IsCorrect     bool     `json:"isCorrect"`
}

// swagger:model QuizAttempt
type QuizAttempt struct {
	BaseModel
	CertificateID  uint                                `gorm:"uniqueIndex:idx_attempt_cert_number;not null" json:"certificateId"`
	AttemptNumber  int                                 `gorm:"uniqueIndex:idx_attempt_cert_number;not null" json:"attemptNumber"`
	Details        datatypes.JSONSlice[QuestionResult] `json:"details"`
	Score          int                                 `json:"score"`
	TotalQuestions int                                 `json:"totalQuestions"`
	Passed         bool                                `json:"passed"`
	PassedAt       *time.Time                          `json:"passedAt,omitempty"`
	FailedAt       *time.Time                          `json:"failedAt,omitempty"`
}

func (QuizAttempt) TableName() string {
	return "certificate_quiz_attempts"
}
