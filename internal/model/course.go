package model

import (
	"time"

	"gorm.io/datatypes"
)

// CatalogCourse 课程目录中的静态信息，来自 configs/courses.yaml
type CatalogCourse struct {
	Slug          string `yaml:"slug" json:"slug"`
	ID            string `yaml:"id" json:"id"`
	Title         string `yaml:"title" json:"title"`
	Level         string `yaml:"level" json:"level"`
	Duration      string `yaml:"duration" json:"duration"`
	DurationHours int    `yaml:"duration_hours" json:"durationHours"`
	LessonCount   int    `yaml:"lessons" json:"lessonCount"`
	SectionCount  int    `yaml:"sections" json:"sectionCount"`
}

// CourseContent 课程正文，用于生成考试题目
type CourseContent struct {
	BaseModel
	CourseSlug string `gorm:"size:150;uniqueIndex;not null" json:"courseSlug"`
	Content    string `gorm:"type:text" json:"content"`
}

func (CourseContent) TableName() string {
	return "course_contents"
}

// CourseProgress 由课程学习流程维护，证书流程只读
type CourseProgress struct {
	BaseModel
	UserID            uint                        `gorm:"uniqueIndex:idx_progress_user_course;not null" json:"userId"`
	CourseSlug        string                      `gorm:"size:150;uniqueIndex:idx_progress_user_course;not null" json:"courseSlug"`
	ProgressPercent   float64                     `gorm:"default:0" json:"progressPercent"`
	StartedAt         time.Time                   `json:"startedAt"`
	LastUpdatedAt     time.Time                   `json:"lastUpdatedAt"`
	CompletedSections datatypes.JSONSlice[string] `json:"completedSections"`
	TotalSections     int                         `json:"totalSections"`
}

func (CourseProgress) TableName() string {
	return "course_progresses"
}
