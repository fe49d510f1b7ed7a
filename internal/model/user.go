package model

type UserRole string

const (
	Student UserRole = "student"
	Admin   UserRole = "admin"
)

// swagger:model User
type User struct {
	BaseModel
	Name             string   `gorm:"size:100;not null" json:"name"`
	Email            string   `gorm:"size:100;unique;not null" json:"email"`
	Role             UserRole `gorm:"size:20;default:'student'" json:"role"`
	XP               int      `gorm:"default:0" json:"xp"`               // 总经验
	CompletedCourses int      `gorm:"default:0" json:"completedCourses"` // 已获得证书的课程数
}

func (User) TableName() string {
	return "users"
}
