package model

import "time"

// AcademicRank 学术职称
type AcademicRank string

const (
	RankProfessor          AcademicRank = "professor"
	RankAssociateProfessor AcademicRank = "associate_professor"
)

// Valid 是否为受支持的职称
func (r AcademicRank) Valid() bool {
	return r == RankProfessor || r == RankAssociateProfessor
}

// 用户角色
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User 用户表，对应 users
// 每个用户同时是评审委员会候选人
type User struct {
	UserID              string       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"user_id"`
	FullName            string       `gorm:"type:varchar(200);not null"                     json:"full_name"`
	Email               string       `gorm:"type:varchar(255);not null"                     json:"email"`
	PasswordHash        string       `gorm:"type:varchar(255);not null"                     json:"-"`
	Role                string       `gorm:"type:varchar(20);not null;default:'user'"       json:"role"`
	AcademicRank        AcademicRank `gorm:"type:varchar(30);not null"                      json:"academic_rank"`
	ScientificField     string       `gorm:"type:varchar(200);not null"                     json:"scientific_field"`
	University          string       `gorm:"type:varchar(255);not null"                     json:"university"`
	DistanceToCity      float64      `gorm:"not null;default:0"                             json:"distance_to_city"` // 公里
	PenultimateJuryDate *time.Time   `json:"penultimate_jury_date,omitempty"`
	LastJuryDate        *time.Time   `json:"last_jury_date,omitempty"`
	VersionedModel
}

// TableName 指定表名
func (User) TableName() string { return "users" }

// IsProfessor 是否为教授
func (u *User) IsProfessor() bool { return u.AcademicRank == RankProfessor }
