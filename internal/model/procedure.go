package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ProcedureType 晋升程序类型
type ProcedureType string

const (
	ProcedureDoctor             ProcedureType = "doctor"
	ProcedureDoctorOfSciences   ProcedureType = "doctor_of_sciences"
	ProcedureAssociateProfessor ProcedureType = "associate_professor"
	ProcedureProfessor          ProcedureType = "professor"
)

// ProcedureStatus 程序状态
type ProcedureStatus string

const (
	StatusDraft                 ProcedureStatus = "draft"
	StatusPendingJury           ProcedureStatus = "pending_jury"
	StatusJurySelected          ProcedureStatus = "jury_selected"
	StatusAwaitingConfirmations ProcedureStatus = "awaiting_confirmations"
	StatusConfirmed             ProcedureStatus = "confirmed"
	StatusCompleted             ProcedureStatus = "completed"
	StatusCancelled             ProcedureStatus = "cancelled"
)

// Terminal 终态不再允许任何成员变更
func (s ProcedureStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// MemberStatus 评审成员答复状态
type MemberStatus string

const (
	MemberPending  MemberStatus = "pending"
	MemberAccepted MemberStatus = "accepted"
	MemberRejected MemberStatus = "rejected"
)

// JuryMember 评审委员会成员（嵌入 procedures.jury_members）
type JuryMember struct {
	UserID      string       `json:"user_id"`
	IsExternal  bool         `json:"is_external"`
	IsReserve   bool         `json:"is_reserve"`
	Status      MemberStatus `json:"status"`
	InvitedAt   time.Time    `json:"invited_at"`
	RespondedAt *time.Time   `json:"responded_at,omitempty"`
}

// Seated 非候补且未拒绝：计入委员会名额
func (m *JuryMember) Seated() bool {
	return !m.IsReserve && m.Status != MemberRejected
}

// ActiveReserve 候补且未拒绝
func (m *JuryMember) ActiveReserve() bool {
	return m.IsReserve && m.Status != MemberRejected
}

// ── PostgreSQL JSONB 自定义类型 ──

// JuryMembers 对应 procedures.jury_members（JSONB 有序数组），实现 GORM Scanner/Valuer 接口。
type JuryMembers []JuryMember

// Scan 将 JSONB 解析为成员列表
func (m *JuryMembers) Scan(src interface{}) error {
	if src == nil {
		*m = JuryMembers{}
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("JuryMembers.Scan: unsupported type %T", src)
	}
	var out JuryMembers
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("JuryMembers.Scan: %w", err)
	}
	if out == nil {
		out = JuryMembers{}
	}
	*m = out
	return nil
}

// Value 将成员列表序列化为 JSONB
func (m JuryMembers) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// GormDataType 声明列类型
func (JuryMembers) GormDataType() string { return "jsonb" }

// Procedure 晋升程序表，对应 procedures
type Procedure struct {
	ProcedureID     string          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"procedure_id"`
	Date            time.Time       `gorm:"not null"                                       json:"date"`
	Type            ProcedureType   `gorm:"type:varchar(30);not null"                      json:"type"`
	CandidateName   string          `gorm:"type:varchar(200);not null;default:''"          json:"candidate_name"`
	ScientificField string          `gorm:"type:varchar(200);not null"                     json:"scientific_field"`
	Status          ProcedureStatus `gorm:"type:varchar(30);not null;default:'draft'"      json:"status"`
	JuryMembers     JuryMembers     `gorm:"type:jsonb;not null;default:'[]'"               json:"jury_members"`
	VersionedModel
}

// TableName 指定表名
func (Procedure) TableName() string { return "procedures" }

// MemberIndex 返回 userID 在成员列表中的位置，不存在时返回 -1
func (p *Procedure) MemberIndex(userID string) int {
	for i := range p.JuryMembers {
		if p.JuryMembers[i].UserID == userID {
			return i
		}
	}
	return -1
}

// HasMember 是否已是成员（含候补与已拒绝记录）
func (p *Procedure) HasMember(userID string) bool {
	return p.MemberIndex(userID) >= 0
}

// Clone 深拷贝，避免状态机修改调用方持有的对象
func (p *Procedure) Clone() *Procedure {
	cp := *p
	cp.JuryMembers = make(JuryMembers, len(p.JuryMembers))
	for i, m := range p.JuryMembers {
		if m.RespondedAt != nil {
			t := *m.RespondedAt
			m.RespondedAt = &t
		}
		cp.JuryMembers[i] = m
	}
	return &cp
}
