package dto

import "time"

// ── 程序模块 DTO ──

// CreateProcedureRequest 创建程序请求
type CreateProcedureRequest struct {
	Date            time.Time `json:"date"             binding:"required"`
	Type            string    `json:"type"             binding:"required,oneof=doctor doctor_of_sciences associate_professor professor"`
	CandidateName   string    `json:"candidate_name"   binding:"omitempty,max=200"`
	ScientificField string    `json:"scientific_field" binding:"required,max=200"`
}

// UpdateProcedureRequest 更新程序请求（仅 DRAFT 状态）
type UpdateProcedureRequest struct {
	Date            *time.Time `json:"date"`
	Type            *string    `json:"type"             binding:"omitempty,oneof=doctor doctor_of_sciences associate_professor professor"`
	CandidateName   *string    `json:"candidate_name"   binding:"omitempty,max=200"`
	ScientificField *string    `json:"scientific_field" binding:"omitempty,max=200"`
}

// ProcedureListRequest 程序列表查询参数
type ProcedureListRequest struct {
	PaginationRequest
	Status          string `form:"status"           binding:"omitempty,oneof=draft pending_jury jury_selected awaiting_confirmations confirmed completed cancelled"`
	Type            string `form:"type"             binding:"omitempty,oneof=doctor doctor_of_sciences associate_professor professor"`
	ScientificField string `form:"scientific_field" binding:"omitempty,max=200"`
	From            string `form:"from"             binding:"omitempty,datetime=2006-01-02"`
	To              string `form:"to"               binding:"omitempty,datetime=2006-01-02"`
}

// RespondRequest 评审成员答复
type RespondRequest struct {
	Accept *bool `json:"accept" binding:"required"`
}

// JuryMemberResponse 评审成员
type JuryMemberResponse struct {
	UserID      string  `json:"user_id"`
	FullName    string  `json:"full_name,omitempty"`
	University  string  `json:"university,omitempty"`
	IsExternal  bool    `json:"is_external"`
	IsReserve   bool    `json:"is_reserve"`
	Status      string  `json:"status"`
	InvitedAt   string  `json:"invited_at"`
	RespondedAt *string `json:"responded_at,omitempty"`
}

// ProcedureResponse 程序详情
type ProcedureResponse struct {
	ID              string               `json:"id"`
	Date            string               `json:"date"`
	Type            string               `json:"type"`
	CandidateName   string               `json:"candidate_name"`
	ScientificField string               `json:"scientific_field"`
	Status          string               `json:"status"`
	JuryMembers     []JuryMemberResponse `json:"jury_members"`
	Version         int                  `json:"version"`
	CreatedBy       *string              `json:"created_by,omitempty"`
	CreatedAt       string               `json:"created_at"`
	UpdatedAt       string               `json:"updated_at"`
}
