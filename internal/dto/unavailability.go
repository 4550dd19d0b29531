package dto

import "time"

// ── 不可用时间模块 DTO ──

// CreateUnavailabilityRequest 创建不可用时间段
type CreateUnavailabilityRequest struct {
	StartDate time.Time `json:"start_date" binding:"required"`
	EndDate   time.Time `json:"end_date"   binding:"required"`
	Reason    string    `json:"reason"     binding:"omitempty,max=200"`
}

// UpdateUnavailabilityRequest 更新不可用时间段
type UpdateUnavailabilityRequest struct {
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	Reason    *string    `json:"reason" binding:"omitempty,max=200"`
}

// ImportICSRequest 通过 URL 导入 ICS（上传文件时无需此参数）
type ImportICSRequest struct {
	URL string `form:"url" json:"url" binding:"omitempty,url"`
}

// UnavailabilityResponse 不可用时间段
type UnavailabilityResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason,omitempty"`
}

// ImportICSResponse ICS 导入结果
type ImportICSResponse struct {
	Imported int                      `json:"imported"`
	Items    []UnavailabilityResponse `json:"items"`
}
