package dto

// ── 仪表盘 DTO ──

// DashboardLimitRequest 列表条数
type DashboardLimitRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=50"`
}

// GetLimit 获取条数（默认 5）
func (r *DashboardLimitRequest) GetLimit() int {
	if r.Limit <= 0 {
		return 5
	}
	return r.Limit
}

// UserDashboardStats 成员个人统计
type UserDashboardStats struct {
	PendingInvitations     int `json:"pending_invitations"`
	UpcomingProcedures     int `json:"upcoming_procedures"`
	CompletedProcedures    int `json:"completed_procedures"`
	ThisYearParticipations int `json:"this_year_participations"`
}

// AdminDashboardStats 全局统计
type AdminDashboardStats struct {
	TotalUsers           int64            `json:"total_users"`
	TotalProcedures      int64            `json:"total_procedures"`
	ActiveProcedures     int64            `json:"active_procedures"`
	PendingConfirmations int64            `json:"pending_confirmations"`
	UpcomingProcedures   int64            `json:"upcoming_procedures"`
	CompletedThisMonth   int64            `json:"completed_this_month"`
	ByStatus             map[string]int64 `json:"by_status"`
}

// ActivityItem 个人动态
type ActivityItem struct {
	Type          string `json:"type"` // invitation | accepted | rejected | completed
	ProcedureID   string `json:"procedure_id"`
	ProcedureName string `json:"procedure_name"`
	Timestamp     string `json:"timestamp"`
	Status        string `json:"status"`
}
