package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/BorisSavianov/doxa-backend/internal/dto"
	"github.com/BorisSavianov/doxa-backend/internal/service"
	"github.com/BorisSavianov/doxa-backend/pkg/response"
)

// DashboardHandler 仪表盘 HTTP 处理器
type DashboardHandler struct {
	svc service.DashboardService
}

// NewDashboardHandler 创建 DashboardHandler
func NewDashboardHandler(svc service.DashboardService) *DashboardHandler {
	return &DashboardHandler{svc: svc}
}

// MyStats 个人统计
// GET /api/v1/dashboard/stats
func (h *DashboardHandler) MyStats(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	stats, err := h.svc.UserStats(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, stats)
}

// AdminStats 全局统计（管理员）
// GET /api/v1/dashboard/admin-stats
func (h *DashboardHandler) AdminStats(c *gin.Context) {
	stats, err := h.svc.AdminStats(c.Request.Context())
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, stats)
}

// Upcoming 即将参加的程序
// GET /api/v1/dashboard/upcoming?limit=5
func (h *DashboardHandler) Upcoming(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.DashboardLimitRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindFailed(c, err)
		return
	}

	list, err := h.svc.Upcoming(c.Request.Context(), userID, req.GetLimit())
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, list)
}

// RecentActivity 最近动态
// GET /api/v1/dashboard/activity?limit=5
func (h *DashboardHandler) RecentActivity(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.DashboardLimitRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindFailed(c, err)
		return
	}

	list, err := h.svc.RecentActivity(c.Request.Context(), userID, req.GetLimit())
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, list)
}
