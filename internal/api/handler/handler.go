package handler

import (
	"time"

	"github.com/BorisSavianov/doxa-backend/internal/service"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth           *AuthHandler
	User           *UserHandler
	Procedure      *ProcedureHandler
	Unavailability *UnavailabilityHandler
	Notification   *NotificationHandler
	Export         *ExportHandler
	Dashboard      *DashboardHandler
}

// NewHandler 创建 Handler 聚合
// loc 为评审时区，用于解析导出筛选中的本地日期
func NewHandler(svc *service.Service, loc *time.Location) *Handler {
	return &Handler{
		Auth:           NewAuthHandler(svc.Auth),
		User:           NewUserHandler(svc.User),
		Procedure:      NewProcedureHandler(svc.Procedure),
		Unavailability: NewUnavailabilityHandler(svc.Unavailability),
		Notification:   NewNotificationHandler(svc.Notification),
		Export:         NewExportHandler(svc.Export, loc),
		Dashboard:      NewDashboardHandler(svc.Dashboard),
	}
}
