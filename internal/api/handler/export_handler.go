package handler

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/BorisSavianov/doxa-backend/internal/dto"
	"github.com/BorisSavianov/doxa-backend/internal/service"
	"github.com/BorisSavianov/doxa-backend/pkg/response"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
	loc       *time.Location
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService, loc *time.Location) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc, loc: loc}
}

// ExportJuryRoster 导出评审委员会名单
// GET /api/v1/procedures/:id/export
func (h *ExportHandler) ExportJuryRoster(c *gin.Context) {
	buf, filename, err := h.exportSvc.ExportJuryRoster(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	writeXLSX(c, buf, filename)
}

// ExportProcedures 导出程序概览（筛选条件同程序列表）
// GET /api/v1/export/procedures?from=2026-01-01&to=2026-12-31
func (h *ExportHandler) ExportProcedures(c *gin.Context) {
	var req dto.ProcedureListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindFailed(c, err)
		return
	}
	filter, err := service.BuildProcedureFilter(&req, h.loc)
	if err != nil {
		response.BadRequest(c, 14003, "日期范围无效")
		return
	}

	buf, filename, err := h.exportSvc.ExportProcedures(c.Request.Context(), filter)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	writeXLSX(c, buf, filename)
}

// writeXLSX 设置下载响应头并写出文件
func writeXLSX(c *gin.Context, buf *bytes.Buffer, filename string) {
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrProcedureNotFound):
		response.NotFound(c, 14001, "程序不存在")
	case errors.Is(err, service.ErrExportNoMembers):
		response.BadRequest(c, 16101, "该程序尚未选出评审委员会")
	case errors.Is(err, service.ErrExportNoProcedures):
		response.NotFound(c, 16102, "所选范围内没有程序")
	default:
		_ = c.Error(err)
		response.InternalError(c)
	}
}
