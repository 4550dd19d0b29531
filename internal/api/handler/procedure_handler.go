package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BorisSavianov/doxa-backend/internal/dto"
	"github.com/BorisSavianov/doxa-backend/internal/jury"
	"github.com/BorisSavianov/doxa-backend/internal/service"
	pkgerrors "github.com/BorisSavianov/doxa-backend/pkg/errors"
	"github.com/BorisSavianov/doxa-backend/pkg/response"
)

// ProcedureHandler 程序与评审委员会 HTTP 处理器
type ProcedureHandler struct {
	procedureSvc service.ProcedureService
}

// NewProcedureHandler 创建 ProcedureHandler
func NewProcedureHandler(procedureSvc service.ProcedureService) *ProcedureHandler {
	return &ProcedureHandler{procedureSvc: procedureSvc}
}

// ── 程序 CRUD ──

// CreateProcedure 创建程序（DRAFT）
// POST /api/v1/procedures
func (h *ProcedureHandler) CreateProcedure(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.CreateProcedureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	p, err := h.procedureSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleProcedureError(c, err)
		return
	}

	response.Created(c, p)
}

// ListProcedures 程序列表
// GET /api/v1/procedures
func (h *ProcedureHandler) ListProcedures(c *gin.Context) {
	var req dto.ProcedureListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindFailed(c, err)
		return
	}

	list, total, err := h.procedureSvc.List(c.Request.Context(), &req)
	if err != nil {
		h.handleProcedureError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// ListMyProcedures 当前用户参与（含候补与已拒绝）的程序
// GET /api/v1/procedures/my
func (h *ProcedureHandler) ListMyProcedures(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	list, err := h.procedureSvc.ListMine(c.Request.Context(), userID)
	if err != nil {
		h.handleProcedureError(c, err)
		return
	}

	response.OK(c, list)
}

// GetProcedure 程序详情
// GET /api/v1/procedures/:id
func (h *ProcedureHandler) GetProcedure(c *gin.Context) {
	p, err := h.procedureSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleProcedureError(c, err)
		return
	}

	response.OK(c, p)
}

// UpdateProcedure 修改草稿程序
// PUT /api/v1/procedures/:id
func (h *ProcedureHandler) UpdateProcedure(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.UpdateProcedureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	p, err := h.procedureSvc.Update(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		h.handleProcedureError(c, err)
		return
	}

	response.OK(c, p)
}

// CancelProcedure 取消程序
// POST /api/v1/procedures/:id/cancel
func (h *ProcedureHandler) CancelProcedure(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	p, err := h.procedureSvc.Cancel(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		h.handleProcedureError(c, err)
		return
	}

	response.OK(c, p)
}

// ── 评审委员会 ──

// AutoSelectJury 自动选拔评审委员会并发出邀请
// POST /api/v1/procedures/:id/auto-select-jury
func (h *ProcedureHandler) AutoSelectJury(c *gin.Context) {
	p, err := h.procedureSvc.AutoSelectJury(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleProcedureError(c, err)
		return
	}

	response.OK(c, p)
}

// Respond 当前用户答复邀请
// POST /api/v1/procedures/:id/respond
func (h *ProcedureHandler) Respond(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	p, err := h.procedureSvc.Respond(c.Request.Context(), c.Param("id"), userID, *req.Accept)
	if err != nil {
		h.handleProcedureError(c, err)
		return
	}

	response.OK(c, p)
}

// CompleteProcedure 完成程序并更新成员参评日期
// POST /api/v1/procedures/:id/complete
func (h *ProcedureHandler) CompleteProcedure(c *gin.Context) {
	p, err := h.procedureSvc.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleProcedureError(c, err)
		return
	}

	response.OK(c, p)
}

// handleProcedureError 错误码 14xxx：140xx 程序 CRUD，142xx 评审委员会
func (h *ProcedureHandler) handleProcedureError(c *gin.Context, err error) {
	var ce *jury.CollaboratorError
	switch {
	case errors.Is(err, service.ErrProcedureNotFound):
		response.NotFound(c, 14001, "程序不存在")
	case errors.Is(err, service.ErrProcedureNotEditable):
		response.Conflict(c, 14002, "仅草稿状态的程序可以修改")
	case errors.Is(err, service.ErrInvalidDateRange):
		response.BadRequest(c, 14003, "日期范围无效")
	case errors.Is(err, jury.ErrUnknownProcedureType):
		response.BadRequest(c, 14004, "未知的程序类型")
	case errors.Is(err, jury.ErrInsufficientCandidates):
		response.BadRequest(c, 14201, "合格候选人不足，无法满足评审名额要求")
	case errors.Is(err, jury.ErrMemberNotFound):
		response.NotFound(c, 14202, "您不是该程序的评审成员")
	case errors.Is(err, jury.ErrMemberAlreadyResponded):
		response.Conflict(c, 14203, "您已答复过该邀请")
	case errors.Is(err, jury.ErrInvalidStateTransition):
		response.Conflict(c, 14203, "当前程序状态不允许此操作")
	case errors.Is(err, service.ErrProcedureConflict), errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Conflict(c, 14204, "程序已被修改，请刷新后重试")
	case errors.Is(err, pkgerrors.ErrLockNotAcquired):
		response.Locked(c, 14205, "该程序正在被其他操作处理，请稍后重试")
	case errors.As(err, &ce):
		_ = c.Error(err)
		response.ErrorWithDetails(c, http.StatusInternalServerError, 50001, "依赖服务调用失败", ce.Op)
	default:
		_ = c.Error(err)
		response.InternalError(c)
	}
}
