package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BorisSavianov/doxa-backend/internal/dto"
	"github.com/BorisSavianov/doxa-backend/internal/service"
	"github.com/BorisSavianov/doxa-backend/pkg/response"
)

// UnavailabilityHandler 不可用时间模块 HTTP 处理器
type UnavailabilityHandler struct {
	svc service.UnavailabilityService
}

// NewUnavailabilityHandler 创建 UnavailabilityHandler
func NewUnavailabilityHandler(svc service.UnavailabilityService) *UnavailabilityHandler {
	return &UnavailabilityHandler{svc: svc}
}

// ListMine 当前用户的不可用时间段
// GET /api/v1/unavailability
func (h *UnavailabilityHandler) ListMine(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	items, err := h.svc.List(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, items)
}

// Create 新增不可用时间段
// POST /api/v1/unavailability
func (h *UnavailabilityHandler) Create(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.CreateUnavailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	item, err := h.svc.Create(c.Request.Context(), userID, &req)
	if err != nil {
		handleUnavailabilityError(c, err)
		return
	}

	response.Created(c, item)
}

// Update 修改不可用时间段（仅本人）
// PUT /api/v1/unavailability/:id
func (h *UnavailabilityHandler) Update(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.UpdateUnavailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	item, err := h.svc.Update(c.Request.Context(), c.Param("id"), userID, &req)
	if err != nil {
		handleUnavailabilityError(c, err)
		return
	}

	response.OK(c, item)
}

// Delete 删除不可用时间段（仅本人）
// DELETE /api/v1/unavailability/:id
func (h *UnavailabilityHandler) Delete(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
		handleUnavailabilityError(c, err)
		return
	}

	response.OK(c, nil)
}

// ImportICS 从日历导入不可用时间段
// POST /api/v1/unavailability/import
//
// 支持两种方式：
//   - 文件上传: multipart/form-data, field="file"
//   - URL 导入: application/json body={"url": "..."} 或表单字段 url
func (h *UnavailabilityHandler) ImportICS(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	file, _, err := c.Request.FormFile("file")
	if err == nil {
		defer file.Close()
		resp, err := h.svc.ImportICS(c.Request.Context(), userID, file, "")
		if err != nil {
			handleUnavailabilityError(c, err)
			return
		}
		response.Created(c, resp)
		return
	}
	if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingFile) {
		err = nil
	}
	if err != nil {
		bindFailed(c, err)
		return
	}

	// 按 Content-Type 选择 JSON 或表单绑定
	var req dto.ImportICSRequest
	if err := c.ShouldBind(&req); err != nil {
		bindFailed(c, err)
		return
	}

	resp, err := h.svc.ImportICS(c.Request.Context(), userID, nil, req.URL)
	if err != nil {
		handleUnavailabilityError(c, err)
		return
	}

	response.Created(c, resp)
}

func handleUnavailabilityError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnavailabilityNotFound):
		response.NotFound(c, 15001, "不可用时间段不存在")
	case errors.Is(err, service.ErrUnavailabilityForbidden):
		response.Forbidden(c, 15002, "只能操作自己的不可用时间段")
	case errors.Is(err, service.ErrUnavailabilityRange):
		response.BadRequest(c, 15003, "开始时间不能晚于结束时间")
	case errors.Is(err, service.ErrICSSourceMissing):
		response.BadRequest(c, 15100, "请上传 ICS 文件或提供 ICS URL")
	case errors.Is(err, service.ErrICSFetchFailed):
		response.ErrorWithDetails(c, http.StatusBadRequest, 15101, "ICS URL 获取失败", err.Error())
	case errors.Is(err, service.ErrICSParseFailed):
		response.BadRequest(c, 15102, "ICS 文件解析失败")
	case errors.Is(err, service.ErrICSEmpty):
		response.BadRequest(c, 15103, "ICS 文件中没有可导入的事件")
	default:
		_ = c.Error(err)
		response.InternalError(c)
	}
}
