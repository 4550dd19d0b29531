package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/BorisSavianov/doxa-backend/internal/api/middleware"
	"github.com/BorisSavianov/doxa-backend/internal/model"
	"github.com/BorisSavianov/doxa-backend/pkg/response"
)

// MustGetUserID 从 Gin 上下文中安全提取 user_id。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	return mustGetString(c, middleware.CtxUserID)
}

// MustGetRole 从 Gin 上下文中安全提取 role。
func MustGetRole(c *gin.Context) (string, bool) {
	return mustGetString(c, middleware.CtxRole)
}

// MustGetTokenID 提取当前 Access Token 的 jti 与过期时间（登出时加入黑名单）
func MustGetTokenID(c *gin.Context) (string, time.Time, bool) {
	jti, ok := mustGetString(c, middleware.CtxTokenID)
	if !ok {
		return "", time.Time{}, false
	}
	exp, _ := c.Get(middleware.CtxTokenExp)
	expiresAt, _ := exp.(time.Time)
	return jti, expiresAt, true
}

// IsAdmin 当前用户是否为管理员
func IsAdmin(c *gin.Context) bool {
	return c.GetString(middleware.CtxRole) == model.RoleAdmin
}

func mustGetString(c *gin.Context, key string) (string, bool) {
	v, exists := c.Get(key)
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// bindFailed 参数绑定失败：请求体超限返回 413，其余返回 400
func bindFailed(c *gin.Context, err error) {
	if middleware.IsBodyTooLarge(err) {
		response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
		return
	}
	response.ErrorWithDetails(c, http.StatusBadRequest, 10001, "参数校验失败", err.Error())
}
