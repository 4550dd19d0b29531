package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/BorisSavianov/doxa-backend/internal/api/middleware"
	"github.com/BorisSavianov/doxa-backend/internal/dto"
	"github.com/BorisSavianov/doxa-backend/internal/model"
	"github.com/BorisSavianov/doxa-backend/internal/repository"
	"github.com/BorisSavianov/doxa-backend/internal/service"
	"github.com/BorisSavianov/doxa-backend/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ═══════════════════════════════════════════════════════════
// Mock Services
// ═══════════════════════════════════════════════════════════

// ── Mock AuthService ──

type mockAuthService struct {
	loginResult   *dto.TokenResponse
	loginErr      error
	refreshResult *dto.TokenResponse
	refreshErr    error
	logoutErr     error
	meResult      *dto.UserResponse
	meErr         error

	loggedOutJTI string
	loggedOutExp time.Time
}

func (m *mockAuthService) Login(_ context.Context, _ *dto.LoginRequest) (*dto.TokenResponse, error) {
	return m.loginResult, m.loginErr
}
func (m *mockAuthService) Refresh(_ context.Context, _ string) (*dto.TokenResponse, error) {
	return m.refreshResult, m.refreshErr
}
func (m *mockAuthService) Logout(_ context.Context, jti string, expiresAt time.Time) error {
	m.loggedOutJTI, m.loggedOutExp = jti, expiresAt
	return m.logoutErr
}
func (m *mockAuthService) Me(_ context.Context, _ string) (*dto.UserResponse, error) {
	return m.meResult, m.meErr
}

// ── Mock UserService ──

type mockUserService struct {
	result    *dto.UserResponse
	list      []dto.UserResponse
	total     int64
	err       error
	gotCaller string
}

func (m *mockUserService) Create(_ context.Context, _ *dto.CreateUserRequest, callerID string) (*dto.UserResponse, error) {
	m.gotCaller = callerID
	return m.result, m.err
}
func (m *mockUserService) GetByID(_ context.Context, _ string) (*dto.UserResponse, error) {
	return m.result, m.err
}
func (m *mockUserService) List(_ context.Context, _ *dto.UserListRequest) ([]dto.UserResponse, int64, error) {
	return m.list, m.total, m.err
}
func (m *mockUserService) Update(_ context.Context, _ string, _ *dto.UpdateUserRequest, callerID string) (*dto.UserResponse, error) {
	m.gotCaller = callerID
	return m.result, m.err
}
func (m *mockUserService) Delete(_ context.Context, _ string, callerID string) error {
	m.gotCaller = callerID
	return m.err
}

// ── Mock ProcedureService ──

type mockProcedureService struct {
	result *dto.ProcedureResponse
	list   []dto.ProcedureResponse
	total  int64
	err    error

	gotID     string
	gotUserID string
	gotAccept *bool
}

func (m *mockProcedureService) Create(_ context.Context, _ *dto.CreateProcedureRequest, callerID string) (*dto.ProcedureResponse, error) {
	m.gotUserID = callerID
	return m.result, m.err
}
func (m *mockProcedureService) GetByID(_ context.Context, id string) (*dto.ProcedureResponse, error) {
	m.gotID = id
	return m.result, m.err
}
func (m *mockProcedureService) List(_ context.Context, _ *dto.ProcedureListRequest) ([]dto.ProcedureResponse, int64, error) {
	return m.list, m.total, m.err
}
func (m *mockProcedureService) ListMine(_ context.Context, userID string) ([]dto.ProcedureResponse, error) {
	m.gotUserID = userID
	return m.list, m.err
}
func (m *mockProcedureService) Update(_ context.Context, id string, _ *dto.UpdateProcedureRequest, _ string) (*dto.ProcedureResponse, error) {
	m.gotID = id
	return m.result, m.err
}
func (m *mockProcedureService) Cancel(_ context.Context, id string, _ string) (*dto.ProcedureResponse, error) {
	m.gotID = id
	return m.result, m.err
}
func (m *mockProcedureService) AutoSelectJury(_ context.Context, id string) (*dto.ProcedureResponse, error) {
	m.gotID = id
	return m.result, m.err
}
func (m *mockProcedureService) Respond(_ context.Context, id, userID string, accept bool) (*dto.ProcedureResponse, error) {
	m.gotID, m.gotUserID, m.gotAccept = id, userID, &accept
	return m.result, m.err
}
func (m *mockProcedureService) Complete(_ context.Context, id string) (*dto.ProcedureResponse, error) {
	m.gotID = id
	return m.result, m.err
}

// ── Mock UnavailabilityService ──

type mockUnavailabilityService struct {
	item     *dto.UnavailabilityResponse
	list     []dto.UnavailabilityResponse
	imported *dto.ImportICSResponse
	err      error

	gotFile []byte
	gotURL  string
}

func (m *mockUnavailabilityService) List(_ context.Context, _ string) ([]dto.UnavailabilityResponse, error) {
	return m.list, m.err
}
func (m *mockUnavailabilityService) Create(_ context.Context, _ string, _ *dto.CreateUnavailabilityRequest) (*dto.UnavailabilityResponse, error) {
	return m.item, m.err
}
func (m *mockUnavailabilityService) Update(_ context.Context, _, _ string, _ *dto.UpdateUnavailabilityRequest) (*dto.UnavailabilityResponse, error) {
	return m.item, m.err
}
func (m *mockUnavailabilityService) Delete(_ context.Context, _, _ string) error {
	return m.err
}
func (m *mockUnavailabilityService) ImportICS(_ context.Context, _ string, file io.Reader, url string) (*dto.ImportICSResponse, error) {
	if file != nil {
		m.gotFile, _ = io.ReadAll(file)
	}
	m.gotURL = url
	return m.imported, m.err
}

// ── Mock NotificationService ──

type mockNotificationService struct {
	list    []dto.NotificationResponse
	total   int64
	unread  int64
	updated int64
	err     error
}

func (m *mockNotificationService) NotifyInvitation(_ context.Context, _ *model.Procedure, _ []string) error {
	return nil
}
func (m *mockNotificationService) NotifyResponse(_ context.Context, _ *model.Procedure, _ string, _ bool) error {
	return nil
}
func (m *mockNotificationService) NotifyProcedureUpdate(_ context.Context, _ *model.Procedure, _ string) error {
	return nil
}
func (m *mockNotificationService) List(_ context.Context, _ string, _ *dto.NotificationListRequest) ([]dto.NotificationResponse, int64, error) {
	return m.list, m.total, m.err
}
func (m *mockNotificationService) UnreadCount(_ context.Context, _ string) (int64, error) {
	return m.unread, m.err
}
func (m *mockNotificationService) MarkRead(_ context.Context, _, _ string) error {
	return m.err
}
func (m *mockNotificationService) MarkAllRead(_ context.Context, _ string) (int64, error) {
	return m.updated, m.err
}
func (m *mockNotificationService) Purge(_ context.Context, _ time.Duration) (int64, error) {
	return 0, m.err
}

// ── Mock ExportService ──

type mockExportService struct {
	buf       *bytes.Buffer
	filename  string
	err       error
	gotFilter repository.ProcedureFilter
}

func (m *mockExportService) ExportJuryRoster(_ context.Context, _ string) (*bytes.Buffer, string, error) {
	return m.buf, m.filename, m.err
}
func (m *mockExportService) ExportProcedures(_ context.Context, filter repository.ProcedureFilter) (*bytes.Buffer, string, error) {
	m.gotFilter = filter
	return m.buf, m.filename, m.err
}

// ── Mock DashboardService ──

type mockDashboardService struct {
	userStats  *dto.UserDashboardStats
	adminStats *dto.AdminDashboardStats
	upcoming   []dto.ProcedureResponse
	activity   []dto.ActivityItem
	err        error
	gotLimit   int
}

func (m *mockDashboardService) UserStats(_ context.Context, _ string) (*dto.UserDashboardStats, error) {
	return m.userStats, m.err
}
func (m *mockDashboardService) AdminStats(_ context.Context) (*dto.AdminDashboardStats, error) {
	return m.adminStats, m.err
}
func (m *mockDashboardService) Upcoming(_ context.Context, _ string, limit int) ([]dto.ProcedureResponse, error) {
	m.gotLimit = limit
	return m.upcoming, m.err
}
func (m *mockDashboardService) RecentActivity(_ context.Context, _ string, limit int) ([]dto.ActivityItem, error) {
	m.gotLimit = limit
	return m.activity, m.err
}

// ═══════════════════════════════════════════════════════════
// Test Helpers
// ═══════════════════════════════════════════════════════════

// authAs 模拟 JWTAuth 注入的上下文
func authAs(userID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.CtxUserID, userID)
		c.Set(middleware.CtxRole, role)
		c.Set(middleware.CtxTokenID, "test-jti")
		c.Set(middleware.CtxTokenExp, time.Now().Add(15*time.Minute))
		c.Next()
	}
}

func jsonBody(v interface{}) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func doRequest(r *gin.Engine, method, path string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, status, code int) {
	t.Helper()
	if w.Code != status {
		t.Errorf("expected HTTP %d, got %d (body=%s)", status, w.Code, w.Body.String())
	}
	if resp := parseResponse(w); resp.Code != code {
		t.Errorf("expected code %d, got %d", code, resp.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// AuthHandler Tests
// ═══════════════════════════════════════════════════════════

func TestAuthHandler_Login_Success(t *testing.T) {
	mock := &mockAuthService{
		loginResult: &dto.TokenResponse{AccessToken: "a", RefreshToken: "r", ExpiresIn: 900},
	}
	h := NewAuthHandler(mock)
	r := gin.New()
	r.POST("/auth/login", h.Login)

	w := doRequest(r, "POST", "/auth/login", jsonBody(dto.LoginRequest{
		Email:    "ivanova@uni-vt.bg",
		Password: "password123",
	}))

	assertStatus(t, w, http.StatusOK, 0)
}

func TestAuthHandler_Login_BadJSON(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{})
	r := gin.New()
	r.POST("/auth/login", h.Login)

	w := doRequest(r, "POST", "/auth/login", bytes.NewReader([]byte("invalid json")))

	assertStatus(t, w, http.StatusBadRequest, 10001)
}

func TestAuthHandler_Login_InvalidEmail(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{})
	r := gin.New()
	r.POST("/auth/login", h.Login)

	w := doRequest(r, "POST", "/auth/login", jsonBody(map[string]string{
		"email":    "not-an-email",
		"password": "password123",
	}))

	assertStatus(t, w, http.StatusBadRequest, 10001)
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{loginErr: service.ErrInvalidCredentials})
	r := gin.New()
	r.POST("/auth/login", h.Login)

	w := doRequest(r, "POST", "/auth/login", jsonBody(dto.LoginRequest{
		Email:    "ivanova@uni-vt.bg",
		Password: "wrong",
	}))

	assertStatus(t, w, http.StatusUnauthorized, 11001)
}

func TestAuthHandler_RefreshToken_Invalid(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{refreshErr: service.ErrInvalidRefreshToken})
	r := gin.New()
	r.POST("/auth/refresh", h.RefreshToken)

	w := doRequest(r, "POST", "/auth/refresh", jsonBody(dto.RefreshTokenRequest{RefreshToken: "old"}))

	assertStatus(t, w, http.StatusUnauthorized, 11002)
}

func TestAuthHandler_RefreshToken_Missing(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{})
	r := gin.New()
	r.POST("/auth/refresh", h.RefreshToken)

	w := doRequest(r, "POST", "/auth/refresh", jsonBody(map[string]string{}))

	assertStatus(t, w, http.StatusBadRequest, 10001)
}

func TestAuthHandler_Logout_PassesTokenID(t *testing.T) {
	mock := &mockAuthService{}
	h := NewAuthHandler(mock)
	r := gin.New()
	r.POST("/auth/logout", authAs("u-1", model.RoleUser), h.Logout)

	w := doRequest(r, "POST", "/auth/logout", nil)

	assertStatus(t, w, http.StatusOK, 0)
	if mock.loggedOutJTI != "test-jti" {
		t.Errorf("expected jti test-jti, got %q", mock.loggedOutJTI)
	}
	if mock.loggedOutExp.IsZero() {
		t.Error("expected token expiry to be passed through")
	}
}

func TestAuthHandler_GetCurrentUser_Unauthenticated(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{})
	r := gin.New()
	r.GET("/auth/me", h.GetCurrentUser)

	w := doRequest(r, "GET", "/auth/me", nil)

	assertStatus(t, w, http.StatusUnauthorized, 10002)
}

func TestAuthHandler_GetCurrentUser_NotFound(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{meErr: service.ErrUserNotFound})
	r := gin.New()
	r.GET("/auth/me", authAs("ghost", model.RoleUser), h.GetCurrentUser)

	w := doRequest(r, "GET", "/auth/me", nil)

	assertStatus(t, w, http.StatusNotFound, 12001)
}

// ═══════════════════════════════════════════════════════════
// UserHandler Tests
// ═══════════════════════════════════════════════════════════

func TestUserHandler_CreateUser_Success(t *testing.T) {
	mock := &mockUserService{result: &dto.UserResponse{ID: "u-2"}}
	h := NewUserHandler(mock)
	r := gin.New()
	r.POST("/users", authAs("admin-1", model.RoleAdmin), h.CreateUser)

	w := doRequest(r, "POST", "/users", jsonBody(dto.CreateUserRequest{
		FullName:        "Мария Петрова",
		Email:           "petrova@uni-vt.bg",
		Password:        "password123",
		AcademicRank:    "professor",
		ScientificField: "Mathematics",
		University:      "Великотърновски университет",
	}))

	assertStatus(t, w, http.StatusCreated, 0)
	if mock.gotCaller != "admin-1" {
		t.Errorf("expected caller admin-1, got %q", mock.gotCaller)
	}
}

func TestUserHandler_CreateUser_InvalidRank(t *testing.T) {
	h := NewUserHandler(&mockUserService{})
	r := gin.New()
	r.POST("/users", authAs("admin-1", model.RoleAdmin), h.CreateUser)

	w := doRequest(r, "POST", "/users", jsonBody(map[string]interface{}{
		"full_name":        "Мария Петрова",
		"email":            "petrova@uni-vt.bg",
		"password":         "password123",
		"academic_rank":    "assistant",
		"scientific_field": "Mathematics",
		"university":       "ВТУ",
	}))

	assertStatus(t, w, http.StatusBadRequest, 10001)
}

func TestUserHandler_CreateUser_DuplicateEmail(t *testing.T) {
	h := NewUserHandler(&mockUserService{err: service.ErrEmailExists})
	r := gin.New()
	r.POST("/users", authAs("admin-1", model.RoleAdmin), h.CreateUser)

	w := doRequest(r, "POST", "/users", jsonBody(dto.CreateUserRequest{
		FullName:        "Мария Петрова",
		Email:           "petrova@uni-vt.bg",
		Password:        "password123",
		AcademicRank:    "professor",
		ScientificField: "Mathematics",
		University:      "ВТУ",
	}))

	assertStatus(t, w, http.StatusConflict, 12002)
}

func TestUserHandler_ListUsers_Pagination(t *testing.T) {
	mock := &mockUserService{list: []dto.UserResponse{{ID: "u-1"}}, total: 41}
	h := NewUserHandler(mock)
	r := gin.New()
	r.GET("/users", authAs("admin-1", model.RoleAdmin), h.ListUsers)

	w := doRequest(r, "GET", "/users?page=2&page_size=20", nil)

	assertStatus(t, w, http.StatusOK, 0)
	var body struct {
		Data response.PageData `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Data.Pagination.TotalPages != 3 || body.Data.Pagination.Page != 2 {
		t.Errorf("unexpected pagination: %+v", body.Data.Pagination)
	}
}

func TestUserHandler_GetUser_SelfAllowed(t *testing.T) {
	h := NewUserHandler(&mockUserService{result: &dto.UserResponse{ID: "u-1"}})
	r := gin.New()
	r.GET("/users/:id", authAs("u-1", model.RoleUser), h.GetUser)

	w := doRequest(r, "GET", "/users/u-1", nil)

	assertStatus(t, w, http.StatusOK, 0)
}

func TestUserHandler_GetUser_OtherForbidden(t *testing.T) {
	h := NewUserHandler(&mockUserService{result: &dto.UserResponse{ID: "u-2"}})
	r := gin.New()
	r.GET("/users/:id", authAs("u-1", model.RoleUser), h.GetUser)

	w := doRequest(r, "GET", "/users/u-2", nil)

	assertStatus(t, w, http.StatusForbidden, 10003)
}

func TestUserHandler_DeleteUser_Self(t *testing.T) {
	h := NewUserHandler(&mockUserService{err: service.ErrUserSelfDelete})
	r := gin.New()
	r.DELETE("/users/:id", authAs("admin-1", model.RoleAdmin), h.DeleteUser)

	w := doRequest(r, "DELETE", "/users/admin-1", nil)

	assertStatus(t, w, http.StatusBadRequest, 12004)
}

func TestUserHandler_UpdateUser_Conflict(t *testing.T) {
	h := NewUserHandler(&mockUserService{err: service.ErrUserConflict})
	r := gin.New()
	r.PUT("/users/:id", authAs("admin-1", model.RoleAdmin), h.UpdateUser)

	w := doRequest(r, "PUT", "/users/u-1", jsonBody(map[string]string{"full_name": "Нов Човек"}))

	assertStatus(t, w, http.StatusConflict, 12005)
}
