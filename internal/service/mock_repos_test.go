package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/BorisSavianov/doxa-backend/internal/model"
	"github.com/BorisSavianov/doxa-backend/internal/repository"
	pkgerrors "github.com/BorisSavianov/doxa-backend/pkg/errors"
)

// ── Mock UserRepository ──

type mockUserRepo struct {
	users   map[string]*model.User // key: user_id
	nextID  int
	shifted map[string]time.Time
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User), shifted: make(map[string]time.Time)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	if user.UserID == "" {
		m.nextID++
		user.UserID = fmt.Sprintf("user-%d", m.nextID)
	}
	if user.Version == 0 {
		user.Version = 1
	}
	m.users[user.UserID] = user
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) Update(_ context.Context, user *model.User) error {
	stored, ok := m.users[user.UserID]
	if !ok || stored.Version != user.Version {
		return pkgerrors.ErrOptimisticLock
	}
	user.Version++
	cp := *user
	m.users[user.UserID] = &cp
	return nil
}

func (m *mockUserRepo) Delete(_ context.Context, id, _ string) error {
	delete(m.users, id)
	return nil
}

func (m *mockUserRepo) List(_ context.Context, filter repository.UserFilter, offset, limit int) ([]model.User, int64, error) {
	var all []model.User
	for _, u := range m.sorted() {
		if filter.ScientificField != "" && u.ScientificField != filter.ScientificField {
			continue
		}
		if filter.University != "" && u.University != filter.University {
			continue
		}
		if filter.AcademicRank != "" && string(u.AcademicRank) != filter.AcademicRank {
			continue
		}
		if filter.Keyword != "" && !strings.Contains(u.FullName, filter.Keyword) && !strings.Contains(u.Email, filter.Keyword) {
			continue
		}
		all = append(all, u)
	}
	total := int64(len(all))
	if offset > len(all) {
		return nil, total, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], total, nil
}

func (m *mockUserRepo) ListByScientificField(_ context.Context, field string) ([]model.User, error) {
	var result []model.User
	for _, u := range m.sorted() {
		if u.ScientificField == field {
			result = append(result, u)
		}
	}
	return result, nil
}

func (m *mockUserRepo) ListByIDs(_ context.Context, ids []string) ([]model.User, error) {
	var result []model.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			result = append(result, *u)
		}
	}
	return result, nil
}

func (m *mockUserRepo) Count(_ context.Context) (int64, error) {
	return int64(len(m.users)), nil
}

func (m *mockUserRepo) ShiftJuryDates(_ context.Context, id string, date time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if u.LastJuryDate != nil && u.LastJuryDate.Equal(date) {
		return nil
	}
	u.PenultimateJuryDate = u.LastJuryDate
	d := date
	u.LastJuryDate = &d
	m.shifted[id] = date
	return nil
}

// sorted 按 user_id 排序，保证候选人顺序稳定
func (m *mockUserRepo) sorted() []model.User {
	out := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// ── Mock ProcedureRepository ──

type mockProcedureRepo struct {
	procedures map[string]*model.Procedure
	nextID     int
	updates    int
}

func newMockProcedureRepo() *mockProcedureRepo {
	return &mockProcedureRepo{procedures: make(map[string]*model.Procedure)}
}

func (m *mockProcedureRepo) Create(_ context.Context, p *model.Procedure) error {
	if p.ProcedureID == "" {
		m.nextID++
		p.ProcedureID = fmt.Sprintf("proc-%04d", m.nextID)
	}
	if p.Version == 0 {
		p.Version = 1
	}
	if p.Status == "" {
		p.Status = model.StatusDraft
	}
	m.procedures[p.ProcedureID] = p.Clone()
	return nil
}

func (m *mockProcedureRepo) GetByID(_ context.Context, id string) (*model.Procedure, error) {
	if p, ok := m.procedures[id]; ok {
		return p.Clone(), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockProcedureRepo) Update(_ context.Context, p *model.Procedure) error {
	stored, ok := m.procedures[p.ProcedureID]
	if !ok || stored.Version != p.Version {
		return pkgerrors.ErrOptimisticLock
	}
	p.Version++
	m.updates++
	m.procedures[p.ProcedureID] = p.Clone()
	return nil
}

func (m *mockProcedureRepo) Delete(_ context.Context, id, _ string) error {
	delete(m.procedures, id)
	return nil
}

func (m *mockProcedureRepo) List(_ context.Context, filter repository.ProcedureFilter, offset, limit int) ([]model.Procedure, int64, error) {
	all := m.filter(filter)
	total := int64(len(all))
	if offset > len(all) {
		return nil, total, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], total, nil
}

func (m *mockProcedureRepo) ListByMember(_ context.Context, userID string) ([]model.Procedure, error) {
	var result []model.Procedure
	for _, p := range m.filter(repository.ProcedureFilter{}) {
		if p.HasMember(userID) {
			result = append(result, p)
		}
	}
	return result, nil
}

func (m *mockProcedureRepo) ListByDateRange(_ context.Context, start, end time.Time, excludeID string) ([]model.Procedure, error) {
	var result []model.Procedure
	for _, p := range m.procedures {
		if p.ProcedureID == excludeID {
			continue
		}
		if !p.Date.Before(start) && p.Date.Before(end) {
			result = append(result, *p.Clone())
		}
	}
	return result, nil
}

func (m *mockProcedureRepo) Count(_ context.Context, filter repository.ProcedureFilter) (int64, error) {
	return int64(len(m.filter(filter))), nil
}

func (m *mockProcedureRepo) ListRecent(_ context.Context, limit int) ([]model.Procedure, error) {
	all := m.filter(repository.ProcedureFilter{})
	return all[:min(limit, len(all))], nil
}

// filter 按日期倒序返回匹配的程序
func (m *mockProcedureRepo) filter(f repository.ProcedureFilter) []model.Procedure {
	var out []model.Procedure
	for _, p := range m.procedures {
		if f.Status != "" && string(p.Status) != f.Status {
			continue
		}
		if len(f.Statuses) > 0 && !containsString(f.Statuses, string(p.Status)) {
			continue
		}
		if f.Type != "" && string(p.Type) != f.Type {
			continue
		}
		if f.ScientificField != "" && p.ScientificField != f.ScientificField {
			continue
		}
		if f.From != nil && p.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && !p.Date.Before(*f.To) {
			continue
		}
		out = append(out, *p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// ── Mock UnavailabilityRepository ──

type mockUnavailabilityRepo struct {
	items  map[string]*model.Unavailability
	nextID int
	failOn error
}

func newMockUnavailabilityRepo() *mockUnavailabilityRepo {
	return &mockUnavailabilityRepo{items: make(map[string]*model.Unavailability)}
}

func (m *mockUnavailabilityRepo) ListByUser(_ context.Context, userID string) ([]model.Unavailability, error) {
	var result []model.Unavailability
	for _, u := range m.items {
		if u.UserID == userID {
			result = append(result, *u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartDate.Before(result[j].StartDate) })
	return result, nil
}

func (m *mockUnavailabilityRepo) GetByID(_ context.Context, id string) (*model.Unavailability, error) {
	if u, ok := m.items[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUnavailabilityRepo) Create(_ context.Context, u *model.Unavailability) error {
	if m.failOn != nil {
		return m.failOn
	}
	m.nextID++
	u.UnavailabilityID = fmt.Sprintf("un-%d", m.nextID)
	cp := *u
	m.items[u.UnavailabilityID] = &cp
	return nil
}

func (m *mockUnavailabilityRepo) BatchCreate(ctx context.Context, items []model.Unavailability) error {
	for i := range items {
		if err := m.Create(ctx, &items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockUnavailabilityRepo) Update(_ context.Context, u *model.Unavailability) error {
	cp := *u
	m.items[u.UnavailabilityID] = &cp
	return nil
}

func (m *mockUnavailabilityRepo) Delete(_ context.Context, id, _ string) error {
	delete(m.items, id)
	return nil
}

func (m *mockUnavailabilityRepo) ExistsCovering(_ context.Context, userID string, t time.Time) (bool, error) {
	for _, u := range m.items {
		if u.UserID == userID && u.Covers(t) {
			return true, nil
		}
	}
	return false, nil
}

// ── Mock NotificationRepository ──

type mockNotificationRepo struct {
	items   []model.Notification
	failOn  error
	cutoffs []time.Time
}

func newMockNotificationRepo() *mockNotificationRepo {
	return &mockNotificationRepo{}
}

func (m *mockNotificationRepo) BatchCreate(_ context.Context, items []model.Notification) error {
	if m.failOn != nil {
		return m.failOn
	}
	for i := range items {
		items[i].NotificationID = fmt.Sprintf("n-%d", len(m.items)+1)
		m.items = append(m.items, items[i])
	}
	return nil
}

func (m *mockNotificationRepo) ListByUser(_ context.Context, userID string, unreadOnly bool, offset, limit int) ([]model.Notification, int64, error) {
	var all []model.Notification
	for _, n := range m.items {
		if n.UserID == userID && (!unreadOnly || !n.IsRead) {
			all = append(all, n)
		}
	}
	total := int64(len(all))
	if offset > len(all) {
		return nil, total, nil
	}
	return all[offset:min(offset+limit, len(all))], total, nil
}

func (m *mockNotificationRepo) CountUnread(_ context.Context, userID string) (int64, error) {
	var n int64
	for _, item := range m.items {
		if item.UserID == userID && !item.IsRead {
			n++
		}
	}
	return n, nil
}

func (m *mockNotificationRepo) MarkRead(_ context.Context, id, userID string) (bool, error) {
	for i := range m.items {
		if m.items[i].NotificationID == id && m.items[i].UserID == userID {
			m.items[i].IsRead = true
			return true, nil
		}
	}
	return false, nil
}

func (m *mockNotificationRepo) MarkAllRead(_ context.Context, userID string) (int64, error) {
	var n int64
	for i := range m.items {
		if m.items[i].UserID == userID && !m.items[i].IsRead {
			m.items[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (m *mockNotificationRepo) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.cutoffs = append(m.cutoffs, cutoff)
	var kept []model.Notification
	var n int64
	for _, item := range m.items {
		if item.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, item)
	}
	m.items = kept
	return n, nil
}

// ── Mock Redis 能力 ──

type mockPublisher struct {
	mu       sync.Mutex
	messages map[string][][]byte
	err      error
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{messages: make(map[string][][]byte)}
}

func (m *mockPublisher) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages[channel] = append(m.messages[channel], payload)
	return nil
}

type mockBlacklist struct {
	revoked map[string]time.Duration
}

func newMockBlacklist() *mockBlacklist {
	return &mockBlacklist{revoked: make(map[string]time.Duration)}
}

func (m *mockBlacklist) BlacklistToken(_ context.Context, jti string, ttl time.Duration) error {
	m.revoked[jti] = ttl
	return nil
}

func (m *mockBlacklist) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	_, ok := m.revoked[jti]
	return ok, nil
}

type mockLockClient struct {
	mu       sync.Mutex
	held     map[string]bool
	attempts int
	err      error
}

func newMockLockClient() *mockLockClient {
	return &mockLockClient{held: make(map[string]bool)}
}

func (m *mockLockClient) AcquireLock(_ context.Context, key string, _ time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.err != nil {
		return nil, m.err
	}
	if m.held[key] {
		return nil, pkgerrors.ErrLockNotAcquired
	}
	m.held[key] = true
	return func() {
		m.mu.Lock()
		delete(m.held, key)
		m.mu.Unlock()
	}, nil
}

// ── 测试夹具 ──

type mockRepos struct {
	users          *mockUserRepo
	procedures     *mockProcedureRepo
	unavailability *mockUnavailabilityRepo
	notifications  *mockNotificationRepo
}

func newMockRepository() (*repository.Repository, *mockRepos) {
	m := &mockRepos{
		users:          newMockUserRepo(),
		procedures:     newMockProcedureRepo(),
		unavailability: newMockUnavailabilityRepo(),
		notifications:  newMockNotificationRepo(),
	}
	repo := &repository.Repository{
		User:           m.users,
		Procedure:      m.procedures,
		Unavailability: m.unavailability,
		Notification:   m.notifications,
	}
	return repo, m
}

var errMockDB = errors.New("数据库故障")

const testHomeUniversity = "Великотърновски университет"

var sofia = mustLoadLocation("Europe/Sofia")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func createTestUser(users *mockUserRepo, id, email, password, role string) *model.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	u := &model.User{
		UserID:          id,
		FullName:        "测试用户 " + id,
		Email:           email,
		PasswordHash:    string(hash),
		Role:            role,
		AcademicRank:    model.RankAssociateProfessor,
		ScientificField: "Mathematics",
		University:      testHomeUniversity,
	}
	_ = users.Create(context.Background(), u)
	return u
}

// seedCandidate 直接写入候选人（不生成密码哈希）
func seedCandidate(users *mockUserRepo, id string, rank model.AcademicRank, university string, distance float64) {
	users.users[id] = &model.User{
		UserID:          id,
		FullName:        "Candidate " + id,
		Email:           id + "@example.bg",
		Role:            model.RoleUser,
		AcademicRank:    rank,
		ScientificField: "Mathematics",
		University:      university,
		DistanceToCity:  distance,
		VersionedModel:  model.VersionedModel{Version: 1},
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
