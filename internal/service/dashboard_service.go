package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/BorisSavianov/doxa-backend/internal/dto"
	"github.com/BorisSavianov/doxa-backend/internal/model"
	"github.com/BorisSavianov/doxa-backend/internal/repository"
)

// DashboardService 仪表盘统计接口
type DashboardService interface {
	UserStats(ctx context.Context, userID string) (*dto.UserDashboardStats, error)
	AdminStats(ctx context.Context) (*dto.AdminDashboardStats, error)
	Upcoming(ctx context.Context, userID string, limit int) ([]dto.ProcedureResponse, error)
	RecentActivity(ctx context.Context, userID string, limit int) ([]dto.ActivityItem, error)
}

type dashboardService struct {
	repo   *repository.Repository
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

// NewDashboardService 创建 DashboardService 实例
func NewDashboardService(repo *repository.Repository, loc *time.Location, logger *zap.Logger) DashboardService {
	return &dashboardService{repo: repo, loc: loc, now: time.Now, logger: logger}
}

// seatedAccepted 用户作为正式成员已接受
func seatedAccepted(p *model.Procedure, userID string) bool {
	i := p.MemberIndex(userID)
	if i < 0 {
		return false
	}
	m := p.JuryMembers[i]
	return !m.IsReserve && m.Status == model.MemberAccepted
}

func (s *dashboardService) UserStats(ctx context.Context, userID string) (*dto.UserDashboardStats, error) {
	procedures, err := s.repo.Procedure.ListByMember(ctx, userID)
	if err != nil {
		s.logger.Error("查询成员程序失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	now := s.now()
	yearStart := time.Date(now.In(s.loc).Year(), time.January, 1, 0, 0, 0, 0, s.loc)

	var stats dto.UserDashboardStats
	for i := range procedures {
		p := &procedures[i]
		m := p.JuryMembers[p.MemberIndex(userID)]
		if !m.IsReserve && m.Status == model.MemberPending && !p.Status.Terminal() {
			stats.PendingInvitations++
		}
		if p.Status == model.StatusCompleted && seatedAccepted(p, userID) {
			stats.CompletedProcedures++
		}
		if !seatedAccepted(p, userID) || p.Status == model.StatusCancelled {
			continue
		}
		if p.Date.After(now) {
			stats.UpcomingProcedures++
		} else if !p.Date.Before(yearStart) {
			stats.ThisYearParticipations++
		}
	}
	return &stats, nil
}

func (s *dashboardService) AdminStats(ctx context.Context) (*dto.AdminDashboardStats, error) {
	now := s.now()
	local := now.In(s.loc)
	monthStart := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, s.loc)
	in30 := now.AddDate(0, 0, 30)

	stats := &dto.AdminDashboardStats{ByStatus: make(map[string]int64)}
	var err error

	if stats.TotalUsers, err = s.repo.User.Count(ctx); err != nil {
		return nil, s.fail(err)
	}

	counts := []struct {
		dst    *int64
		filter repository.ProcedureFilter
	}{
		{&stats.TotalProcedures, repository.ProcedureFilter{}},
		{&stats.ActiveProcedures, repository.ProcedureFilter{Statuses: activeStatuses()}},
		{&stats.PendingConfirmations, repository.ProcedureFilter{Status: string(model.StatusAwaitingConfirmations)}},
		{&stats.UpcomingProcedures, repository.ProcedureFilter{Statuses: activeStatuses(), From: &now, To: &in30}},
		{&stats.CompletedThisMonth, repository.ProcedureFilter{Status: string(model.StatusCompleted), From: &monthStart, To: &now}},
	}
	for _, c := range counts {
		if *c.dst, err = s.repo.Procedure.Count(ctx, c.filter); err != nil {
			return nil, s.fail(err)
		}
	}

	for _, st := range allStatuses {
		n, err := s.repo.Procedure.Count(ctx, repository.ProcedureFilter{Status: string(st)})
		if err != nil {
			return nil, s.fail(err)
		}
		stats.ByStatus[string(st)] = n
	}
	return stats, nil
}

func (s *dashboardService) Upcoming(ctx context.Context, userID string, limit int) ([]dto.ProcedureResponse, error) {
	procedures, err := s.repo.Procedure.ListByMember(ctx, userID)
	if err != nil {
		s.logger.Error("查询成员程序失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	now := s.now()
	var upcoming []*model.Procedure
	for i := range procedures {
		p := &procedures[i]
		if p.Date.After(now) && p.Status != model.StatusCancelled && seatedAccepted(p, userID) {
			upcoming = append(upcoming, p)
		}
	}
	sort.SliceStable(upcoming, func(i, j int) bool { return upcoming[i].Date.Before(upcoming[j].Date) })
	if len(upcoming) > limit {
		upcoming = upcoming[:limit]
	}

	result := make([]dto.ProcedureResponse, 0, len(upcoming))
	for _, p := range upcoming {
		result = append(result, toProcedureResponse(p, nil))
	}
	return result, nil
}

func (s *dashboardService) RecentActivity(ctx context.Context, userID string, limit int) ([]dto.ActivityItem, error) {
	procedures, err := s.repo.Procedure.ListByMember(ctx, userID)
	if err != nil {
		s.logger.Error("查询成员程序失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	type activity struct {
		item dto.ActivityItem
		at   time.Time
	}
	var all []activity
	for i := range procedures {
		p := &procedures[i]
		m := p.JuryMembers[p.MemberIndex(userID)]
		name := procedureLabel(p)

		all = append(all, activity{at: m.InvitedAt, item: dto.ActivityItem{
			Type: "invitation", ProcedureID: p.ProcedureID, ProcedureName: name, Status: string(m.Status),
		}})
		if m.RespondedAt != nil {
			typ := "rejected"
			if m.Status == model.MemberAccepted {
				typ = "accepted"
			}
			all = append(all, activity{at: *m.RespondedAt, item: dto.ActivityItem{
				Type: typ, ProcedureID: p.ProcedureID, ProcedureName: name, Status: string(m.Status),
			}})
		}
		if p.Status == model.StatusCompleted && m.Status == model.MemberAccepted {
			all = append(all, activity{at: p.UpdatedAt, item: dto.ActivityItem{
				Type: "completed", ProcedureID: p.ProcedureID, ProcedureName: name, Status: string(model.StatusCompleted),
			}})
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].at.After(all[j].at) })
	if len(all) > limit {
		all = all[:limit]
	}
	result := make([]dto.ActivityItem, 0, len(all))
	for _, a := range all {
		a.item.Timestamp = formatTime(a.at)
		result = append(result, a.item)
	}
	return result, nil
}

// ── 辅助函数 ──

var allStatuses = []model.ProcedureStatus{
	model.StatusDraft,
	model.StatusPendingJury,
	model.StatusJurySelected,
	model.StatusAwaitingConfirmations,
	model.StatusConfirmed,
	model.StatusCompleted,
	model.StatusCancelled,
}

func activeStatuses() []string {
	var out []string
	for _, st := range allStatuses {
		if !st.Terminal() {
			out = append(out, string(st))
		}
	}
	return out
}

func (s *dashboardService) fail(err error) error {
	s.logger.Error("统计查询失败", zap.Error(err))
	return err
}
