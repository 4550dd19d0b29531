package jury

import (
	"context"
	"time"

	"github.com/BorisSavianov/doxa-backend/internal/model"
)

// EligibilityFilter 候选人资格过滤
//
// 依次检查：
//  1. 未被排除（已是本程序成员）
//  2. 当天未被标记为不可用
//  3. 连续两次担任评审者不可再选：penultimateJuryDate 与 lastJuryDate
//     均已设置且不在同一日历日即视为连续，与当前程序日期无关；
//     同一天存在其他程序时该规则对所有人豁免
type EligibilityFilter struct {
	oracle AvailabilityOracle
	loc    *time.Location
}

// NewEligibilityFilter loc 决定"日历日"的时区，nil 时使用 UTC
func NewEligibilityFilter(oracle AvailabilityOracle, loc *time.Location) *EligibilityFilter {
	if loc == nil {
		loc = time.UTC
	}
	return &EligibilityFilter{oracle: oracle, loc: loc}
}

// FilterEligible 返回满足条件的候选人，保持输入顺序
func (f *EligibilityFilter) FilterEligible(
	ctx context.Context,
	candidates []model.User,
	procedureDate time.Time,
	excludedUserIDs []string,
	sameDayProcedureIDs []string,
) ([]model.User, error) {
	excluded := make(map[string]struct{}, len(excludedUserIDs))
	for _, id := range excludedUserIDs {
		excluded[id] = struct{}{}
	}
	consecutiveExempt := len(sameDayProcedureIDs) > 0

	eligible := make([]model.User, 0, len(candidates))
	for _, c := range candidates {
		if _, skip := excluded[c.UserID]; skip {
			continue
		}

		available, err := f.oracle.IsAvailable(ctx, c.UserID, procedureDate)
		if err != nil {
			return nil, collaboratorErr("availability.is_available", err)
		}
		if !available {
			continue
		}

		if !consecutiveExempt && f.servedConsecutively(&c) {
			continue
		}

		eligible = append(eligible, c)
	}
	return eligible, nil
}

// TODO: 该规则不看距今多久，两次日期一旦不同即永久排除，需与评审办公室确认口径
func (f *EligibilityFilter) servedConsecutively(u *model.User) bool {
	if u.PenultimateJuryDate == nil || u.LastJuryDate == nil {
		return false
	}
	return !SameCalendarDay(*u.PenultimateJuryDate, *u.LastJuryDate, f.loc)
}

// SameCalendarDay 两个时间在 loc 时区下是否为同一日历日
func SameCalendarDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// DayBounds 返回 t 所在日历日在 loc 时区下的 [start, end)
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := t.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
