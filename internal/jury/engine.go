package jury

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/BorisSavianov/doxa-backend/internal/model"
	pkgerrors "github.com/BorisSavianov/doxa-backend/pkg/errors"
)

// Options 引擎配置
type Options struct {
	HomeUniversity     string
	Location           *time.Location
	MaxConflictRetries int
	Now                func() time.Time
	Logger             *zap.Logger
}

// Engine 评审委员会状态机
//
//	DRAFT ──AutoSelectJury──▶ AWAITING_CONFIRMATIONS ──全部接受──▶ CONFIRMED ──Complete──▶ COMPLETED
//	                              ▲          │
//	                              └─拒绝/补选─┘
//
// 每次状态变更都基于最新读取的程序并按版本号条件写回；
// 版本冲突时重新读取并重放，最多 MaxConflictRetries 次。
type Engine struct {
	selector   *Selector
	directory  CandidateDirectory
	store      ProcedureStore
	notifier   Notifier
	maxRetries int
	now        func() time.Time
	logger     *zap.Logger
}

// NewEngine 创建评审引擎
func NewEngine(directory CandidateDirectory, oracle AvailabilityOracle, store ProcedureStore, notifier Notifier, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	filter := NewEligibilityFilter(oracle, opts.Location)
	return &Engine{
		selector:   NewSelector(directory, filter, opts.HomeUniversity, logger),
		directory:  directory,
		store:      store,
		notifier:   notifier,
		maxRetries: opts.MaxConflictRetries,
		now:        now,
		logger:     logger,
	}
}

// Selector 返回引擎使用的选拔器
func (e *Engine) Selector() *Selector { return e.selector }

// ════════════════════════════════════════════════════════════
// AutoSelectJury
// ════════════════════════════════════════════════════════════

// AutoSelectJury 选拔或补齐评审委员会
//
// 已拒绝的成员保留在列表中作为排除记录；现任成员与有效候补保持不变，
// 仅补选缺少的席位与候补。新成员追加在候补之前，候补始终位于末尾。
// 只向本次新加入的成员发送邀请。
func (e *Engine) AutoSelectJury(ctx context.Context, procedureID string) (*model.Procedure, error) {
	var invited []string
	saved, err := e.transition(ctx, procedureID, func(p *model.Procedure) error {
		added, err := e.fill(ctx, p)
		invited = added
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(invited) > 0 {
		if err := e.notifier.NotifyInvitation(ctx, saved, invited); err != nil {
			e.logger.Error("发送评审邀请失败", zap.String("procedure_id", procedureID), zap.Error(err))
			return nil, collaboratorErr("notifier.invitation", err)
		}
	}
	return saved, nil
}

// fill 在 p 上补选空缺，返回新加入成员的 ID
func (e *Engine) fill(ctx context.Context, p *model.Procedure) ([]string, error) {
	if p.Status != model.StatusDraft && p.Status != model.StatusAwaitingConfirmations {
		return nil, ErrInvalidStateTransition
	}

	full, err := RequirementsFor(p.Type)
	if err != nil {
		return nil, err
	}
	residual, err := e.residual(ctx, p, full)
	if err != nil {
		return nil, err
	}

	var added []string
	if residual.TotalMembers > 0 || residual.ReserveInternal || residual.ReserveExternal {
		sameDay, err := e.store.FindSameDay(ctx, p.Date, p.ProcedureID)
		if err != nil {
			return nil, collaboratorErr("procedure.find_same_day", err)
		}
		sameDayIDs := make([]string, 0, len(sameDay))
		for _, sd := range sameDay {
			sameDayIDs = append(sameDayIDs, sd.ProcedureID)
		}

		excluded := make([]string, 0, len(p.JuryMembers))
		for _, m := range p.JuryMembers {
			excluded = append(excluded, m.UserID)
		}

		sel, err := e.selector.SelectFor(ctx, residual, SelectRequest{
			ProcedureID:         p.ProcedureID,
			ScientificField:     p.ScientificField,
			Date:                p.Date,
			ExcludedUserIDs:     excluded,
			SameDayProcedureIDs: sameDayIDs,
		})
		if err != nil {
			return nil, err
		}
		added = e.merge(p, sel)
	}

	p.Status = model.StatusAwaitingConfirmations
	return added, nil
}

// residual 计算补齐所需的剩余名额
func (e *Engine) residual(ctx context.Context, p *model.Procedure, full Requirements) (Requirements, error) {
	var seatedInternal, seatedExternal, seatedProfs int
	var hasReserveInternal, hasReserveExternal bool

	for i := range p.JuryMembers {
		m := &p.JuryMembers[i]
		switch {
		case m.Seated():
			if m.IsExternal {
				seatedExternal++
			} else {
				seatedInternal++
			}
			u, err := e.directory.FindByID(ctx, m.UserID)
			if err != nil {
				return Requirements{}, collaboratorErr("directory.find_by_id", err)
			}
			if u != nil && u.IsProfessor() {
				seatedProfs++
			}
		case m.ActiveReserve():
			if m.IsExternal {
				hasReserveExternal = true
			} else {
				hasReserveInternal = true
			}
		}
	}

	externalMissing := max(0, full.ExternalMembers-seatedExternal)
	internalMissing := max(0, full.InternalMembers()-seatedInternal)
	r := Requirements{
		TotalMembers:    internalMissing + externalMissing,
		ExternalMembers: externalMissing,
		MinProfessors:   max(0, full.MinProfessors-seatedProfs),
		ReserveInternal: !hasReserveInternal,
		ReserveExternal: !hasReserveExternal,
	}
	if r.MinProfessors > r.TotalMembers {
		e.logger.Warn("现任成员中教授不足且空缺席位不够补齐",
			zap.String("procedure_id", p.ProcedureID),
			zap.Int("professors_missing", r.MinProfessors),
			zap.Int("open_seats", r.TotalMembers),
		)
		r.MinProfessors = r.TotalMembers
	}
	return r, nil
}

// merge 将选拔结果追加到成员列表，返回新成员 ID
func (e *Engine) merge(p *model.Procedure, sel *Selection) []string {
	now := e.now().UTC()
	var added []string
	invite := func(u *model.User, reserve bool) {
		added = append(added, u.UserID)
		p.JuryMembers = append(p.JuryMembers, model.JuryMember{
			UserID:     u.UserID,
			IsExternal: e.selector.IsExternal(u),
			IsReserve:  reserve,
			Status:     model.MemberPending,
			InvitedAt:  now,
		})
	}

	for _, u := range sel.Members() {
		u := u
		invite(&u, false)
	}
	if sel.ReserveInternal != nil {
		invite(sel.ReserveInternal, true)
	}
	if sel.ReserveExternal != nil {
		invite(sel.ReserveExternal, true)
	}
	p.JuryMembers = arrange(p.JuryMembers)
	return added
}

// arrange 稳定重排：正式成员（含已拒绝）→ 已拒绝候补 → 校内候补 → 校外候补
func arrange(members model.JuryMembers) model.JuryMembers {
	var primaries, rejectedReserves, reservesInternal, reservesExternal model.JuryMembers
	for _, m := range members {
		switch {
		case !m.IsReserve:
			primaries = append(primaries, m)
		case m.Status == model.MemberRejected:
			rejectedReserves = append(rejectedReserves, m)
		case m.IsExternal:
			reservesExternal = append(reservesExternal, m)
		default:
			reservesInternal = append(reservesInternal, m)
		}
	}
	out := make(model.JuryMembers, 0, len(members))
	out = append(out, primaries...)
	out = append(out, rejectedReserves...)
	out = append(out, reservesInternal...)
	return append(out, reservesExternal...)
}

// ════════════════════════════════════════════════════════════
// Respond
// ════════════════════════════════════════════════════════════

// Respond 记录成员答复
//
// 正式成员拒绝时：先由同侧候补递补并持久化，再重新选拔补齐
// 候补与空缺席位，最后通知其他成员。候补拒绝只记录答复。
func (e *Engine) Respond(ctx context.Context, procedureID, userID string, accept bool) (*model.Procedure, error) {
	var promoted []string
	var cascade bool
	saved, err := e.transition(ctx, procedureID, func(p *model.Procedure) error {
		promoted, cascade = nil, false

		idx := p.MemberIndex(userID)
		if idx < 0 {
			return ErrMemberNotFound
		}
		if p.Status != model.StatusAwaitingConfirmations && p.Status != model.StatusConfirmed {
			return ErrInvalidStateTransition
		}
		m := &p.JuryMembers[idx]
		if m.Status != model.MemberPending {
			return ErrMemberAlreadyResponded
		}

		now := e.now().UTC()
		m.RespondedAt = &now
		if accept {
			m.Status = model.MemberAccepted
		} else {
			m.Status = model.MemberRejected
		}

		if !accept && !m.IsReserve {
			cascade = true
			promoted = e.promote(p, now)
			return nil
		}

		reqs, err := RequirementsFor(p.Type)
		if err != nil {
			return err
		}
		if Confirmed(p, reqs) {
			p.Status = model.StatusConfirmed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("评审成员已答复",
		zap.String("procedure_id", procedureID),
		zap.String("user_id", userID),
		zap.Bool("accepted", accept),
		zap.String("status", string(saved.Status)),
	)

	if !cascade {
		if err := e.notifier.NotifyResponse(ctx, saved, userID, accept); err != nil {
			return nil, collaboratorErr("notifier.response", err)
		}
		return saved, nil
	}

	if len(promoted) > 0 {
		if err := e.notifier.NotifyInvitation(ctx, saved, promoted); err != nil {
			return nil, collaboratorErr("notifier.invitation", err)
		}
	}

	// 递补后的空缺（席位或候补）由重新选拔补齐；失败时拒绝记录仍然保留
	refilled, err := e.AutoSelectJury(ctx, procedureID)
	if err != nil {
		e.logger.Warn("拒绝后补选失败",
			zap.String("procedure_id", procedureID),
			zap.String("rejected_by", userID),
			zap.Error(err),
		)
		return nil, err
	}

	if err := e.notifier.NotifyResponse(ctx, refilled, userID, false); err != nil {
		return nil, collaboratorErr("notifier.response", err)
	}
	return refilled, nil
}

// promote 逐个填补正式席位空缺：每个空缺取同侧第一名有效候补转正
// 候补用尽即停止，剩余空缺留给重新选拔
func (e *Engine) promote(p *model.Procedure, now time.Time) []string {
	reqs, err := RequirementsFor(p.Type)
	if err != nil {
		return nil
	}

	var promoted []string
	for _, external := range []bool{false, true} {
		need := reqs.InternalMembers()
		if external {
			need = reqs.ExternalMembers
		}
		for seatedOn(p, external) < need {
			idx := firstActiveReserve(p, external)
			if idx < 0 {
				break
			}
			r := &p.JuryMembers[idx]
			r.IsReserve = false
			r.Status = model.MemberPending
			r.InvitedAt = now
			r.RespondedAt = nil
			promoted = append(promoted, r.UserID)
			e.logger.Info("候补成员递补",
				zap.String("procedure_id", p.ProcedureID),
				zap.String("user_id", r.UserID),
				zap.Bool("external", external),
			)
		}
	}
	p.JuryMembers = arrange(p.JuryMembers)
	return promoted
}

func seatedOn(p *model.Procedure, external bool) int {
	n := 0
	for i := range p.JuryMembers {
		if p.JuryMembers[i].Seated() && p.JuryMembers[i].IsExternal == external {
			n++
		}
	}
	return n
}

func firstActiveReserve(p *model.Procedure, external bool) int {
	for i := range p.JuryMembers {
		if p.JuryMembers[i].ActiveReserve() && p.JuryMembers[i].IsExternal == external {
			return i
		}
	}
	return -1
}

// Confirmed 正式席位已满且全部接受
func Confirmed(p *model.Procedure, reqs Requirements) bool {
	seated := 0
	for i := range p.JuryMembers {
		m := &p.JuryMembers[i]
		if !m.Seated() {
			continue
		}
		if m.Status != model.MemberAccepted {
			return false
		}
		seated++
	}
	return seated == reqs.TotalMembers
}

// ════════════════════════════════════════════════════════════
// Complete
// ════════════════════════════════════════════════════════════

// Complete 结束程序：更新已接受正式成员的评审日期，状态置为 COMPLETED
func (e *Engine) Complete(ctx context.Context, procedureID string) (*model.Procedure, error) {
	current, err := e.load(ctx, procedureID)
	if err != nil {
		return nil, err
	}
	if current.Status != model.StatusConfirmed {
		return nil, ErrInvalidStateTransition
	}

	// 状态写回失败后重新调用时，已更新过的成员不能再次平移日期
	for _, m := range current.JuryMembers {
		if !m.Seated() || m.Status != model.MemberAccepted {
			continue
		}
		u, err := e.directory.FindByID(ctx, m.UserID)
		if err != nil {
			return nil, collaboratorErr("directory.find_by_id", err)
		}
		if u == nil {
			e.logger.Warn("评审成员已不存在，跳过日期更新",
				zap.String("procedure_id", procedureID),
				zap.String("user_id", m.UserID),
			)
			continue
		}
		if u.LastJuryDate != nil && u.LastJuryDate.Equal(current.Date) {
			continue
		}
		if err := e.directory.UpdateJuryDates(ctx, m.UserID, current.Date); err != nil {
			return nil, collaboratorErr("directory.update_jury_dates", err)
		}
	}

	saved, err := e.transition(ctx, procedureID, func(p *model.Procedure) error {
		if p.Status != model.StatusConfirmed {
			return ErrInvalidStateTransition
		}
		p.Status = model.StatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("程序已完成", zap.String("procedure_id", procedureID))
	return saved, nil
}

// ── 读取 / 条件写回 ──

func (e *Engine) load(ctx context.Context, procedureID string) (*model.Procedure, error) {
	p, err := e.store.FindByID(ctx, procedureID)
	if err != nil {
		if errors.Is(err, ErrProcedureNotFound) {
			return nil, err
		}
		return nil, collaboratorErr("procedure.find_by_id", err)
	}
	return p, nil
}

// transition 读取 → 在副本上执行 apply → 按版本号写回；版本冲突时重放
func (e *Engine) transition(ctx context.Context, procedureID string, apply func(p *model.Procedure) error) (*model.Procedure, error) {
	for attempt := 0; ; attempt++ {
		current, err := e.load(ctx, procedureID)
		if err != nil {
			return nil, err
		}

		next := current.Clone()
		if err := apply(next); err != nil {
			return nil, err
		}

		saved, err := e.store.Save(ctx, next)
		if err == nil {
			return saved, nil
		}
		if errors.Is(err, pkgerrors.ErrOptimisticLock) && attempt < e.maxRetries {
			e.logger.Debug("程序版本冲突，重试",
				zap.String("procedure_id", procedureID),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		return nil, collaboratorErr("procedure.save", err)
	}
}
