package jury

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/BorisSavianov/doxa-backend/internal/model"
	pkgerrors "github.com/BorisSavianov/doxa-backend/pkg/errors"
)

var fixedNow = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

// doctorPool 校内 i1 为教授，其余为副教授；校外 e1 为教授，距离 10..50
func doctorPool(extra ...model.User) []model.User {
	users := []model.User{
		professor("i1", testHome, 0),
		associate("i2", testHome, 0),
		associate("i3", testHome, 0),
		associate("i4", testHome, 0),
		professor("e1", "Sofia University", 10),
		associate("e2", "Plovdiv University", 20),
		associate("e3", "Ruse University", 30),
		associate("e4", "Varna University", 40),
		associate("e5", "Burgas University", 50),
	}
	return append(users, extra...)
}

func draftProcedure() *model.Procedure {
	return &model.Procedure{
		ProcedureID:     "proc-1",
		Date:            procedureDate(),
		Type:            model.ProcedureDoctor,
		ScientificField: testField,
		Status:          model.StatusDraft,
		JuryMembers:     model.JuryMembers{},
	}
}

type engineFixture struct {
	engine   *Engine
	dir      *fakeDirectory
	store    *fakeStore
	notifier *fakeNotifier
}

func newEngineFixture(p *model.Procedure, users ...model.User) *engineFixture {
	f := &engineFixture{
		dir:      newFakeDirectory(users...),
		store:    newFakeStore(p),
		notifier: &fakeNotifier{},
	}
	f.engine = NewEngine(f.dir, &fakeOracle{}, f.store, f.notifier, Options{
		HomeUniversity:     testHome,
		Location:           sofia(),
		MaxConflictRetries: 3,
		Now:                func() time.Time { return fixedNow },
		Logger:             zap.NewNop(),
	})
	return f
}

// selected 返回已完成初次选拔的夹具
func selected(t *testing.T, extra ...model.User) *engineFixture {
	t.Helper()
	f := newEngineFixture(draftProcedure(), doctorPool(extra...)...)
	if _, err := f.engine.AutoSelectJury(context.Background(), "proc-1"); err != nil {
		t.Fatalf("AutoSelectJury 失败: %v", err)
	}
	return f
}

func assertMemberInvariants(t *testing.T, p *model.Procedure) {
	t.Helper()
	seen := map[string]bool{}
	reserveSeen := false
	seated := 0
	for _, m := range p.JuryMembers {
		if seen[m.UserID] {
			t.Errorf("成员重复: %s", m.UserID)
		}
		seen[m.UserID] = true
		if m.IsReserve {
			reserveSeen = true
		} else if reserveSeen {
			t.Errorf("正式成员 %s 位于候补之后", m.UserID)
		}
		if m.Seated() {
			seated++
		}
	}
	reqs, _ := RequirementsFor(p.Type)
	if seated > reqs.TotalMembers {
		t.Errorf("正式成员超额: %d", seated)
	}
}

func TestAutoSelectJury_FromDraft(t *testing.T) {
	f := newEngineFixture(draftProcedure(), doctorPool()...)

	p, err := f.engine.AutoSelectJury(context.Background(), "proc-1")
	if err != nil {
		t.Fatalf("意外错误: %v", err)
	}
	if p.Status != model.StatusAwaitingConfirmations {
		t.Errorf("期望 awaiting_confirmations，实际 %s", p.Status)
	}
	want := []string{"i2", "i3", "e1", "e2", "e3", "i1", "e4"}
	if !equalIDs(memberIDs(p.JuryMembers), want) {
		t.Errorf("成员期望 %v，实际 %v", want, memberIDs(p.JuryMembers))
	}
	for i, m := range p.JuryMembers {
		if m.Status != model.MemberPending || !m.InvitedAt.Equal(fixedNow) {
			t.Errorf("成员 %s 状态错误: %+v", m.UserID, m)
		}
		if m.IsReserve != (i >= 5) {
			t.Errorf("成员 %s 候补标记错误", m.UserID)
		}
		if m.IsExternal != (m.UserID[0] == 'e') {
			t.Errorf("成员 %s 校外标记错误", m.UserID)
		}
	}
	if len(f.notifier.invitations) != 1 || !equalIDs(f.notifier.invitations[0], want) {
		t.Errorf("邀请错误: %v", f.notifier.invitations)
	}
	assertMemberInvariants(t, p)
}

func TestAutoSelectJury_NothingMissing(t *testing.T) {
	f := selected(t)
	before := f.store.get("proc-1")

	p, err := f.engine.AutoSelectJury(context.Background(), "proc-1")
	if err != nil {
		t.Fatalf("意外错误: %v", err)
	}
	if !equalIDs(memberIDs(p.JuryMembers), memberIDs(before.JuryMembers)) {
		t.Error("成员已满时不应变动")
	}
	if len(f.notifier.invitations) != 1 {
		t.Errorf("不应发送新的邀请: %v", f.notifier.invitations)
	}
}

func TestAutoSelectJury_InvalidState(t *testing.T) {
	p := draftProcedure()
	p.Status = model.StatusConfirmed
	f := newEngineFixture(p, doctorPool()...)

	if _, err := f.engine.AutoSelectJury(context.Background(), "proc-1"); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("期望 ErrInvalidStateTransition，实际 %v", err)
	}
}

func TestAutoSelectJury_NotFound(t *testing.T) {
	f := newEngineFixture(draftProcedure(), doctorPool()...)
	if _, err := f.engine.AutoSelectJury(context.Background(), "missing"); !errors.Is(err, ErrProcedureNotFound) {
		t.Errorf("期望 ErrProcedureNotFound，实际 %v", err)
	}
}

func TestAutoSelectJury_InsufficientLeavesProcedureUntouched(t *testing.T) {
	f := newEngineFixture(draftProcedure(), doctorPool()[:6]...)

	if _, err := f.engine.AutoSelectJury(context.Background(), "proc-1"); !errors.Is(err, ErrInsufficientCandidates) {
		t.Fatalf("期望 ErrInsufficientCandidates，实际 %v", err)
	}
	p := f.store.get("proc-1")
	if p.Status != model.StatusDraft || len(p.JuryMembers) != 0 {
		t.Errorf("选拔失败不应写回: %+v", p)
	}
	if f.store.saves != 0 {
		t.Errorf("不应保存，实际保存 %d 次", f.store.saves)
	}
}

func TestRespond_AllAcceptConfirms(t *testing.T) {
	f := selected(t)
	ctx := context.Background()

	seated := []string{"i2", "i3", "e1", "e2", "e3"}
	for i, id := range seated {
		p, err := f.engine.Respond(ctx, "proc-1", id, true)
		if err != nil {
			t.Fatalf("Respond(%s) 失败: %v", id, err)
		}
		wantStatus := model.StatusAwaitingConfirmations
		if i == len(seated)-1 {
			wantStatus = model.StatusConfirmed
		}
		if p.Status != wantStatus {
			t.Errorf("第 %d 次答复后期望 %s，实际 %s", i+1, wantStatus, p.Status)
		}
	}
	if len(f.notifier.responses) != len(seated) {
		t.Errorf("期望 %d 条答复通知，实际 %d", len(seated), len(f.notifier.responses))
	}

	// 候补在 CONFIRMED 下仍可答复
	p, err := f.engine.Respond(ctx, "proc-1", "e4", true)
	if err != nil {
		t.Fatalf("候补答复失败: %v", err)
	}
	if p.Status != model.StatusConfirmed {
		t.Errorf("候补答复不应改变状态: %s", p.Status)
	}
}

func TestRespond_RejectPromotesReserveAndRefills(t *testing.T) {
	f := selected(t)

	p, err := f.engine.Respond(context.Background(), "proc-1", "i2", false)
	if err != nil {
		t.Fatalf("意外错误: %v", err)
	}
	want := []string{"i2", "i3", "e1", "e2", "e3", "i1", "i4", "e4"}
	if !equalIDs(memberIDs(p.JuryMembers), want) {
		t.Errorf("成员期望 %v，实际 %v", want, memberIDs(p.JuryMembers))
	}

	rejected := p.JuryMembers[p.MemberIndex("i2")]
	if rejected.Status != model.MemberRejected || rejected.RespondedAt == nil {
		t.Errorf("拒绝记录错误: %+v", rejected)
	}
	promoted := p.JuryMembers[p.MemberIndex("i1")]
	if promoted.IsReserve || promoted.Status != model.MemberPending || promoted.RespondedAt != nil {
		t.Errorf("候补递补错误: %+v", promoted)
	}
	newReserve := p.JuryMembers[p.MemberIndex("i4")]
	if !newReserve.IsReserve || newReserve.IsExternal {
		t.Errorf("新候补错误: %+v", newReserve)
	}

	inv := f.notifier.invitations
	if len(inv) != 3 || !equalIDs(inv[1], []string{"i1"}) || !equalIDs(inv[2], []string{"i4"}) {
		t.Errorf("邀请顺序错误: %v", inv)
	}
	if len(f.notifier.responses) != 1 || f.notifier.responses[0] != (responseEvent{userID: "i2"}) {
		t.Errorf("答复通知错误: %v", f.notifier.responses)
	}
	if p.Status != model.StatusAwaitingConfirmations {
		t.Errorf("期望 awaiting_confirmations，实际 %s", p.Status)
	}
	assertMemberInvariants(t, p)
}

// 唯一的教授拒绝、递补者为副教授时，空缺席位为 0，教授名额无法再补，程序仍可确认
func TestRespond_ProfessorReplacedByAssociateReserve(t *testing.T) {
	f := selected(t)
	ctx := context.Background()

	p, err := f.engine.Respond(ctx, "proc-1", "e1", false)
	if err != nil {
		t.Fatalf("意外错误: %v", err)
	}
	want := []string{"i2", "i3", "e1", "e2", "e3", "e4", "i1", "e5"}
	if !equalIDs(memberIDs(p.JuryMembers), want) {
		t.Errorf("成员期望 %v，实际 %v", want, memberIDs(p.JuryMembers))
	}

	for _, id := range []string{"i2", "i3", "e2", "e3", "e4"} {
		if p, err = f.engine.Respond(ctx, "proc-1", id, true); err != nil {
			t.Fatalf("Respond(%s) 失败: %v", id, err)
		}
	}
	if p.Status != model.StatusConfirmed {
		t.Errorf("期望 confirmed，实际 %s", p.Status)
	}

	profs := 0
	for _, m := range p.JuryMembers {
		if !m.Seated() {
			continue
		}
		if u := f.dir.user(m.UserID); u.IsProfessor() {
			profs++
		}
	}
	if profs != 0 {
		t.Errorf("正式成员中不应有教授，实际 %d", profs)
	}
	assertMemberInvariants(t, p)
}

func TestRespond_ExternalRejectKeepsReservesLast(t *testing.T) {
	f := selected(t)

	p, err := f.engine.Respond(context.Background(), "proc-1", "e2", false)
	if err != nil {
		t.Fatalf("意外错误: %v", err)
	}
	want := []string{"i2", "i3", "e1", "e2", "e3", "e4", "i1", "e5"}
	if !equalIDs(memberIDs(p.JuryMembers), want) {
		t.Errorf("成员期望 %v，实际 %v", want, memberIDs(p.JuryMembers))
	}
	if m := p.JuryMembers[p.MemberIndex("e5")]; !m.IsReserve || !m.IsExternal {
		t.Errorf("e5 应为校外候补: %+v", m)
	}
	assertMemberInvariants(t, p)
}

func TestRespond_ExhaustedAfterTwoRejections(t *testing.T) {
	f := selected(t)
	ctx := context.Background()

	if _, err := f.engine.Respond(ctx, "proc-1", "i2", false); err != nil {
		t.Fatalf("第一次拒绝失败: %v", err)
	}
	_, err := f.engine.Respond(ctx, "proc-1", "i3", false)
	if !errors.Is(err, ErrInsufficientCandidates) {
		t.Fatalf("期望 ErrInsufficientCandidates，实际 %v", err)
	}

	// 拒绝与递补已持久化
	p := f.store.get("proc-1")
	if p.JuryMembers[p.MemberIndex("i3")].Status != model.MemberRejected {
		t.Error("拒绝应已保存")
	}
	if m := p.JuryMembers[p.MemberIndex("i4")]; m.IsReserve {
		t.Error("i4 应已递补为正式成员")
	}
	assertMemberInvariants(t, p)
}

func TestRespond_RejectWithoutReserveSeatsDirectly(t *testing.T) {
	now := fixedNow
	p := draftProcedure()
	p.Status = model.StatusAwaitingConfirmations
	p.JuryMembers = model.JuryMembers{
		{UserID: "i2", Status: model.MemberPending, InvitedAt: now},
		{UserID: "i3", Status: model.MemberPending, InvitedAt: now},
		{UserID: "e1", IsExternal: true, Status: model.MemberPending, InvitedAt: now},
		{UserID: "e2", IsExternal: true, Status: model.MemberPending, InvitedAt: now},
		{UserID: "e3", IsExternal: true, Status: model.MemberPending, InvitedAt: now},
		{UserID: "i1", IsReserve: true, Status: model.MemberRejected, InvitedAt: now, RespondedAt: &now},
		{UserID: "e4", IsExternal: true, IsReserve: true, Status: model.MemberPending, InvitedAt: now},
	}
	f := newEngineFixture(p, doctorPool(associate("i5", testHome, 0))...)

	got, err := f.engine.Respond(context.Background(), "proc-1", "i2", false)
	if err != nil {
		t.Fatalf("意外错误: %v", err)
	}
	want := []string{"i2", "i3", "e1", "e2", "e3", "i4", "i1", "i5", "e4"}
	if !equalIDs(memberIDs(got.JuryMembers), want) {
		t.Errorf("成员期望 %v，实际 %v", want, memberIDs(got.JuryMembers))
	}
	if len(f.notifier.invitations) != 1 || !equalIDs(f.notifier.invitations[0], []string{"i4", "i5"}) {
		t.Errorf("邀请错误: %v", f.notifier.invitations)
	}
}

func TestRespond_ReserveRejectionDoesNotRefill(t *testing.T) {
	f := selected(t)

	p, err := f.engine.Respond(context.Background(), "proc-1", "e4", false)
	if err != nil {
		t.Fatalf("意外错误: %v", err)
	}
	if len(p.JuryMembers) != 7 {
		t.Errorf("候补拒绝不应补选，成员数 %d", len(p.JuryMembers))
	}
	if p.JuryMembers[p.MemberIndex("e4")].Status != model.MemberRejected {
		t.Error("候补拒绝应被记录")
	}
	if len(f.notifier.invitations) != 1 || len(f.notifier.responses) != 1 {
		t.Errorf("通知错误: %v / %v", f.notifier.invitations, f.notifier.responses)
	}
}

func TestRespond_Errors(t *testing.T) {
	f := selected(t)
	ctx := context.Background()

	if _, err := f.engine.Respond(ctx, "proc-1", "stranger", true); !errors.Is(err, ErrMemberNotFound) {
		t.Errorf("期望 ErrMemberNotFound，实际 %v", err)
	}

	if _, err := f.engine.Respond(ctx, "proc-1", "i2", true); err != nil {
		t.Fatalf("意外错误: %v", err)
	}
	_, err := f.engine.Respond(ctx, "proc-1", "i2", false)
	if !errors.Is(err, ErrMemberAlreadyResponded) || !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("重复答复期望 ErrMemberAlreadyResponded，实际 %v", err)
	}
}

func TestRespond_DraftProcedure(t *testing.T) {
	now := fixedNow
	p := draftProcedure()
	p.JuryMembers = model.JuryMembers{{UserID: "i2", Status: model.MemberPending, InvitedAt: now}}
	f := newEngineFixture(p, doctorPool()...)

	if _, err := f.engine.Respond(context.Background(), "proc-1", "i2", true); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("期望 ErrInvalidStateTransition，实际 %v", err)
	}
}

func TestComplete(t *testing.T) {
	f := selected(t)
	ctx := context.Background()

	if _, err := f.engine.Complete(ctx, "proc-1"); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("未确认时期望 ErrInvalidStateTransition，实际 %v", err)
	}

	for _, id := range []string{"i2", "i3", "e1", "e2", "e3"} {
		if _, err := f.engine.Respond(ctx, "proc-1", id, true); err != nil {
			t.Fatalf("Respond(%s) 失败: %v", id, err)
		}
	}

	p, err := f.engine.Complete(ctx, "proc-1")
	if err != nil {
		t.Fatalf("Complete 失败: %v", err)
	}
	if p.Status != model.StatusCompleted {
		t.Errorf("期望 completed，实际 %s", p.Status)
	}
	if want := []string{"i2", "i3", "e1", "e2", "e3"}; !equalIDs(f.dir.updated, want) {
		t.Errorf("评审日期更新期望 %v，实际 %v", want, f.dir.updated)
	}
	if u := f.dir.user("i2"); u.LastJuryDate == nil || !u.LastJuryDate.Equal(procedureDate()) {
		t.Errorf("lastJuryDate 错误: %v", u.LastJuryDate)
	}

	if _, err := f.engine.Complete(ctx, "proc-1"); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("重复完成期望 ErrInvalidStateTransition，实际 %v", err)
	}
}

func acceptAll(t *testing.T, f *engineFixture) {
	t.Helper()
	for _, id := range []string{"i2", "i3", "e1", "e2", "e3"} {
		if _, err := f.engine.Respond(context.Background(), "proc-1", id, true); err != nil {
			t.Fatalf("Respond(%s) 失败: %v", id, err)
		}
	}
}

func TestComplete_RetryAfterFailedSaveKeepsJuryDates(t *testing.T) {
	f := selected(t)
	acceptAll(t, f)
	ctx := context.Background()

	earlier := time.Date(2025, 1, 1, 10, 0, 0, 0, sofia())
	for i := range f.dir.users {
		if f.dir.users[i].UserID == "e1" {
			f.dir.users[i].LastJuryDate = &earlier
		}
	}

	f.store.conflicts = 100
	_, err := f.engine.Complete(ctx, "proc-1")
	var ce *CollaboratorError
	if !errors.As(err, &ce) || ce.Op != "procedure.save" {
		t.Fatalf("期望 procedure.save 失败，实际 %v", err)
	}

	f.store.conflicts = 0
	p, err := f.engine.Complete(ctx, "proc-1")
	if err != nil {
		t.Fatalf("重新完成应成功: %v", err)
	}
	if p.Status != model.StatusCompleted {
		t.Errorf("期望 completed，实际 %s", p.Status)
	}

	if len(f.dir.updated) != 5 {
		t.Errorf("每名成员只应更新一次，实际 %v", f.dir.updated)
	}
	u := f.dir.user("e1")
	if u.PenultimateJuryDate == nil || !u.PenultimateJuryDate.Equal(earlier) {
		t.Errorf("penultimateJuryDate 应保留 %v，实际 %v", earlier, u.PenultimateJuryDate)
	}
	if u.LastJuryDate == nil || !u.LastJuryDate.Equal(procedureDate()) {
		t.Errorf("lastJuryDate 应为程序日期，实际 %v", u.LastJuryDate)
	}
}

func TestComplete_RetryAfterPartialDateUpdate(t *testing.T) {
	f := selected(t)
	acceptAll(t, f)
	ctx := context.Background()

	f.dir.failUpdate = "e1"
	if _, err := f.engine.Complete(ctx, "proc-1"); !errors.Is(err, errBoom) {
		t.Fatalf("期望日期更新失败，实际 %v", err)
	}
	if p, _ := f.store.FindByID(ctx, "proc-1"); p.Status != model.StatusConfirmed {
		t.Fatalf("失败后应保持 confirmed，实际 %s", p.Status)
	}

	if _, err := f.engine.Complete(ctx, "proc-1"); err != nil {
		t.Fatalf("重新完成应成功: %v", err)
	}
	if want := []string{"i2", "i3", "e1", "e2", "e3"}; !equalIDs(f.dir.updated, want) {
		t.Errorf("评审日期更新期望 %v，实际 %v", want, f.dir.updated)
	}
	if u := f.dir.user("i2"); u.PenultimateJuryDate != nil {
		t.Errorf("i2 不应被重复平移，penultimateJuryDate=%v", u.PenultimateJuryDate)
	}
}

func TestTransition_RetriesOnConflict(t *testing.T) {
	f := newEngineFixture(draftProcedure(), doctorPool()...)
	f.store.conflicts = 2

	p, err := f.engine.AutoSelectJury(context.Background(), "proc-1")
	if err != nil {
		t.Fatalf("重试后应成功: %v", err)
	}
	if p.Version != 1 {
		t.Errorf("期望版本 1，实际 %d", p.Version)
	}
}

func TestTransition_ConflictExhausted(t *testing.T) {
	f := newEngineFixture(draftProcedure(), doctorPool()...)
	f.store.conflicts = 10

	_, err := f.engine.AutoSelectJury(context.Background(), "proc-1")
	var ce *CollaboratorError
	if !errors.As(err, &ce) || !errors.Is(err, pkgerrors.ErrOptimisticLock) {
		t.Errorf("期望包装后的 ErrOptimisticLock，实际 %v", err)
	}
}

func TestAutoSelectJury_NotifierFailure(t *testing.T) {
	f := newEngineFixture(draftProcedure(), doctorPool()...)
	f.notifier.err = errBoom

	_, err := f.engine.AutoSelectJury(context.Background(), "proc-1")
	var ce *CollaboratorError
	if !errors.As(err, &ce) || ce.Op != "notifier.invitation" {
		t.Fatalf("期望通知 CollaboratorError，实际 %v", err)
	}
	if p := f.store.get("proc-1"); p.Status != model.StatusAwaitingConfirmations {
		t.Error("选拔结果应已保存")
	}
}
