package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BorisSavianov/doxa-backend/internal/dto"
	"github.com/BorisSavianov/doxa-backend/internal/jury"
	"github.com/BorisSavianov/doxa-backend/internal/model"
	"github.com/BorisSavianov/doxa-backend/internal/repository"
	pkgerrors "github.com/BorisSavianov/doxa-backend/pkg/errors"
)

// ── 程序模块业务错误 ──

var (
	ErrProcedureNotFound    = jury.ErrProcedureNotFound
	ErrProcedureNotEditable = errors.New("仅草稿状态的程序可以修改")
	ErrProcedureConflict    = errors.New("程序已被修改，请刷新后重试")
	ErrInvalidDateRange     = errors.New("日期范围无效")
)

// ProcedureService 程序业务接口
type ProcedureService interface {
	Create(ctx context.Context, req *dto.CreateProcedureRequest, callerID string) (*dto.ProcedureResponse, error)
	GetByID(ctx context.Context, id string) (*dto.ProcedureResponse, error)
	List(ctx context.Context, req *dto.ProcedureListRequest) ([]dto.ProcedureResponse, int64, error)
	ListMine(ctx context.Context, userID string) ([]dto.ProcedureResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateProcedureRequest, callerID string) (*dto.ProcedureResponse, error)
	Cancel(ctx context.Context, id string, callerID string) (*dto.ProcedureResponse, error)

	AutoSelectJury(ctx context.Context, id string) (*dto.ProcedureResponse, error)
	Respond(ctx context.Context, id, userID string, accept bool) (*dto.ProcedureResponse, error)
	Complete(ctx context.Context, id string) (*dto.ProcedureResponse, error)
}

type procedureService struct {
	repo     *repository.Repository
	engine   *jury.Engine
	locker   ProcedureLocker
	notifier NotificationService
	loc      *time.Location
	logger   *zap.Logger
}

// NewProcedureService 创建 ProcedureService 实例
func NewProcedureService(
	repo *repository.Repository,
	engine *jury.Engine,
	locker ProcedureLocker,
	notifier NotificationService,
	loc *time.Location,
	logger *zap.Logger,
) ProcedureService {
	return &procedureService{
		repo:     repo,
		engine:   engine,
		locker:   locker,
		notifier: notifier,
		loc:      loc,
		logger:   logger,
	}
}

// ════════════════════════════════════════════════════════════
// CRUD
// ════════════════════════════════════════════════════════════

func (s *procedureService) Create(ctx context.Context, req *dto.CreateProcedureRequest, callerID string) (*dto.ProcedureResponse, error) {
	p := &model.Procedure{
		Date:            req.Date.UTC(),
		Type:            model.ProcedureType(req.Type),
		CandidateName:   strings.TrimSpace(req.CandidateName),
		ScientificField: strings.TrimSpace(req.ScientificField),
		Status:          model.StatusDraft,
		JuryMembers:     model.JuryMembers{},
		VersionedModel:  model.VersionedModel{SoftDeleteModel: model.SoftDeleteModel{BaseModel: model.BaseModel{CreatedBy: &callerID}}},
	}
	if err := s.repo.Procedure.Create(ctx, p); err != nil {
		s.logger.Error("创建程序失败", zap.Error(err))
		return nil, err
	}

	s.logger.Info("程序已创建",
		zap.String("procedure_id", p.ProcedureID),
		zap.String("type", string(p.Type)),
		zap.String("created_by", callerID),
	)
	return s.toResponse(ctx, p)
}

func (s *procedureService) GetByID(ctx context.Context, id string) (*dto.ProcedureResponse, error) {
	p, err := s.getProcedure(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.toResponse(ctx, p)
}

func (s *procedureService) List(ctx context.Context, req *dto.ProcedureListRequest) ([]dto.ProcedureResponse, int64, error) {
	filter, err := BuildProcedureFilter(req, s.loc)
	if err != nil {
		return nil, 0, err
	}

	procedures, total, err := s.repo.Procedure.List(ctx, filter, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("列出程序失败", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.ProcedureResponse, 0, len(procedures))
	for i := range procedures {
		result = append(result, toProcedureResponse(&procedures[i], nil))
	}
	return result, total, nil
}

func (s *procedureService) ListMine(ctx context.Context, userID string) ([]dto.ProcedureResponse, error) {
	procedures, err := s.repo.Procedure.ListByMember(ctx, userID)
	if err != nil {
		s.logger.Error("查询成员程序失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	result := make([]dto.ProcedureResponse, 0, len(procedures))
	for i := range procedures {
		result = append(result, toProcedureResponse(&procedures[i], nil))
	}
	return result, nil
}

func (s *procedureService) Update(ctx context.Context, id string, req *dto.UpdateProcedureRequest, callerID string) (*dto.ProcedureResponse, error) {
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := s.getProcedure(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != model.StatusDraft {
		return nil, ErrProcedureNotEditable
	}

	if req.Date != nil {
		p.Date = req.Date.UTC()
	}
	if req.Type != nil {
		p.Type = model.ProcedureType(*req.Type)
	}
	if req.CandidateName != nil {
		p.CandidateName = strings.TrimSpace(*req.CandidateName)
	}
	if req.ScientificField != nil {
		p.ScientificField = strings.TrimSpace(*req.ScientificField)
	}
	p.UpdatedBy = &callerID

	if err := s.repo.Procedure.Update(ctx, p); err != nil {
		if errors.Is(err, pkgerrors.ErrOptimisticLock) {
			return nil, ErrProcedureConflict
		}
		s.logger.Error("更新程序失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return s.toResponse(ctx, p)
}

// Cancel 管理员操作：任何非终态均可取消
func (s *procedureService) Cancel(ctx context.Context, id string, callerID string) (*dto.ProcedureResponse, error) {
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := s.getProcedure(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status.Terminal() {
		return nil, jury.ErrInvalidStateTransition
	}

	p.Status = model.StatusCancelled
	p.UpdatedBy = &callerID
	if err := s.repo.Procedure.Update(ctx, p); err != nil {
		if errors.Is(err, pkgerrors.ErrOptimisticLock) {
			return nil, ErrProcedureConflict
		}
		s.logger.Error("取消程序失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	s.logger.Info("程序已取消", zap.String("procedure_id", id), zap.String("cancelled_by", callerID))
	s.announce(ctx, p, "程序已取消")
	return s.toResponse(ctx, p)
}

// ════════════════════════════════════════════════════════════
// 评审引擎操作（同一程序串行）
// ════════════════════════════════════════════════════════════

func (s *procedureService) AutoSelectJury(ctx context.Context, id string) (*dto.ProcedureResponse, error) {
	return s.run(ctx, id, "auto_select_jury", func() (*model.Procedure, error) {
		return s.engine.AutoSelectJury(ctx, id)
	})
}

func (s *procedureService) Respond(ctx context.Context, id, userID string, accept bool) (*dto.ProcedureResponse, error) {
	return s.run(ctx, id, "respond", func() (*model.Procedure, error) {
		return s.engine.Respond(ctx, id, userID, accept)
	})
}

func (s *procedureService) Complete(ctx context.Context, id string) (*dto.ProcedureResponse, error) {
	return s.run(ctx, id, "complete", func() (*model.Procedure, error) {
		p, err := s.engine.Complete(ctx, id)
		if err != nil {
			return nil, err
		}
		s.announce(ctx, p, "程序已完成")
		return p, nil
	})
}

func (s *procedureService) run(ctx context.Context, id, op string, fn func() (*model.Procedure, error)) (*dto.ProcedureResponse, error) {
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := fn()
	if err != nil {
		var ce *jury.CollaboratorError
		if errors.As(err, &ce) && !errors.Is(err, pkgerrors.ErrOptimisticLock) {
			s.logger.Error("评审引擎操作失败", zap.String("op", op), zap.String("procedure_id", id), zap.Error(err))
		}
		return nil, err
	}
	return s.toResponse(ctx, p)
}

// announce 状态通知失败只记录日志
func (s *procedureService) announce(ctx context.Context, p *model.Procedure, update string) {
	if err := s.notifier.NotifyProcedureUpdate(ctx, p, update); err != nil {
		s.logger.Warn("发送程序状态通知失败", zap.String("procedure_id", p.ProcedureID), zap.Error(err))
	}
}

// ── 辅助函数 ──

func (s *procedureService) getProcedure(ctx context.Context, id string) (*model.Procedure, error) {
	p, err := s.repo.Procedure.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProcedureNotFound
		}
		s.logger.Error("查询程序失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return p, nil
}

// toResponse 附带成员姓名与单位
func (s *procedureService) toResponse(ctx context.Context, p *model.Procedure) (*dto.ProcedureResponse, error) {
	ids := make([]string, 0, len(p.JuryMembers))
	for _, m := range p.JuryMembers {
		ids = append(ids, m.UserID)
	}
	users, err := s.repo.User.ListByIDs(ctx, ids)
	if err != nil {
		s.logger.Error("查询评审成员失败", zap.String("procedure_id", p.ProcedureID), zap.Error(err))
		return nil, err
	}
	byID := make(map[string]*model.User, len(users))
	for i := range users {
		byID[users[i].UserID] = &users[i]
	}
	resp := toProcedureResponse(p, byID)
	return &resp, nil
}

func toProcedureResponse(p *model.Procedure, users map[string]*model.User) dto.ProcedureResponse {
	members := make([]dto.JuryMemberResponse, 0, len(p.JuryMembers))
	for _, m := range p.JuryMembers {
		mr := dto.JuryMemberResponse{
			UserID:      m.UserID,
			IsExternal:  m.IsExternal,
			IsReserve:   m.IsReserve,
			Status:      string(m.Status),
			InvitedAt:   formatTime(m.InvitedAt),
			RespondedAt: formatTimePtr(m.RespondedAt),
		}
		if u, ok := users[m.UserID]; ok {
			mr.FullName = u.FullName
			mr.University = u.University
		}
		members = append(members, mr)
	}
	return dto.ProcedureResponse{
		ID:              p.ProcedureID,
		Date:            formatTime(p.Date),
		Type:            string(p.Type),
		CandidateName:   p.CandidateName,
		ScientificField: p.ScientificField,
		Status:          string(p.Status),
		JuryMembers:     members,
		Version:         p.Version,
		CreatedBy:       p.CreatedBy,
		CreatedAt:       formatTime(p.CreatedAt),
		UpdatedAt:       formatTime(p.UpdatedAt),
	}
}

// BuildProcedureFilter 将列表查询参数转换为仓储过滤条件
// from/to 为本地日期（含当天），to 早于 from 时返回 ErrInvalidDateRange
func BuildProcedureFilter(req *dto.ProcedureListRequest, loc *time.Location) (repository.ProcedureFilter, error) {
	filter := repository.ProcedureFilter{
		Status:          req.Status,
		Type:            req.Type,
		ScientificField: req.ScientificField,
	}
	if req.From != "" {
		from, err := time.ParseInLocation("2006-01-02", req.From, loc)
		if err != nil {
			return filter, ErrInvalidDateRange
		}
		filter.From = &from
	}
	if req.To != "" {
		to, err := time.ParseInLocation("2006-01-02", req.To, loc)
		if err != nil {
			return filter, ErrInvalidDateRange
		}
		to = to.AddDate(0, 0, 1)
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return filter, ErrInvalidDateRange
	}
	return filter, nil
}
