package jury

import (
	"context"
	"time"

	"github.com/BorisSavianov/doxa-backend/internal/model"
)

// CandidateDirectory 候选人目录
type CandidateDirectory interface {
	// FindByScientificField 返回同一学科的全部候选人，顺序需稳定
	FindByScientificField(ctx context.Context, field string) ([]model.User, error)
	// FindByID 不存在时返回 (nil, nil)
	FindByID(ctx context.Context, id string) (*model.User, error)
	// UpdateJuryDates lastJuryDate → penultimateJuryDate，lastJuryDate = date。
	// lastJuryDate 已等于 date 时不做任何修改
	UpdateJuryDates(ctx context.Context, id string, date time.Time) error
}

// AvailabilityOracle 候选人在指定日期是否可参加评审
type AvailabilityOracle interface {
	IsAvailable(ctx context.Context, userID string, date time.Time) (bool, error)
}

// ProcedureStore 程序存储
// Save 必须按 Version 条件更新，版本不一致时返回 pkg/errors.ErrOptimisticLock
type ProcedureStore interface {
	FindByID(ctx context.Context, id string) (*model.Procedure, error)
	FindSameDay(ctx context.Context, date time.Time, excludeID string) ([]model.Procedure, error)
	Save(ctx context.Context, p *model.Procedure) (*model.Procedure, error)
}

// Notifier 评审通知
type Notifier interface {
	NotifyInvitation(ctx context.Context, p *model.Procedure, userIDs []string) error
	NotifyResponse(ctx context.Context, p *model.Procedure, userID string, accepted bool) error
}
