package repository

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/BorisSavianov/doxa-backend/internal/model"
	pkgerrors "github.com/BorisSavianov/doxa-backend/pkg/errors"
)

// ProcedureFilter 程序列表过滤条件
type ProcedureFilter struct {
	Status          string
	Statuses        []string
	Type            string
	ScientificField string
	From            *time.Time
	To              *time.Time
}

// ProcedureRepository 程序数据访问接口
type ProcedureRepository interface {
	Create(ctx context.Context, p *model.Procedure) error
	GetByID(ctx context.Context, id string) (*model.Procedure, error)
	Update(ctx context.Context, p *model.Procedure) error
	Delete(ctx context.Context, id, deletedBy string) error
	List(ctx context.Context, filter ProcedureFilter, offset, limit int) ([]model.Procedure, int64, error)
	ListByMember(ctx context.Context, userID string) ([]model.Procedure, error)
	ListByDateRange(ctx context.Context, start, end time.Time, excludeID string) ([]model.Procedure, error)
	Count(ctx context.Context, filter ProcedureFilter) (int64, error)
	ListRecent(ctx context.Context, limit int) ([]model.Procedure, error)
}

type procedureRepo struct {
	db *gorm.DB
}

// NewProcedureRepo 创建 ProcedureRepository 实例
func NewProcedureRepo(db *gorm.DB) ProcedureRepository {
	return &procedureRepo{db: db}
}

func (r *procedureRepo) Create(ctx context.Context, p *model.Procedure) error {
	if p.JuryMembers == nil {
		p.JuryMembers = model.JuryMembers{}
	}
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *procedureRepo) GetByID(ctx context.Context, id string) (*model.Procedure, error) {
	var p model.Procedure
	err := r.db.WithContext(ctx).
		Where("procedure_id = ?", id).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Update 状态与成员列表整体按版本号条件写回
func (r *procedureRepo) Update(ctx context.Context, p *model.Procedure) error {
	oldVersion := p.Version
	result := r.db.WithContext(ctx).
		Model(p).
		Where("procedure_id = ? AND version = ?", p.ProcedureID, oldVersion).
		Updates(map[string]interface{}{
			"date":             p.Date,
			"type":             p.Type,
			"candidate_name":   p.CandidateName,
			"scientific_field": p.ScientificField,
			"status":           p.Status,
			"jury_members":     p.JuryMembers,
			"updated_by":       p.UpdatedBy,
			"version":          oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	p.Version = oldVersion + 1
	return nil
}

func (r *procedureRepo) Delete(ctx context.Context, id, deletedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.Procedure{}).
		Where("procedure_id = ?", id).
		Updates(map[string]interface{}{
			"deleted_by": deletedBy,
			"deleted_at": gorm.Expr("NOW()"),
		}).Error
}

func (r *procedureRepo) List(ctx context.Context, filter ProcedureFilter, offset, limit int) ([]model.Procedure, int64, error) {
	var procedures []model.Procedure
	var total int64

	db := applyProcedureFilter(r.db.WithContext(ctx).Model(&model.Procedure{}), filter)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Offset(offset).Limit(limit).
		Order("date DESC").
		Find(&procedures).Error; err != nil {
		return nil, 0, err
	}

	return procedures, total, nil
}

func (r *procedureRepo) Count(ctx context.Context, filter ProcedureFilter) (int64, error) {
	var total int64
	err := applyProcedureFilter(r.db.WithContext(ctx).Model(&model.Procedure{}), filter).
		Count(&total).Error
	return total, err
}

// ListRecent 按最近修改时间倒序
func (r *procedureRepo) ListRecent(ctx context.Context, limit int) ([]model.Procedure, error) {
	var procedures []model.Procedure
	err := r.db.WithContext(ctx).
		Order("updated_at DESC").
		Limit(limit).
		Find(&procedures).Error
	return procedures, err
}

func applyProcedureFilter(db *gorm.DB, filter ProcedureFilter) *gorm.DB {
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if len(filter.Statuses) > 0 {
		db = db.Where("status IN ?", filter.Statuses)
	}
	if filter.Type != "" {
		db = db.Where("type = ?", filter.Type)
	}
	if filter.ScientificField != "" {
		db = db.Where("scientific_field = ?", filter.ScientificField)
	}
	if filter.From != nil {
		db = db.Where("date >= ?", *filter.From)
	}
	if filter.To != nil {
		db = db.Where("date < ?", *filter.To)
	}
	return db
}

// ListByMember 利用 GIN 索引做 JSONB 包含查询
func (r *procedureRepo) ListByMember(ctx context.Context, userID string) ([]model.Procedure, error) {
	contains, err := json.Marshal([]map[string]string{{"user_id": userID}})
	if err != nil {
		return nil, err
	}
	var procedures []model.Procedure
	err = r.db.WithContext(ctx).
		Where("jury_members @> ?::jsonb", string(contains)).
		Order("date DESC").
		Find(&procedures).Error
	return procedures, err
}

// ListByDateRange 返回 [start, end) 内除 excludeID 外的全部程序（含已取消）
func (r *procedureRepo) ListByDateRange(ctx context.Context, start, end time.Time, excludeID string) ([]model.Procedure, error) {
	var procedures []model.Procedure
	db := r.db.WithContext(ctx).
		Where("date >= ? AND date < ?", start, end)
	if excludeID != "" {
		db = db.Where("procedure_id <> ?", excludeID)
	}
	err := db.Order("date ASC").Find(&procedures).Error
	return procedures, err
}
