package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/BorisSavianov/doxa-backend/internal/model"
)

// UnavailabilityRepository 不可用时间段数据访问接口
type UnavailabilityRepository interface {
	ListByUser(ctx context.Context, userID string) ([]model.Unavailability, error)
	GetByID(ctx context.Context, id string) (*model.Unavailability, error)
	Create(ctx context.Context, u *model.Unavailability) error
	BatchCreate(ctx context.Context, items []model.Unavailability) error
	Update(ctx context.Context, u *model.Unavailability) error
	Delete(ctx context.Context, id string, deletedBy string) error
	ExistsCovering(ctx context.Context, userID string, t time.Time) (bool, error)
}

type unavailabilityRepo struct {
	db *gorm.DB
}

// NewUnavailabilityRepo 创建 UnavailabilityRepository 实例
func NewUnavailabilityRepo(db *gorm.DB) UnavailabilityRepository {
	return &unavailabilityRepo{db: db}
}

func (r *unavailabilityRepo) ListByUser(ctx context.Context, userID string) ([]model.Unavailability, error) {
	var items []model.Unavailability
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("start_date ASC").
		Find(&items).Error
	return items, err
}

func (r *unavailabilityRepo) GetByID(ctx context.Context, id string) (*model.Unavailability, error) {
	var u model.Unavailability
	err := r.db.WithContext(ctx).Where("unavailability_id = ?", id).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *unavailabilityRepo) Create(ctx context.Context, u *model.Unavailability) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *unavailabilityRepo) BatchCreate(ctx context.Context, items []model.Unavailability) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *unavailabilityRepo) Update(ctx context.Context, u *model.Unavailability) error {
	return r.db.WithContext(ctx).
		Model(&model.Unavailability{}).
		Where("unavailability_id = ?", u.UnavailabilityID).
		Updates(map[string]interface{}{
			"start_date": u.StartDate,
			"end_date":   u.EndDate,
			"reason":     u.Reason,
			"updated_by": u.UpdatedBy,
			"updated_at": gorm.Expr("NOW()"),
		}).Error
}

func (r *unavailabilityRepo) Delete(ctx context.Context, id string, deletedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.Unavailability{}).
		Where("unavailability_id = ?", id).
		Updates(map[string]interface{}{
			"deleted_by": deletedBy,
			"deleted_at": gorm.Expr("NOW()"),
		}).Error
}

// ExistsCovering 是否存在包含 t 的时间段（闭区间）
func (r *unavailabilityRepo) ExistsCovering(ctx context.Context, userID string, t time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Unavailability{}).
		Where("user_id = ? AND start_date <= ? AND end_date >= ?", userID, t, t).
		Count(&count).Error
	return count > 0, err
}
