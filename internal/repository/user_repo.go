package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/BorisSavianov/doxa-backend/internal/model"
	pkgerrors "github.com/BorisSavianov/doxa-backend/pkg/errors"
)

// UserFilter 用户列表过滤条件
type UserFilter struct {
	ScientificField string
	University      string
	AcademicRank    string
	Keyword         string // 姓名 / 邮箱模糊匹配
}

// UserRepository 用户数据访问接口
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id, deletedBy string) error
	List(ctx context.Context, filter UserFilter, offset, limit int) ([]model.User, int64, error)
	ListByScientificField(ctx context.Context, field string) ([]model.User, error)
	ListByIDs(ctx context.Context, ids []string) ([]model.User, error)
	Count(ctx context.Context) (int64, error)
	ShiftJuryDates(ctx context.Context, id string, date time.Time) error
}

// userRepo UserRepository 的 GORM 实现
type userRepo struct {
	db *gorm.DB
}

// NewUserRepo 创建 UserRepository 实例
func NewUserRepo(db *gorm.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Where("user_id = ?", id).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Where("email = ?", email).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update 按版本号条件更新资料字段；评审日期只能通过 ShiftJuryDates 修改
func (r *userRepo) Update(ctx context.Context, user *model.User) error {
	oldVersion := user.Version
	result := r.db.WithContext(ctx).
		Model(user).
		Where("user_id = ? AND version = ?", user.UserID, oldVersion).
		Updates(map[string]interface{}{
			"full_name":        user.FullName,
			"email":            user.Email,
			"password_hash":    user.PasswordHash,
			"role":             user.Role,
			"academic_rank":    user.AcademicRank,
			"scientific_field": user.ScientificField,
			"university":       user.University,
			"distance_to_city": user.DistanceToCity,
			"updated_by":       user.UpdatedBy,
			"version":          oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	user.Version = oldVersion + 1
	return nil
}

func (r *userRepo) Delete(ctx context.Context, id, deletedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("user_id = ?", id).
		Updates(map[string]interface{}{
			"deleted_by": deletedBy,
			"deleted_at": gorm.Expr("NOW()"),
		}).Error
}

func (r *userRepo) List(ctx context.Context, filter UserFilter, offset, limit int) ([]model.User, int64, error) {
	var users []model.User
	var total int64

	db := r.db.WithContext(ctx).Model(&model.User{})
	if filter.ScientificField != "" {
		db = db.Where("scientific_field = ?", filter.ScientificField)
	}
	if filter.University != "" {
		db = db.Where("university = ?", filter.University)
	}
	if filter.AcademicRank != "" {
		db = db.Where("academic_rank = ?", filter.AcademicRank)
	}
	if filter.Keyword != "" {
		like := "%" + filter.Keyword + "%"
		db = db.Where("full_name ILIKE ? OR email ILIKE ?", like, like)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Offset(offset).Limit(limit).
		Order("created_at DESC").
		Find(&users).Error; err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

// ListByScientificField 按创建顺序返回，保证选拔结果可复现
func (r *userRepo) ListByScientificField(ctx context.Context, field string) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Where("scientific_field = ?", field).
		Order("created_at ASC, user_id ASC").
		Find(&users).Error
	return users, err
}

func (r *userRepo) ListByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []model.User
	err := r.db.WithContext(ctx).Where("user_id IN ?", ids).Find(&users).Error
	return users, err
}

func (r *userRepo) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Count(&total).Error
	return total, err
}

// ShiftJuryDates last_jury_date → penultimate_jury_date，last_jury_date = date。
// last_jury_date 已等于 date 时为空操作，重复调用不会丢失 penultimate_jury_date。
func (r *userRepo) ShiftJuryDates(ctx context.Context, id string, date time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("user_id = ? AND last_jury_date IS DISTINCT FROM ?", id, date).
		Updates(map[string]interface{}{
			"penultimate_jury_date": gorm.Expr("last_jury_date"),
			"last_jury_date":        date,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&model.User{}).Where("user_id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
