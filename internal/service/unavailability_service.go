package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BorisSavianov/doxa-backend/internal/dto"
	"github.com/BorisSavianov/doxa-backend/internal/model"
	"github.com/BorisSavianov/doxa-backend/internal/repository"
)

// ── 不可用时间模块业务错误 ──

var (
	ErrUnavailabilityNotFound  = errors.New("不可用时间段不存在")
	ErrUnavailabilityForbidden = errors.New("只能操作自己的不可用时间段")
	ErrUnavailabilityRange     = errors.New("开始时间不能晚于结束时间")
	ErrICSSourceMissing        = errors.New("请上传 ICS 文件或提供 URL")
	ErrICSParseFailed          = errors.New("ICS 文件解析失败")
	ErrICSFetchFailed          = errors.New("ICS URL 获取失败")
	ErrICSEmpty                = errors.New("ICS 文件中没有可导入的事件")
)

// icsImportHorizon 重复事件展开上限
const icsImportHorizon = 365 * 24 * time.Hour

// UnavailabilityService 不可用时间业务接口
type UnavailabilityService interface {
	List(ctx context.Context, userID string) ([]dto.UnavailabilityResponse, error)
	Create(ctx context.Context, userID string, req *dto.CreateUnavailabilityRequest) (*dto.UnavailabilityResponse, error)
	Update(ctx context.Context, id, userID string, req *dto.UpdateUnavailabilityRequest) (*dto.UnavailabilityResponse, error)
	Delete(ctx context.Context, id, userID string) error
	// ImportICS 从上传文件（file 非 nil）或 URL 导入
	ImportICS(ctx context.Context, userID string, file io.Reader, url string) (*dto.ImportICSResponse, error)
}

type unavailabilityService struct {
	repo   *repository.Repository
	loc    *time.Location
	now    func() time.Time
	fetch  func(ctx context.Context, url string) (io.ReadCloser, error)
	logger *zap.Logger
}

// NewUnavailabilityService 创建 UnavailabilityService 实例
func NewUnavailabilityService(repo *repository.Repository, loc *time.Location, logger *zap.Logger) UnavailabilityService {
	return &unavailabilityService{
		repo:   repo,
		loc:    loc,
		now:    time.Now,
		fetch:  FetchICSContent,
		logger: logger,
	}
}

func (s *unavailabilityService) List(ctx context.Context, userID string) ([]dto.UnavailabilityResponse, error) {
	items, err := s.repo.Unavailability.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error("查询不可用时间失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return toUnavailabilityResponses(items), nil
}

func (s *unavailabilityService) Create(ctx context.Context, userID string, req *dto.CreateUnavailabilityRequest) (*dto.UnavailabilityResponse, error) {
	if req.EndDate.Before(req.StartDate) {
		return nil, ErrUnavailabilityRange
	}

	u := &model.Unavailability{
		UserID:    userID,
		StartDate: req.StartDate.UTC(),
		EndDate:   req.EndDate.UTC(),
		Reason:    strings.TrimSpace(req.Reason),
	}
	u.CreatedBy = &userID
	if err := s.repo.Unavailability.Create(ctx, u); err != nil {
		s.logger.Error("创建不可用时间失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	resp := toUnavailabilityResponse(u)
	return &resp, nil
}

func (s *unavailabilityService) Update(ctx context.Context, id, userID string, req *dto.UpdateUnavailabilityRequest) (*dto.UnavailabilityResponse, error) {
	u, err := s.getOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if req.StartDate != nil {
		u.StartDate = req.StartDate.UTC()
	}
	if req.EndDate != nil {
		u.EndDate = req.EndDate.UTC()
	}
	if req.Reason != nil {
		u.Reason = strings.TrimSpace(*req.Reason)
	}
	if u.EndDate.Before(u.StartDate) {
		return nil, ErrUnavailabilityRange
	}
	u.UpdatedBy = &userID

	if err := s.repo.Unavailability.Update(ctx, u); err != nil {
		s.logger.Error("更新不可用时间失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	resp := toUnavailabilityResponse(u)
	return &resp, nil
}

func (s *unavailabilityService) Delete(ctx context.Context, id, userID string) error {
	if _, err := s.getOwned(ctx, id, userID); err != nil {
		return err
	}
	if err := s.repo.Unavailability.Delete(ctx, id, userID); err != nil {
		s.logger.Error("删除不可用时间失败", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

func (s *unavailabilityService) ImportICS(ctx context.Context, userID string, file io.Reader, url string) (*dto.ImportICSResponse, error) {
	reader := file
	if reader == nil {
		if url == "" {
			return nil, ErrICSSourceMissing
		}
		body, err := s.fetch(ctx, url)
		if err != nil {
			s.logger.Warn("获取 ICS 失败", zap.String("url", url), zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrICSFetchFailed, err)
		}
		defer body.Close()
		reader = body
	}

	now := s.now()
	items, err := ParseUnavailabilityICS(reader, userID, s.loc, now, now.Add(icsImportHorizon))
	if err != nil {
		s.logger.Warn("ICS 解析失败", zap.String("user_id", userID), zap.Error(err))
		return nil, ErrICSParseFailed
	}
	if len(items) == 0 {
		return nil, ErrICSEmpty
	}
	for i := range items {
		items[i].CreatedBy = &userID
	}

	err = s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		return txRepo.Unavailability.BatchCreate(ctx, items)
	})
	if err != nil {
		s.logger.Error("导入不可用时间失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("ICS 导入完成", zap.String("user_id", userID), zap.Int("count", len(items)))
	return &dto.ImportICSResponse{
		Imported: len(items),
		Items:    toUnavailabilityResponses(items),
	}, nil
}

// ── 辅助函数 ──

func (s *unavailabilityService) getOwned(ctx context.Context, id, userID string) (*model.Unavailability, error) {
	u, err := s.repo.Unavailability.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnavailabilityNotFound
		}
		s.logger.Error("查询不可用时间失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	if u.UserID != userID {
		return nil, ErrUnavailabilityForbidden
	}
	return u, nil
}

func toUnavailabilityResponse(u *model.Unavailability) dto.UnavailabilityResponse {
	return dto.UnavailabilityResponse{
		ID:        u.UnavailabilityID,
		UserID:    u.UserID,
		StartDate: formatTime(u.StartDate),
		EndDate:   formatTime(u.EndDate),
		Reason:    u.Reason,
	}
}

func toUnavailabilityResponses(items []model.Unavailability) []dto.UnavailabilityResponse {
	result := make([]dto.UnavailabilityResponse, 0, len(items))
	for i := range items {
		result = append(result, toUnavailabilityResponse(&items[i]))
	}
	return result
}
