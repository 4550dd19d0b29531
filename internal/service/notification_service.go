package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BorisSavianov/doxa-backend/internal/dto"
	"github.com/BorisSavianov/doxa-backend/internal/model"
	"github.com/BorisSavianov/doxa-backend/internal/repository"
)

var ErrNotificationNotFound = errors.New("通知不存在")

// Publisher 实时推送通道（Redis Pub/Sub 实现见 pkg/redis）
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// NotificationService 通知业务接口，同时作为评审引擎的 Notifier
type NotificationService interface {
	NotifyInvitation(ctx context.Context, p *model.Procedure, userIDs []string) error
	NotifyResponse(ctx context.Context, p *model.Procedure, userID string, accepted bool) error
	NotifyProcedureUpdate(ctx context.Context, p *model.Procedure, update string) error

	List(ctx context.Context, userID string, req *dto.NotificationListRequest) ([]dto.NotificationResponse, int64, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
}

type notificationService struct {
	repo          *repository.Repository
	publisher     Publisher // 可为 nil：仅落库
	channelPrefix string
	now           func() time.Time
	logger        *zap.Logger
}

// NewNotificationService 创建 NotificationService 实例
func NewNotificationService(repo *repository.Repository, publisher Publisher, channelPrefix string, logger *zap.Logger) NotificationService {
	return &notificationService{
		repo:          repo,
		publisher:     publisher,
		channelPrefix: channelPrefix,
		now:           time.Now,
		logger:        logger,
	}
}

// ════════════════════════════════════════════════════════════
// 发送
// ════════════════════════════════════════════════════════════

// NotifyInvitation 仅通知被邀请的成员
func (s *notificationService) NotifyInvitation(ctx context.Context, p *model.Procedure, userIDs []string) error {
	title := "评审邀请"
	content := fmt.Sprintf("您被邀请担任 %s（%s）的评审委员会成员，日期 %s",
		procedureLabel(p), p.ScientificField, p.Date.Format("2006-01-02"))
	return s.send(ctx, p, userIDs, model.NotificationJuryInvitation, title, content)
}

// NotifyResponse 通知除答复者外的全部成员
func (s *notificationService) NotifyResponse(ctx context.Context, p *model.Procedure, userID string, accepted bool) error {
	verb := "拒绝"
	if accepted {
		verb = "接受"
	}
	title := "评审答复"
	content := fmt.Sprintf("一名成员已%s %s 的评审邀请", verb, procedureLabel(p))
	return s.send(ctx, p, otherMembers(p, userID), model.NotificationJuryResponse, title, content)
}

// NotifyProcedureUpdate 通知全部成员程序状态变化
func (s *notificationService) NotifyProcedureUpdate(ctx context.Context, p *model.Procedure, update string) error {
	title := "程序状态更新"
	content := fmt.Sprintf("%s：%s", procedureLabel(p), update)
	return s.send(ctx, p, otherMembers(p, ""), model.NotificationProcedureUpdate, title, content)
}

func (s *notificationService) send(ctx context.Context, p *model.Procedure, userIDs []string, typ, title, content string) error {
	if len(userIDs) == 0 {
		return nil
	}

	procedureID := p.ProcedureID
	items := make([]model.Notification, 0, len(userIDs))
	for _, uid := range userIDs {
		items = append(items, model.Notification{
			UserID:      uid,
			Type:        typ,
			Title:       title,
			Content:     content,
			ProcedureID: &procedureID,
		})
	}

	if err := s.repo.Notification.BatchCreate(ctx, items); err != nil {
		s.logger.Error("保存通知失败", zap.String("procedure_id", procedureID), zap.String("type", typ), zap.Error(err))
		return err
	}

	if s.publisher == nil {
		return nil
	}
	for i := range items {
		payload, err := json.Marshal(toNotificationResponse(&items[i]))
		if err != nil {
			return err
		}
		// 推送失败不影响已落库的通知
		if err := s.publisher.Publish(ctx, s.channel(items[i].UserID), payload); err != nil {
			s.logger.Warn("推送通知失败", zap.String("user_id", items[i].UserID), zap.Error(err))
		}
	}
	return nil
}

func (s *notificationService) channel(userID string) string {
	return s.channelPrefix + ":" + userID
}

// ════════════════════════════════════════════════════════════
// 查询 / 已读
// ════════════════════════════════════════════════════════════

func (s *notificationService) List(ctx context.Context, userID string, req *dto.NotificationListRequest) ([]dto.NotificationResponse, int64, error) {
	items, total, err := s.repo.Notification.ListByUser(ctx, userID, req.UnreadOnly, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询通知失败", zap.String("user_id", userID), zap.Error(err))
		return nil, 0, err
	}
	result := make([]dto.NotificationResponse, 0, len(items))
	for i := range items {
		result = append(result, toNotificationResponse(&items[i]))
	}
	return result, total, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.repo.Notification.CountUnread(ctx, userID)
}

func (s *notificationService) MarkRead(ctx context.Context, id, userID string) error {
	ok, err := s.repo.Notification.MarkRead(ctx, id, userID)
	if err != nil {
		s.logger.Error("标记已读失败", zap.String("id", id), zap.Error(err))
		return err
	}
	if !ok {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.repo.Notification.MarkAllRead(ctx, userID)
}

// Purge 清理超过保留期的通知
func (s *notificationService) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.repo.Notification.PurgeBefore(ctx, s.now().Add(-olderThan))
	if err != nil {
		s.logger.Error("清理过期通知失败", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		s.logger.Info("已清理过期通知", zap.Int64("count", n))
	}
	return n, nil
}

// ── 辅助函数 ──

func otherMembers(p *model.Procedure, exclude string) []string {
	ids := make([]string, 0, len(p.JuryMembers))
	for _, m := range p.JuryMembers {
		if m.UserID != exclude {
			ids = append(ids, m.UserID)
		}
	}
	return ids
}

var procedureTypeLabels = map[model.ProcedureType]string{
	model.ProcedureDoctor:             "博士学位答辩",
	model.ProcedureDoctorOfSciences:   "科学博士学位答辩",
	model.ProcedureAssociateProfessor: "副教授晋升",
	model.ProcedureProfessor:          "教授晋升",
}

func procedureLabel(p *model.Procedure) string {
	label, ok := procedureTypeLabels[p.Type]
	if !ok {
		label = string(p.Type)
	}
	if p.CandidateName != "" {
		return label + " - " + p.CandidateName
	}
	return label
}

func toNotificationResponse(n *model.Notification) dto.NotificationResponse {
	return dto.NotificationResponse{
		ID:          n.NotificationID,
		Type:        n.Type,
		Title:       n.Title,
		Content:     n.Content,
		IsRead:      n.IsRead,
		ProcedureID: n.ProcedureID,
		CreatedAt:   formatTime(n.CreatedAt),
	}
}
