package service

import (
	"go.uber.org/zap"

	"github.com/BorisSavianov/doxa-backend/config"
	"github.com/BorisSavianov/doxa-backend/internal/jury"
	"github.com/BorisSavianov/doxa-backend/internal/repository"
	"github.com/BorisSavianov/doxa-backend/pkg/jwt"
	"github.com/BorisSavianov/doxa-backend/pkg/redis"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Auth           AuthService
	User           UserService
	Procedure      ProcedureService
	Unavailability UnavailabilityService
	Notification   NotificationService
	Export         ExportService
	Dashboard      DashboardService
}

// NewService 创建 Service 聚合
//
// rdb 为 nil 时：登出不做黑名单、通知仅落库、程序锁退化为进程内互斥
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	rdb *redis.Client,
	logger *zap.Logger,
) (*Service, error) {
	loc, err := cfg.Jury.Location()
	if err != nil {
		return nil, err
	}

	// 避免把 nil *redis.Client 装进非 nil 接口
	var (
		blacklist TokenBlacklist
		publisher Publisher
		lockCli   LockClient
	)
	if rdb != nil {
		blacklist, publisher, lockCli = rdb, rdb, rdb
	}

	notification := NewNotificationService(repo, publisher, cfg.Notification.ChannelPrefix, logger.Named("notification"))
	engine := NewJuryEngine(repo, notification, jury.Options{
		HomeUniversity:     cfg.Jury.HomeUniversity,
		Location:           loc,
		MaxConflictRetries: cfg.Jury.MaxConflictRetries,
		Logger:             logger.Named("jury"),
	})
	locker := NewProcedureLocker(lockCli, cfg.Jury.LockTTL, logger)

	return &Service{
		Auth:           NewAuthService(repo, jwtMgr, blacklist, logger),
		User:           NewUserService(repo, logger),
		Procedure:      NewProcedureService(repo, engine, locker, notification, loc, logger),
		Unavailability: NewUnavailabilityService(repo, loc, logger),
		Notification:   notification,
		Export:         NewExportService(repo, loc, logger),
		Dashboard:      NewDashboardService(repo, loc, logger),
	}, nil
}

// NewJuryEngine 以 Repository 作为评审引擎的协作方
func NewJuryEngine(repo *repository.Repository, notifier jury.Notifier, opts jury.Options) *jury.Engine {
	return jury.NewEngine(
		&candidateDirectory{users: repo.User},
		&availabilityOracle{periods: repo.Unavailability},
		&procedureStore{procedures: repo.Procedure, loc: opts.Location},
		notifier,
		opts,
	)
}
