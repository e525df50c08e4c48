package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/zayed1/SmartHospital/internal/audit"
	"github.com/zayed1/SmartHospital/internal/channels"
	"github.com/zayed1/SmartHospital/internal/config"
	"github.com/zayed1/SmartHospital/internal/dispatcher"
	"github.com/zayed1/SmartHospital/internal/models"
	"github.com/zayed1/SmartHospital/internal/repository"
	"github.com/zayed1/SmartHospital/internal/resolver"
	"github.com/zayed1/SmartHospital/internal/source"
	"github.com/zayed1/SmartHospital/internal/template"
)

// SourceSyncer 周期开始前刷新全部远程源
type SourceSyncer interface {
	SyncAll(ctx context.Context)
}

// RecordLoader CSV 记录加载
type RecordLoader interface {
	LoadEvents(path string) ([]models.Event, error)
	LoadOnCall(path string) ([]models.OnCallAssignment, error)
	LoadStaff(path string) ([]models.StaffRecord, error)
}

// Dispatcher 多渠道投递
type Dispatcher interface {
	Dispatch(ctx context.Context, event models.Event, targets dispatcher.Targets, msg dispatcher.Rendered) models.DeliveryOutcome
}

// Auditor 投递审计
type Auditor interface {
	Record(event models.Event, outcome models.DeliveryOutcome)
}

// NotifierService 通知调度服务
// 每个周期：同步远程源 → 加载记录 → 逐行去重、解析、渲染、投递 → 保存台账
type NotifierService struct {
	config      *config.Config
	logger      *zap.Logger
	syncer      SourceSyncer
	records     RecordLoader
	templates   *template.Engine
	resolver    *resolver.Resolver
	dispatcher  Dispatcher
	audit       Auditor
	ledger      repository.LedgerStore
	redisClient *redis.Client
}

// NewNotifierService 组装通知服务
// REDIS_ADDR 配置时使用 Redis 台账并在启动时探活，否则落到文件台账
func NewNotifierService(cfg *config.Config, logger *zap.Logger) (*NotifierService, error) {
	svc := &NotifierService{
		config:    cfg,
		logger:    logger,
		records:   repository.NewRecordRepository(logger),
		templates: template.NewEngine(logger),
		resolver:  resolver.NewResolver(cfg, logger),
		audit:     audit.NewWriter(cfg.Data.AuditCSV, logger),
	}

	meta := source.NewMetaStore(cfg.Data.SyncMetaJSON, logger)
	svc.syncer = source.NewSyncer(cfg, meta, logger)

	telegram := channels.NewTelegram(cfg.Telegram.BotToken, cfg.Notifier.DryRun, logger)
	twilio := channels.NewTwilio(cfg, logger)
	email := channels.NewEmail(cfg, logger)
	svc.dispatcher = dispatcher.NewDispatcher(cfg, twilio, telegram, email, logger)

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		svc.redisClient = client
		svc.ledger = repository.NewRedisLedger(client, cfg.Redis.LedgerKey, logger)
		logger.Info("Using redis ledger", zap.String("addr", cfg.Redis.Addr))
	} else {
		svc.ledger = repository.NewFileLedger(cfg.Data.StateJSON, logger)
		logger.Info("Using file ledger", zap.String("path", cfg.Data.StateJSON))
	}

	return svc, nil
}

// RunCycle 执行一个完整的通知周期
// 台账加载/保存失败是致命错误（避免重复通知）；其余失败降级为空数据或告警
func (s *NotifierService) RunCycle(ctx context.Context) error {
	start := time.Now()
	s.syncer.SyncAll(ctx)

	events, err := s.records.LoadEvents(s.config.Data.UpdatesCSV)
	if err != nil {
		s.logger.Error("Failed to load events", zap.Error(err))
		events = nil
	}
	oncall, err := s.records.LoadOnCall(s.config.Data.OnCallCSV)
	if err != nil {
		s.logger.Error("Failed to load on-call table", zap.Error(err))
		oncall = nil
	}
	staff, err := s.records.LoadStaff(s.config.Data.StaffCSV)
	if err != nil {
		s.logger.Error("Failed to load staff records", zap.Error(err))
		staff = nil
	}
	s.templates.Load(s.config.Data.TemplatesJSON)

	ledger, err := s.ledger.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}

	handled, skipped := 0, 0
	for _, event := range events {
		if ctx.Err() != nil {
			break
		}
		if ledger.Has(event.Key()) {
			skipped++
			continue
		}
		if !s.processEvent(ctx, event, oncall, staff) {
			continue
		}
		ledger.Add(event.Key())
		ledger.AdvanceTS(event.Timestamp)
		ledger.AdvanceRow(event.Row)
		handled++
	}

	ledger.Trim(s.config.Notifier.LedgerMaxKeys)
	if err := s.ledger.Save(ctx, ledger); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}

	s.logger.Info("Cycle finished",
		zap.Int("events", len(events)),
		zap.Int("handled", handled),
		zap.Int("skipped", skipped),
		zap.Duration("elapsed", time.Since(start)),
	)
	return ctx.Err()
}

// processEvent 处理单行事件，返回是否应记入台账
func (s *NotifierService) processEvent(ctx context.Context, event models.Event, oncall []models.OnCallAssignment, staff []models.StaffRecord) bool {
	if event.Department == "" {
		s.logger.Warn("Event without department, marking handled",
			zap.String("event_key", event.Key()),
			zap.Int("row", event.Row),
		)
		return true
	}

	chatRes := s.resolver.Resolve(event.Department, oncall, staff, models.ChannelTelegram)
	phoneRes := s.resolver.Resolve(event.Department, oncall, staff, models.ChannelWhatsApp)
	emailRes := s.resolver.Resolve(event.Department, oncall, staff, models.ChannelEmail)

	targets := dispatcher.Targets{
		ChatID: chatRes.Target,
		Phone:  phoneRes.Target,
		Email:  emailRes.Target,
	}
	if targets.Empty() {
		s.logger.Warn("No recipient for department",
			zap.String("department", event.Department),
			zap.String("event_key", event.Key()),
		)
		s.audit.Record(event, models.DeliveryOutcome{Status: models.StatusNoTarget})
		return true
	}

	fields := event.Fields()
	name := event.Template
	variables, hasVariables := s.templates.ContentVariables(name, fields)
	subject, plain, html, hasEmail := s.templates.RenderEmail(name, fields)
	msg := dispatcher.Rendered{
		Text:            s.templates.RenderText(name, fields),
		TemplateVars:    variables,
		HasTemplateVars: hasVariables,
		EmailSubject:    subject,
		EmailPlain:      plain,
		EmailHTML:       html,
		HasEmail:        hasEmail,
	}

	outcome := s.dispatcher.Dispatch(ctx, event, targets, msg)
	s.audit.Record(event, outcome)

	s.logger.Info("Event dispatched",
		zap.String("event_key", event.Key()),
		zap.String("department", event.Department),
		zap.String("channel", outcome.Channel),
		zap.String("status", outcome.Status),
		zap.String("resolution", chatRes.Origin),
	)

	if outcome.Status == models.StatusError && s.config.Notifier.RetryFailedSends {
		return false
	}
	return true
}

// Start 周期调度，启动时立刻跑一轮，之后按 INTERVAL 触发
func (s *NotifierService) Start(ctx context.Context) {
	interval := time.Duration(s.config.Notifier.IntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	s.logger.Info("Notifier service started", zap.Duration("interval", interval))

	if err := s.RunCycle(ctx); err != nil {
		s.logger.Error("Cycle failed", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Notifier service stopped")
			return
		case <-ticker.C:
			if err := s.RunCycle(ctx); err != nil {
				s.logger.Error("Cycle failed", zap.Error(err))
			}
		}
	}
}

// Stop 释放持有的连接
func (s *NotifierService) Stop() {
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
}
