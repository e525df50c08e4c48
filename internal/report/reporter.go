package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zayed1/SmartHospital/internal/config"
	"github.com/zayed1/SmartHospital/internal/models"
)

// Syncer 事件源同步（报告只需要 updates 一个源）
type Syncer interface {
	Sync(ctx context.Context, url, localPath string)
}

// EventLoader 事件行加载
type EventLoader interface {
	LoadEvents(path string) ([]models.Event, error)
}

// ChatSender 报告投递渠道
type ChatSender interface {
	Send(ctx context.Context, chatID, text string) models.SendResult
}

// reportState 槽位防重状态文件
type reportState struct {
	LastSlot string `json:"last_slot"`
}

// Reporter 定时科室汇总报告
// 每 6 小时一个槽位，同一槽位只发送一次；
// 报告按覆盖表中的科室逐个生成并发往对应的 Telegram 会话
type Reporter struct {
	config   *config.Config
	syncer   Syncer
	loader   EventLoader
	telegram ChatSender
	logger   *zap.Logger
	now      func() time.Time
}

// NewReporter 创建报告器
func NewReporter(cfg *config.Config, syncer Syncer, loader EventLoader, telegram ChatSender, logger *zap.Logger) *Reporter {
	return &Reporter{
		config:   cfg,
		syncer:   syncer,
		loader:   loader,
		telegram: telegram,
		logger:   logger,
		now:      time.Now,
	}
}

// RunOnce 执行一次报告：同步事件源、按科室汇总、发送、记录槽位
func (r *Reporter) RunOnce(ctx context.Context) {
	if r.syncer != nil && r.config.Sync.UpdatesURL != "" {
		r.syncer.Sync(ctx, r.config.Sync.UpdatesURL, r.config.Data.UpdatesCSV)
	}

	now := r.now()
	slot := slotKey(now)

	state := r.loadState()
	if state.LastSlot == slot {
		r.logger.Info("Report slot already sent, skipping", zap.String("slot", slot))
		return
	}

	events, err := r.loader.LoadEvents(r.config.Data.UpdatesCSV)
	if err != nil {
		r.logger.Error("Failed to load events for report", zap.Error(err))
		return
	}

	sentAny := false
	for dept, chatID := range r.config.Telegram.ChatIDs {
		text := r.buildReport(events, dept, now)
		res := r.telegram.Send(ctx, chatID, text)
		if res.OK {
			r.logger.Info("Report sent",
				zap.String("department", dept),
				zap.String("slot", slot),
			)
			sentAny = true
		} else {
			r.logger.Warn("Report send failed",
				zap.String("department", dept),
				zap.String("provider_code", res.ProviderCode),
			)
		}
	}

	if sentAny {
		state.LastSlot = slot
		r.saveState(state)
	}
}

// Start 每分钟检查一次，在配置小时的头两分钟内触发
func (r *Reporter) Start(ctx context.Context) {
	r.logger.Info("Reporter started", zap.Ints("hours", r.config.Report.Hours))

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		now := r.now()
		if r.hourEnabled(now.Hour()) && now.Minute() < 2 {
			r.RunOnce(ctx)
		}
		select {
		case <-ctx.Done():
			r.logger.Info("Reporter stopped")
			return
		case <-ticker.C:
		}
	}
}

func (r *Reporter) hourEnabled(hour int) bool {
	for _, h := range r.config.Report.Hours {
		if h == hour {
			return true
		}
	}
	return false
}

// slotKey 6 小时槽位键，如 2024-01-01-6
func slotKey(now time.Time) string {
	hourSlot := now.Hour() - now.Hour()%6
	return fmt.Sprintf("%s-%d", now.Format("2006-01-02"), hourSlot)
}

// buildReport 生成单个科室的回看窗口汇总
// 病人按最后活动时间倒序，每个病人的事件按时间正序
func (r *Reporter) buildReport(events []models.Event, department string, now time.Time) string {
	lookback := r.config.Report.LookbackHours
	cutoff := now.Add(-time.Duration(lookback) * time.Hour)

	patients := map[string][]models.Event{}
	for _, ev := range events {
		if ev.Department != department {
			continue
		}
		if parseTS(ev.Timestamp).Before(cutoff) {
			continue
		}
		key := ev.MRN + "|" + ev.PatientInitials
		patients[key] = append(patients[key], ev)
	}

	lines := []string{fmt.Sprintf("📊 تقرير آخر %d ساعة — %s", lookback, department)}
	if len(patients) == 0 {
		lines = append(lines, "لا توجد تحديثات.")
		return strings.Join(lines, "\n")
	}

	type patientGroup struct {
		key    string
		last   time.Time
		events []models.Event
	}
	groups := make([]patientGroup, 0, len(patients))
	for key, evs := range patients {
		last := time.Time{}
		for _, ev := range evs {
			if ts := parseTS(ev.Timestamp); ts.After(last) {
				last = ts
			}
		}
		groups = append(groups, patientGroup{key: key, last: last, events: evs})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].last.After(groups[j].last) })

	for _, g := range groups {
		mrn, initials, _ := strings.Cut(g.key, "|")
		lines = append(lines, "", fmt.Sprintf("👤 المريض: %s (%s)", initials, mrn))

		sort.Slice(g.events, func(i, j int) bool { return g.events[i].Timestamp < g.events[j].Timestamp })
		for _, ev := range g.events {
			lines = append(lines, fmt.Sprintf("- %s | %s | %s", ev.Timestamp, ev.EventType, ev.Note))
		}
	}
	return strings.Join(lines, "\n")
}

// parseTS 宽松解析 ISO-8601 时间戳，解析失败返回零值（必然早于回看窗口）
func parseTS(value string) time.Time {
	for _, layout := range []string{"2006-01-02T15:04:05", time.RFC3339} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func (r *Reporter) loadState() reportState {
	state := reportState{}
	raw, err := os.ReadFile(r.config.Report.StatePath)
	if err != nil {
		return state
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return reportState{}
	}
	return state
}

func (r *Reporter) saveState(state reportState) {
	raw, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(r.config.Report.StatePath), 0o755); err != nil {
		r.logger.Warn("Failed to create report state directory", zap.Error(err))
		return
	}
	if err := os.WriteFile(r.config.Report.StatePath, raw, 0o644); err != nil {
		r.logger.Warn("Failed to save report state", zap.Error(err))
	}
}
