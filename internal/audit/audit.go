package audit

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zayed1/SmartHospital/internal/models"
)

// 审计文件表头，仅在新建文件时写入
var header = []string{"time_iso", "record_id", "event_id", "department", "recipient", "channel", "status", "msg_id"}

// Writer 追加式投递审计
// 每次投递（成功或失败）追加一行；审计写入失败只告警，绝不阻断投递
type Writer struct {
	path   string
	logger *zap.Logger
	now    func() time.Time
}

// NewWriter 创建审计写入器，path 为 audit.csv 的完整路径
func NewWriter(path string, logger *zap.Logger) *Writer {
	return &Writer{path: path, logger: logger, now: time.Now}
}

// Record 追加一条投递审计记录
func (w *Writer) Record(event models.Event, outcome models.DeliveryOutcome) {
	if err := w.append(event, outcome); err != nil {
		w.logger.Warn("Failed to write audit record",
			zap.String("event_key", event.Key()),
			zap.Error(err),
		)
	}
}

func (w *Writer) append(event models.Event, outcome models.DeliveryOutcome) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}

	_, statErr := os.Stat(w.path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if fresh {
		if err := cw.Write(header); err != nil {
			return err
		}
	}
	row := []string{
		w.now().UTC().Format(time.RFC3339),
		uuid.New().String(),
		event.Key(),
		event.Department,
		outcome.Target,
		outcome.Channel,
		outcome.Status,
		outcome.MessageID,
	}
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
