package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/zayed1/SmartHospital/internal/models"
)

// LedgerStore 台账存储
// 生命周期固定：轮询周期开始时 Load，结束时 Save，周期内不共享
type LedgerStore interface {
	Load(ctx context.Context) (*models.Ledger, error)
	Save(ctx context.Context, ledger *models.Ledger) error
}

// FileLedger 文件台账（单个 JSON 文档，原子写入）
type FileLedger struct {
	path   string
	logger *zap.Logger
}

// NewFileLedger 创建文件台账
func NewFileLedger(path string, logger *zap.Logger) *FileLedger {
	return &FileLedger{path: path, logger: logger}
}

// Load 读取台账
// 文件缺失按全新台账处理；JSON 损坏同样从零开始，但要向运维喊出来——
// 这是一次故意接受的数据丢失（重复通知好过停摆）
func (f *FileLedger) Load(ctx context.Context) (*models.Ledger, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			f.logger.Info("Ledger file not found, starting fresh",
				zap.String("path", f.path),
			)
			return models.NewLedger(), nil
		}
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	ledger := models.NewLedger()
	if err := json.Unmarshal(data, ledger); err != nil {
		f.logger.Error("Ledger file is corrupt, starting fresh; previously sent events may repeat",
			zap.String("path", f.path),
			zap.Error(err),
		)
		return models.NewLedger(), nil
	}
	return ledger, nil
}

// Save 持久化台账（原子写入）
// 失败向上返回：台账写不进去时继续跑只会制造重复通知
func (f *FileLedger) Save(ctx context.Context, ledger *models.Ledger) error {
	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*")
	if err != nil {
		return fmt.Errorf("failed to create temp ledger: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp ledger: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp ledger: %w", err)
	}

	f.logger.Debug("Ledger saved",
		zap.String("path", f.path),
		zap.Int("processed", ledger.Len()),
		zap.String("last_ts", ledger.LastTS),
		zap.Int("last_row", ledger.LastRow),
	)
	return nil
}
