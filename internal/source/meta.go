package source

import (
	"encoding/json"
	"os"

	"go.uber.org/zap"

	"github.com/zayed1/SmartHospital/internal/models"
)

// MetaStore 同步校验器存储（单个 JSON 文档）
type MetaStore struct {
	path   string
	logger *zap.Logger
}

// NewMetaStore 创建校验器存储
func NewMetaStore(path string, logger *zap.Logger) *MetaStore {
	return &MetaStore{path: path, logger: logger}
}

// Load 读取校验器集合
// 文件缺失或损坏按空集合处理（只影响是否重复下载，不影响正确性）
func (m *MetaStore) Load() models.SyncMeta {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return models.SyncMeta{}
	}

	meta := models.SyncMeta{}
	if err := json.Unmarshal(data, &meta); err != nil {
		m.logger.Warn("Invalid sync meta file, ignoring",
			zap.String("path", m.path),
			zap.Error(err),
		)
		return models.SyncMeta{}
	}
	return meta
}

// Save 持久化校验器集合
func (m *MetaStore) Save(meta models.SyncMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(m.path, data)
}
