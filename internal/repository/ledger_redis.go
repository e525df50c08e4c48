package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/zayed1/SmartHospital/internal/models"
)

// RedisLedger Redis 台账（部署在无持久卷的环境时使用）
// 与文件台账相同的 JSON 文档，存在单个键下
type RedisLedger struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedisLedger 创建 Redis 台账
func NewRedisLedger(client *redis.Client, key string, logger *zap.Logger) *RedisLedger {
	return &RedisLedger{
		client: client,
		key:    key,
		logger: logger,
	}
}

// Load 读取台账
// 键缺失按全新台账处理；内容损坏从零开始并向运维告警
func (r *RedisLedger) Load(ctx context.Context) (*models.Ledger, error) {
	val, err := r.client.Get(ctx, r.key).Result()
	if err != nil {
		if err == redis.Nil {
			r.logger.Info("Ledger key not found, starting fresh",
				zap.String("key", r.key),
			)
			return models.NewLedger(), nil
		}
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}

	ledger := models.NewLedger()
	if err := json.Unmarshal([]byte(val), ledger); err != nil {
		r.logger.Error("Ledger key is corrupt, starting fresh; previously sent events may repeat",
			zap.String("key", r.key),
			zap.Error(err),
		)
		return models.NewLedger(), nil
	}
	return ledger, nil
}

// Save 持久化台账（不设 TTL，台账不过期）
func (r *RedisLedger) Save(ctx context.Context, ledger *models.Ledger) error {
	data, err := json.Marshal(ledger)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set ledger: %w", err)
	}

	r.logger.Debug("Ledger saved",
		zap.String("key", r.key),
		zap.Int("processed", ledger.Len()),
		zap.String("last_ts", ledger.LastTS),
	)
	return nil
}
