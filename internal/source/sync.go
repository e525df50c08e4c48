package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zayed1/SmartHospital/internal/config"
	"github.com/zayed1/SmartHospital/internal/models"
)

// Syncer 远程源同步器
// 带缓存校验器的条件下载：304 不落盘，任何失败保留上一份本地文件
type Syncer struct {
	config *config.Config
	client *http.Client
	meta   *MetaStore
	logger *zap.Logger
}

// NewSyncer 创建同步器
func NewSyncer(cfg *config.Config, meta *MetaStore, logger *zap.Logger) *Syncer {
	timeout := time.Duration(cfg.Sync.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Syncer{
		config: cfg,
		client: &http.Client{Timeout: timeout},
		meta:   meta,
		logger: logger,
	}
}

// SyncAll 同步所有已配置的远程源
func (s *Syncer) SyncAll(ctx context.Context) {
	s.Sync(ctx, s.config.Sync.UpdatesURL, s.config.Data.UpdatesCSV)
	s.Sync(ctx, s.config.Sync.OnCallURL, s.config.Data.OnCallCSV)
	s.Sync(ctx, s.config.Sync.StaffURL, s.config.Data.StaffCSV)
	s.Sync(ctx, s.config.Sync.TemplatesURL, s.config.Data.TemplatesJSON)
}

// Sync 条件下载一个远程源到本地文件
// 不向调用方返回错误：失败只记日志，本轮继续使用已有的本地文件
func (s *Syncer) Sync(ctx context.Context, url, localPath string) {
	if url == "" {
		return
	}

	meta := s.meta.Load()
	entry := meta[url]

	// cache-bust 参数只加在请求上，校验器仍按原始 URL 存取
	reqURL := url
	if s.config.Sync.CacheBust {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		reqURL = fmt.Sprintf("%s%s_ts=%d", url, sep, time.Now().Unix())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		s.logger.Warn("Failed to build sync request, keeping previous file",
			zap.String("url", url),
			zap.Error(err),
		)
		return
	}

	if strings.Contains(url, "api.github.com") {
		req.Header.Set("Accept", "application/vnd.github.raw")
	}
	if s.config.Sync.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.Sync.AuthToken)
	}
	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	}
	if entry.LastModified != "" {
		req.Header.Set("If-Modified-Since", entry.LastModified)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("Sync fetch failed, keeping previous file",
			zap.String("url", url),
			zap.Error(err),
		)
		return
	}
	defer resp.Body.Close()

	// 304：源未变化，文件与校验器都不动
	if resp.StatusCode == http.StatusNotModified {
		s.logger.Debug("Source not changed",
			zap.String("file", filepath.Base(localPath)),
		)
		return
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Warn("Sync fetch returned non-success status, keeping previous file",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
		)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.logger.Warn("Failed to read sync response, keeping previous file",
			zap.String("url", url),
			zap.Error(err),
		)
		return
	}

	if err := atomicWrite(localPath, body); err != nil {
		s.logger.Warn("Failed to write synced file, keeping previous file",
			zap.String("path", localPath),
			zap.Error(err),
		)
		return
	}

	// 校验器按原始 URL 存储；响应缺头时保留旧值
	newEntry := models.SyncEntry{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
	if newEntry.ETag == "" {
		newEntry.ETag = entry.ETag
	}
	if newEntry.LastModified == "" {
		newEntry.LastModified = entry.LastModified
	}
	meta[url] = newEntry
	if err := s.meta.Save(meta); err != nil {
		s.logger.Warn("Failed to save sync meta",
			zap.Error(err),
		)
	}

	s.logger.Info("Synced source file",
		zap.String("file", filepath.Base(localPath)),
		zap.String("url", url),
		zap.Int("bytes", len(body)),
	)
}

// atomicWrite 原子落盘：同目录临时文件 + rename，读方不会看到半个文件
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".sync-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
