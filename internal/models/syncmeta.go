package models

// SyncEntry 单个远程源的 HTTP 缓存校验器
type SyncEntry struct {
	ETag         string `json:"etag"`
	LastModified string `json:"last_modified"`
}

// SyncMeta 按原始 URL（未加 cache-bust 参数）索引的校验器集合
// 与台账并列持久化，仅用于避免重复下载未变化的源文件
type SyncMeta map[string]SyncEntry
