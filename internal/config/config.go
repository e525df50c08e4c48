package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config 通知服务配置
type Config struct {
	// 数据文件路径（远程同步的落盘位置，同时也是本地兜底）
	Data struct {
		Dir           string
		UpdatesCSV    string
		OnCallCSV     string
		StaffCSV      string
		TemplatesJSON string
		StateJSON     string
		SyncMetaJSON  string
		AuditCSV      string
	}

	// 远程源同步配置
	Sync struct {
		UpdatesURL   string
		OnCallURL    string
		StaffURL     string
		TemplatesURL string
		AuthToken    string
		CacheBust    bool
		TimeoutSec   int
	}

	// 轮询/投递策略
	Notifier struct {
		IntervalSec      int
		DryRun           bool
		RetryFailedSends bool // true 时投递全部失败的行不记入台账，下轮重试
		LedgerMaxKeys    int
	}

	Telegram struct {
		BotToken string
		ChatIDs  map[string]string // 科室 -> chat_id 全局覆盖表
	}

	Twilio struct {
		AccountSID         string
		AuthToken          string
		WhatsAppFrom       string
		SMSFrom            string
		ContentSID         string // WhatsApp 模板 SID，空则跳过模板发送
		RequireDelivered   bool   // false 时终态 sent 也算成功
		DeliveryTimeoutSec int
		SMSEnabled         bool
		PhoneOverrides     map[string]string // 科室 -> 电话 全局覆盖表
	}

	Email struct {
		Enabled   bool
		SMTPHost  string
		SMTPPort  int
		User      string
		Password  string
		From      string
		Overrides map[string]string // 科室 -> 邮箱 全局覆盖表
	}

	// Redis 台账存储（REDIS_ADDR 为空时使用文件台账）
	Redis struct {
		Addr      string
		Password  string
		DB        int
		LedgerKey string
	}

	// 定时汇总报告
	Report struct {
		StatePath     string
		Hours         []int
		LookbackHours int
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	dataDir := getEnv("DATA_DIR", "data")
	cfg.Data.Dir = dataDir
	cfg.Data.UpdatesCSV = filepath.Join(dataDir, "updates.csv")
	cfg.Data.OnCallCSV = filepath.Join(dataDir, "oncall.csv")
	cfg.Data.StaffCSV = filepath.Join(dataDir, "staff.csv")
	cfg.Data.TemplatesJSON = filepath.Join(dataDir, "templates.json")
	cfg.Data.StateJSON = getEnv("STATE_JSON", filepath.Join(dataDir, "state.json"))
	cfg.Data.SyncMetaJSON = getEnv("SYNC_META_JSON", filepath.Join(dataDir, ".sync_meta.json"))
	cfg.Data.AuditCSV = getEnv("AUDIT_CSV", filepath.Join(dataDir, "audit.csv"))

	cfg.Sync.UpdatesURL = getEnv("SYNC_UPDATES_URL", "")
	cfg.Sync.OnCallURL = getEnv("SYNC_ONCALL_URL", "")
	cfg.Sync.StaffURL = getEnv("SYNC_STAFF_URL", "")
	cfg.Sync.TemplatesURL = getEnv("SYNC_TEMPLATES_URL", "")
	cfg.Sync.AuthToken = getEnv("SYNC_AUTH_TOKEN", "")
	cfg.Sync.CacheBust = getEnvBool("SYNC_CACHE_BUST", false)
	cfg.Sync.TimeoutSec = getEnvInt("SYNC_TIMEOUT", 15)

	cfg.Notifier.IntervalSec = getEnvInt("INTERVAL", 60)
	cfg.Notifier.DryRun = getEnvBool("DRY_RUN", false)
	cfg.Notifier.RetryFailedSends = getEnvBool("RETRY_FAILED_SENDS", false)
	cfg.Notifier.LedgerMaxKeys = getEnvInt("LEDGER_MAX_KEYS", 50000)

	cfg.Telegram.BotToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	cfg.Telegram.ChatIDs = getEnvJSONMap("TELEGRAM_CHAT_IDS")

	cfg.Twilio.AccountSID = getEnv("TWILIO_ACCOUNT_SID", "")
	cfg.Twilio.AuthToken = getEnv("TWILIO_AUTH_TOKEN", "")
	cfg.Twilio.WhatsAppFrom = getEnv("TWILIO_WHATSAPP_FROM", "whatsapp:+14155238886")
	cfg.Twilio.SMSFrom = getEnv("TWILIO_SMS_FROM", "")
	cfg.Twilio.ContentSID = getEnv("TWILIO_CONTENT_SID", "")
	cfg.Twilio.RequireDelivered = getEnvBool("TWILIO_REQUIRE_DELIVERED", true)
	cfg.Twilio.DeliveryTimeoutSec = getEnvInt("DELIVERY_TIMEOUT", 15)
	cfg.Twilio.SMSEnabled = getEnvBool("SMS_ENABLED", false)
	cfg.Twilio.PhoneOverrides = getEnvJSONMap("OVERRIDE_PHONES")

	cfg.Email.Enabled = getEnvBool("EMAIL_ENABLED", false)
	cfg.Email.SMTPHost = getEnv("SMTP_HOST", "")
	cfg.Email.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.Email.User = getEnv("SMTP_USER", "")
	cfg.Email.Password = getEnv("SMTP_PASSWORD", "")
	cfg.Email.From = getEnv("SMTP_FROM", "")
	cfg.Email.Overrides = getEnvJSONMap("OVERRIDE_EMAILS")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.LedgerKey = getEnv("LEDGER_REDIS_KEY", "notifier:ledger")

	cfg.Report.StatePath = getEnv("REPORT_STATE", filepath.Join(dataDir, "report_state.json"))
	cfg.Report.Hours = getEnvInts("REPORT_HOURS", []int{0, 6, 12, 18})
	cfg.Report.LookbackHours = getEnvInt("REPORT_LOOKBACK_HOURS", 24)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return defaultValue
}

// getEnvJSONMap 解析 JSON 字典型环境变量（如 TELEGRAM_CHAT_IDS）
// 解析失败按空表处理，不中断启动
func getEnvJSONMap(key string) map[string]string {
	result := map[string]string{}
	value := os.Getenv(key)
	if value == "" {
		return result
	}
	if err := json.Unmarshal([]byte(value), &result); err != nil {
		return map[string]string{}
	}
	return result
}

func getEnvInts(key string, defaultValue []int) []int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result []int
	for _, part := range strings.Split(value, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return defaultValue
		}
		result = append(result, n)
	}
	return result
}
