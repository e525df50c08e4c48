package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zayed1/SmartHospital/internal/models"
)

const telegramAPIBase = "https://api.telegram.org"

// Telegram 机器人消息渠道
type Telegram struct {
	token   string
	dryRun  bool
	apiBase string
	client  *http.Client
	logger  *zap.Logger
}

// NewTelegram 创建 Telegram 渠道
// token 为空或 dryRun 时进入模拟模式：不调用 API，记录将要发送的载荷并报成功
func NewTelegram(token string, dryRun bool, logger *zap.Logger) *Telegram {
	return &Telegram{
		token:   token,
		dryRun:  dryRun,
		apiBase: telegramAPIBase,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// NewTelegramWithClient 注入 API 地址与 HTTP 客户端（测试用）
func NewTelegramWithClient(token string, apiBase string, client *http.Client, logger *zap.Logger) *Telegram {
	return &Telegram{
		token:   token,
		apiBase: apiBase,
		client:  client,
		logger:  logger,
	}
}

// Send 发送文本消息到指定 chat_id
func (t *Telegram) Send(ctx context.Context, chatID, text string) models.SendResult {
	if chatID == "" {
		return models.SendResult{Status: models.StatusSkipped, ProviderMessage: "empty chat_id"}
	}
	if t.dryRun || t.token == "" {
		t.logger.Info("Simulated telegram send",
			zap.String("chat_id", chatID),
			zap.String("text", text),
		)
		return simulatedResult()
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return errorResult("", err.Error())
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errorResult("", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Error("Telegram send failed",
			zap.String("chat_id", chatID),
			zap.Error(err),
		)
		return errorResult("", err.Error())
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		t.logger.Error("Telegram send rejected",
			zap.String("chat_id", chatID),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return errorResult(strconv.Itoa(resp.StatusCode), string(body))
	}

	var apiResp struct {
		OK     bool `json:"ok"`
		Result struct {
			MessageID int64 `json:"message_id"`
		} `json:"result"`
	}
	messageID := ""
	if err := json.Unmarshal(body, &apiResp); err == nil && apiResp.Result.MessageID != 0 {
		messageID = strconv.FormatInt(apiResp.Result.MessageID, 10)
	}

	t.logger.Info("Telegram message sent",
		zap.String("chat_id", chatID),
		zap.String("message_id", messageID),
	)
	return models.SendResult{OK: true, Status: models.StatusSent, MessageID: messageID}
}

func simulatedResult() models.SendResult {
	return models.SendResult{
		OK:        true,
		Status:    models.StatusSimulated,
		MessageID: "SIM-" + uuid.NewString(),
		Simulated: true,
	}
}

func errorResult(code, message string) models.SendResult {
	return models.SendResult{
		Status:          models.StatusError,
		ProviderCode:    code,
		ProviderMessage: message,
	}
}
