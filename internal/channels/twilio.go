package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zayed1/SmartHospital/internal/config"
	"github.com/zayed1/SmartHospital/internal/models"
)

const twilioAPIBase = "https://api.twilio.com"

// Twilio WhatsApp/SMS 渠道（模板发送、自由文本发送、状态查询共用一个客户端）
type Twilio struct {
	accountSID   string
	authToken    string
	whatsappFrom string
	smsFrom      string
	dryRun       bool
	apiBase      string
	client       *http.Client
	logger       *zap.Logger
}

// NewTwilio 创建 Twilio 渠道
// 凭据不全或 dryRun 时进入模拟模式
func NewTwilio(cfg *config.Config, logger *zap.Logger) *Twilio {
	return &Twilio{
		accountSID:   cfg.Twilio.AccountSID,
		authToken:    cfg.Twilio.AuthToken,
		whatsappFrom: cfg.Twilio.WhatsAppFrom,
		smsFrom:      cfg.Twilio.SMSFrom,
		dryRun:       cfg.Notifier.DryRun,
		apiBase:      twilioAPIBase,
		client:       &http.Client{Timeout: 15 * time.Second},
		logger:       logger,
	}
}

// NewTwilioWithClient 注入 API 地址与 HTTP 客户端（测试用）
func NewTwilioWithClient(cfg *config.Config, apiBase string, client *http.Client, logger *zap.Logger) *Twilio {
	tw := NewTwilio(cfg, logger)
	tw.apiBase = apiBase
	tw.client = client
	return tw
}

// Configured 凭据是否齐备（不齐备时所有发送都走模拟模式）
func (tw *Twilio) Configured() bool {
	return tw.accountSID != "" && tw.authToken != ""
}

func (tw *Twilio) simulate() bool {
	return tw.dryRun || !tw.Configured()
}

// SendWhatsAppTemplate 通过已审核的消息模板发送 WhatsApp
func (tw *Twilio) SendWhatsAppTemplate(ctx context.Context, to, contentSID string, variables map[string]string) models.SendResult {
	form := url.Values{}
	form.Set("To", whatsappAddr(to))
	form.Set("From", whatsappAddr(tw.whatsappFrom))
	form.Set("ContentSid", contentSID)
	if len(variables) > 0 {
		vars, err := json.Marshal(variables)
		if err != nil {
			return errorResult("", err.Error())
		}
		form.Set("ContentVariables", string(vars))
	}

	if tw.simulate() {
		tw.logger.Info("Simulated whatsapp template send",
			zap.String("to", whatsappAddr(to)),
			zap.String("content_sid", contentSID),
			zap.Any("variables", variables),
		)
		return simulatedResult()
	}
	return tw.postMessage(ctx, form)
}

// SendWhatsApp 自由文本 WhatsApp
// 仅在提供方的开放会话窗口内有效；窗口判定由提供方完成，这里只观察拒绝
func (tw *Twilio) SendWhatsApp(ctx context.Context, to, body string) models.SendResult {
	if tw.simulate() {
		tw.logger.Info("Simulated whatsapp send",
			zap.String("to", whatsappAddr(to)),
			zap.String("body", body),
		)
		return simulatedResult()
	}

	form := url.Values{}
	form.Set("To", whatsappAddr(to))
	form.Set("From", whatsappAddr(tw.whatsappFrom))
	form.Set("Body", body)
	return tw.postMessage(ctx, form)
}

// SendSMS 短信
func (tw *Twilio) SendSMS(ctx context.Context, to, body string) models.SendResult {
	if tw.smsFrom == "" {
		return models.SendResult{Status: models.StatusSkipped, ProviderMessage: "sms sender number not configured"}
	}
	if tw.simulate() {
		tw.logger.Info("Simulated sms send",
			zap.String("to", to),
			zap.String("body", body),
		)
		return simulatedResult()
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", tw.smsFrom)
	form.Set("Body", body)
	return tw.postMessage(ctx, form)
}

// PollStatus 查询一条已提交消息的投递状态
func (tw *Twilio) PollStatus(ctx context.Context, messageSID string) (string, error) {
	reqURL := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages/%s.json",
		tw.apiBase, tw.accountSID, messageSID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(tw.accountSID, tw.authToken)

	resp, err := tw.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status fetch returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var msg struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", fmt.Errorf("failed to decode status response: %w", err)
	}
	return msg.Status, nil
}

// postMessage 提交消息到 Messages API，返回提供方的消息 SID
func (tw *Twilio) postMessage(ctx context.Context, form url.Values) models.SendResult {
	reqURL := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", tw.apiBase, tw.accountSID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errorResult("", err.Error())
	}
	req.SetBasicAuth(tw.accountSID, tw.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := tw.client.Do(req)
	if err != nil {
		tw.logger.Error("Twilio send failed",
			zap.String("to", form.Get("To")),
			zap.Error(err),
		)
		return errorResult("", err.Error())
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 错误响应里带提供方错误码，原样记下来
		var apiErr struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		code := strconv.Itoa(resp.StatusCode)
		message := strings.TrimSpace(string(body))
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != 0 {
			code = strconv.Itoa(apiErr.Code)
			message = apiErr.Message
		}
		tw.logger.Error("Twilio send rejected",
			zap.String("to", form.Get("To")),
			zap.String("provider_code", code),
			zap.String("provider_message", message),
		)
		return errorResult(code, message)
	}

	var msg struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return errorResult("", fmt.Sprintf("failed to decode send response: %v", err))
	}

	tw.logger.Info("Twilio message submitted",
		zap.String("to", form.Get("To")),
		zap.String("sid", msg.SID),
		zap.String("status", msg.Status),
	)
	status := msg.Status
	if status == "" {
		status = models.StatusSent
	}
	return models.SendResult{OK: true, Status: status, MessageID: msg.SID}
}

// whatsappAddr 补齐 whatsapp: 前缀
func whatsappAddr(number string) string {
	if number == "" || strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}
