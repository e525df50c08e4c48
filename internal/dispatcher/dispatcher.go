package dispatcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/zayed1/SmartHospital/internal/config"
	"github.com/zayed1/SmartHospital/internal/models"
)

// Targets 一个事件在各渠道上解析出的投递目标
type Targets struct {
	Phone  string
	ChatID string
	Email  string
}

// Empty 所有渠道都没有目标
func (t Targets) Empty() bool {
	return t.Phone == "" && t.ChatID == "" && t.Email == ""
}

// Rendered 渲染好的各渠道消息体
type Rendered struct {
	Text            string            // telegram/whatsapp/sms 共用
	TemplateVars    map[string]string // WhatsApp 模板变量（编号键）
	HasTemplateVars bool
	EmailSubject    string
	EmailPlain      string
	EmailHTML       string
	HasEmail        bool
}

// WhatsAppSender WhatsApp/SMS 提供方（模板发送、自由文本、短信、状态查询）
type WhatsAppSender interface {
	Configured() bool
	SendWhatsAppTemplate(ctx context.Context, to, contentSID string, variables map[string]string) models.SendResult
	SendWhatsApp(ctx context.Context, to, body string) models.SendResult
	SendSMS(ctx context.Context, to, body string) models.SendResult
	PollStatus(ctx context.Context, messageSID string) (string, error)
}

// ChatSender 聊天机器人渠道
type ChatSender interface {
	Send(ctx context.Context, chatID, text string) models.SendResult
}

// MailSender 邮件渠道
type MailSender interface {
	SendEmail(ctx context.Context, to, subject, plain, html string) models.SendResult
}

// Dispatcher 多渠道投递器
// 按固定优先级逐渠道尝试，第一个确认成功的渠道即最终结果；
// 渠道失败是普通分支，不是异常
type Dispatcher struct {
	config   *config.Config
	twilio   WhatsAppSender
	telegram ChatSender
	email    MailSender
	logger   *zap.Logger

	pollInterval time.Duration
}

// NewDispatcher 创建投递器
func NewDispatcher(cfg *config.Config, twilio WhatsAppSender, telegram ChatSender, email MailSender, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		config:       cfg,
		twilio:       twilio,
		telegram:     telegram,
		email:        email,
		logger:       logger,
		pollInterval: time.Second,
	}
}

// Dispatch 按优先级投递一个事件
// 顺序：WhatsApp 模板 → WhatsApp 自由文本 → 短信 → Telegram → 邮件
func (d *Dispatcher) Dispatch(ctx context.Context, event models.Event, targets Targets, msg Rendered) models.DeliveryOutcome {
	attempted := false
	lastChannel := ""
	lastTarget := ""

	// 凭据缺失且非演练模式时整条 Twilio 链不参与尝试，把机会让给后面的渠道；
	// 演练模式下照常走模拟发送
	twilioUsable := d.twilio.Configured() || d.config.Notifier.DryRun

	// (1) WhatsApp 模板发送：配置了模板 SID 且有变量时才可用
	if twilioUsable && d.config.Twilio.ContentSID != "" && targets.Phone != "" && msg.HasTemplateVars {
		attempted, lastChannel, lastTarget = true, models.ChannelWhatsAppTemplate, targets.Phone
		res := d.twilio.SendWhatsAppTemplate(ctx, targets.Phone, d.config.Twilio.ContentSID, msg.TemplateVars)
		if outcome, ok := d.confirmed(ctx, models.ChannelWhatsAppTemplate, targets.Phone, res); ok {
			return outcome
		}
		d.logger.Warn("WhatsApp template send not confirmed, falling back",
			zap.String("event_key", event.Key()),
			zap.String("provider_code", res.ProviderCode),
		)
	}

	// (2) WhatsApp 自由文本：仅在提供方的开放会话窗口内有效，窗口判定交给提供方
	if twilioUsable && targets.Phone != "" {
		attempted, lastChannel, lastTarget = true, models.ChannelWhatsApp, targets.Phone
		res := d.twilio.SendWhatsApp(ctx, targets.Phone, msg.Text)
		if outcome, ok := d.confirmed(ctx, models.ChannelWhatsApp, targets.Phone, res); ok {
			return outcome
		}
		d.logger.Warn("WhatsApp send not confirmed, falling back",
			zap.String("event_key", event.Key()),
			zap.String("provider_code", res.ProviderCode),
		)
	}

	// (3) 短信
	if twilioUsable && d.config.Twilio.SMSEnabled && targets.Phone != "" {
		attempted, lastChannel, lastTarget = true, models.ChannelSMS, targets.Phone
		res := d.twilio.SendSMS(ctx, targets.Phone, msg.Text)
		if outcome, ok := d.confirmed(ctx, models.ChannelSMS, targets.Phone, res); ok {
			return outcome
		}
		d.logger.Warn("SMS send not confirmed, falling back",
			zap.String("event_key", event.Key()),
			zap.String("provider_code", res.ProviderCode),
		)
	}

	// (4) Telegram：同步接口，200 即发送成功
	if targets.ChatID != "" {
		attempted, lastChannel, lastTarget = true, models.ChannelTelegram, targets.ChatID
		res := d.telegram.Send(ctx, targets.ChatID, msg.Text)
		if res.OK {
			return models.DeliveryOutcome{
				Channel:   models.ChannelTelegram,
				Status:    res.Status,
				MessageID: res.MessageID,
				Target:    targets.ChatID,
			}
		}
		d.logger.Warn("Telegram send failed, falling back",
			zap.String("event_key", event.Key()),
			zap.String("provider_code", res.ProviderCode),
		)
	}

	// (5) 邮件
	if d.config.Email.Enabled && targets.Email != "" && msg.HasEmail {
		attempted, lastChannel, lastTarget = true, models.ChannelEmail, targets.Email
		res := d.email.SendEmail(ctx, targets.Email, msg.EmailSubject, msg.EmailPlain, msg.EmailHTML)
		if res.OK {
			return models.DeliveryOutcome{
				Channel:   models.ChannelEmail,
				Status:    res.Status,
				MessageID: res.MessageID,
				Target:    targets.Email,
			}
		}
		d.logger.Warn("Email send failed",
			zap.String("event_key", event.Key()),
			zap.String("provider_message", res.ProviderMessage),
		)
	}

	if !attempted {
		return models.DeliveryOutcome{Status: models.StatusNoTarget}
	}
	return models.DeliveryOutcome{Channel: lastChannel, Status: models.StatusError, Target: lastTarget}
}

// confirmed 判定一次提供方调用是否最终成功
// 对可查询投递状态的渠道轮询到终态或超时；模拟发送直接算成功
func (d *Dispatcher) confirmed(ctx context.Context, channel, target string, res models.SendResult) (models.DeliveryOutcome, bool) {
	if !res.OK {
		return models.DeliveryOutcome{}, false
	}
	if res.Simulated {
		return models.DeliveryOutcome{
			Channel:   channel,
			Status:    models.StatusSimulated,
			MessageID: res.MessageID,
			Target:    target,
		}, true
	}

	status, ok := d.pollUntilTerminal(ctx, res.MessageID)
	if !ok {
		return models.DeliveryOutcome{}, false
	}
	return models.DeliveryOutcome{
		Channel:   channel,
		Status:    status,
		MessageID: res.MessageID,
		Target:    target,
	}, true
}

// pollUntilTerminal 轮询投递状态直至终态或超时
// delivered 算成功；sent 只在放宽要求时算成功；failed/undelivered 与超时都算失败
func (d *Dispatcher) pollUntilTerminal(ctx context.Context, messageSID string) (string, bool) {
	timeout := time.Duration(d.config.Twilio.DeliveryTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	deadline := time.Now().Add(timeout)

	last := ""
	for {
		status, err := d.twilio.PollStatus(ctx, messageSID)
		if err != nil {
			d.logger.Warn("Delivery status poll failed",
				zap.String("sid", messageSID),
				zap.Error(err),
			)
		} else {
			last = status
		}

		switch last {
		case "delivered":
			return last, true
		case "sent":
			if !d.config.Twilio.RequireDelivered {
				return last, true
			}
		case "failed", "undelivered":
			d.logger.Warn("Delivery reached failed terminal status",
				zap.String("sid", messageSID),
				zap.String("status", last),
			)
			return last, false
		}

		if time.Now().After(deadline) {
			d.logger.Warn("Delivery confirmation timed out",
				zap.String("sid", messageSID),
				zap.String("last_status", last),
			)
			return last, false
		}

		select {
		case <-ctx.Done():
			return last, false
		case <-time.After(d.pollInterval):
		}
	}
}
