package channels

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/zayed1/SmartHospital/internal/config"
	"github.com/zayed1/SmartHospital/internal/models"
)

// Email SMTP 提交渠道
type Email struct {
	host     string
	port     int
	user     string
	password string
	from     string
	dryRun   bool
	logger   *zap.Logger

	// 可注入的发送函数（测试用；默认 smtp.SendMail）
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmail 创建邮件渠道
// SMTP 主机未配置或 dryRun 时进入模拟模式
func NewEmail(cfg *config.Config, logger *zap.Logger) *Email {
	return &Email{
		host:     cfg.Email.SMTPHost,
		port:     cfg.Email.SMTPPort,
		user:     cfg.Email.User,
		password: cfg.Email.Password,
		from:     cfg.Email.From,
		dryRun:   cfg.Notifier.DryRun,
		logger:   logger,
		sendMail: smtp.SendMail,
	}
}

// SendEmail 提交一封邮件（plain 与 html 二选一或并存，并存时组装 multipart/alternative）
func (e *Email) SendEmail(ctx context.Context, to, subject, plain, html string) models.SendResult {
	if to == "" {
		return models.SendResult{Status: models.StatusSkipped, ProviderMessage: "empty recipient"}
	}
	if e.dryRun || e.host == "" {
		e.logger.Info("Simulated email send",
			zap.String("to", to),
			zap.String("subject", subject),
		)
		return simulatedResult()
	}

	from := e.from
	if from == "" {
		from = e.user
	}

	msg := buildMessage(from, to, subject, plain, html)
	addr := fmt.Sprintf("%s:%d", e.host, e.port)

	var auth smtp.Auth
	if e.user != "" {
		auth = smtp.PlainAuth("", e.user, e.password, e.host)
	}

	if err := e.sendMail(addr, auth, from, []string{to}, msg); err != nil {
		e.logger.Error("Email send failed",
			zap.String("to", to),
			zap.Error(err),
		)
		return errorResult("", err.Error())
	}

	e.logger.Info("Email sent",
		zap.String("to", to),
		zap.String("subject", subject),
	)
	return models.SendResult{OK: true, Status: models.StatusSent}
}

// buildMessage 组装 RFC 5322 报文
func buildMessage(from, to, subject, plain, html string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")

	switch {
	case plain != "" && html != "":
		const boundary = "=_notifier_alt"
		b.WriteString("Content-Type: multipart/alternative; boundary=\"" + boundary + "\"\r\n\r\n")
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(plain + "\r\n")
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(html + "\r\n")
		b.WriteString("--" + boundary + "--\r\n")
	case html != "":
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(html + "\r\n")
	default:
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(plain + "\r\n")
	}
	return []byte(b.String())
}
