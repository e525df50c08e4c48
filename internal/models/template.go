package models

// TelegramBlock 文本类渠道的模板块（telegram/whatsapp/sms 共用）
type TelegramBlock struct {
	Text string `json:"text"`
}

// EmailBlock 邮件渠道的模板块
type EmailBlock struct {
	Subject string `json:"subject,omitempty"`
	Plain   string `json:"plain,omitempty"`
	HTML    string `json:"html,omitempty"`
}

// Template 按模板名索引的消息模板
// 占位符语法 {field}；vars 列出 WhatsApp 模板变量的顺序
type Template struct {
	Vars     []string      `json:"vars,omitempty"`
	Telegram TelegramBlock `json:"telegram,omitempty"`
	Email    EmailBlock    `json:"email,omitempty"`
}

// TemplateSet 模板集合（templates.json 的顶层结构）
type TemplateSet map[string]Template
