package models

// 渠道名
const (
	ChannelWhatsAppTemplate = "whatsapp-template"
	ChannelWhatsApp         = "whatsapp"
	ChannelSMS              = "sms"
	ChannelTelegram         = "telegram"
	ChannelEmail            = "email"
)

// 投递状态
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusSimulated = "simulated"
	StatusNoTarget  = "no-target"
	StatusError     = "error"
	StatusSkipped   = "skipped"
)

// SendResult 单次渠道调用的结果
// 渠道失败是值不是异常：Dispatcher 的回退链只看 OK
type SendResult struct {
	OK              bool   `json:"ok"`
	Status          string `json:"status"`
	MessageID       string `json:"message_id,omitempty"`
	ProviderCode    string `json:"provider_code,omitempty"`
	ProviderMessage string `json:"provider_message,omitempty"`
	Simulated       bool   `json:"simulated,omitempty"`
}

// DeliveryOutcome 一个事件经过整条回退链后的最终结果
type DeliveryOutcome struct {
	Channel   string `json:"channel"`
	Status    string `json:"status"`
	MessageID string `json:"message_id,omitempty"`
	Target    string `json:"target,omitempty"`
}
