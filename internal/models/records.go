package models

// OnCallAssignment 值班表记录（对应 oncall.csv 的一行）
// 同一科室可以有多行；authorized 列缺省视为 true
type OnCallAssignment struct {
	Department     string `json:"department"`
	TelegramChatID string `json:"telegram_chat_id,omitempty"`
	Phone          string `json:"phone,omitempty"`
	StaffID        string `json:"staff_id,omitempty"`
	Authorized     bool   `json:"authorized"`
	Row            int    `json:"-"` // 文件中的行序号（决定同科室并列时的取舍）
}

// StaffRecord 员工通讯录记录（对应 staff.csv 的一行）
type StaffRecord struct {
	StaffID        string `json:"staff_id"`
	Name           string `json:"name,omitempty"`
	Phone          string `json:"phone,omitempty"`
	TelegramChatID string `json:"telegram_chat_id,omitempty"`
	Email          string `json:"email,omitempty"`
	Authorized     bool   `json:"authorized"`
	EmailEnabled   bool   `json:"email_enabled"`
}
