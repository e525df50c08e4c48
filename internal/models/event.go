package models

import "strings"

// Event 病区事件（对应 updates.csv 的一行）
// 读入后不可变，只被消费
type Event struct {
	ID              string            `json:"id,omitempty"`
	Department      string            `json:"department"`
	PatientName     string            `json:"patient_name,omitempty"`
	MRN             string            `json:"mrn,omitempty"`
	PatientInitials string            `json:"patient_initials,omitempty"`
	EventType       string            `json:"event_type"`
	Note            string            `json:"note,omitempty"`
	Timestamp       string            `json:"timestamp"` // ISO-8601 字符串，与源文件保持一致
	Template        string            `json:"template,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"` // 其余 CSV 列（模板渲染可用）
	Row             int               `json:"-"`               // 文件中的行序号（0 起）
}

// PatientRef 患者标识（优先姓名，缺失时用病历号）
func (e Event) PatientRef() string {
	if e.PatientName != "" {
		return e.PatientName
	}
	return e.MRN
}

// Key 去重键
// 有 id 时仅由 id 决定；否则按 department|event_type|timestamp|patient_ref 组合
func (e Event) Key() string {
	if id := strings.TrimSpace(e.ID); id != "" {
		return "id:" + id
	}
	return e.Department + "|" + e.EventType + "|" + e.Timestamp + "|" + e.PatientRef()
}

// Fields 返回模板渲染可用的全部字段（含别名 patient → patient_name）
func (e Event) Fields() map[string]string {
	fields := make(map[string]string, len(e.Extra)+10)
	for k, v := range e.Extra {
		fields[k] = v
	}
	fields["id"] = e.ID
	fields["department"] = e.Department
	fields["patient_name"] = e.PatientName
	fields["patient"] = e.PatientName
	fields["mrn"] = e.MRN
	fields["patient_initials"] = e.PatientInitials
	fields["event"] = e.EventType
	fields["event_type"] = e.EventType
	fields["note"] = e.Note
	fields["timestamp"] = e.Timestamp
	return fields
}
