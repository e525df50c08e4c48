package repository

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/zayed1/SmartHospital/internal/models"
)

// RecordRepository CSV 数据集加载器
// 文件来自表格软件导出：去首尾空白，剥离 BOM 与双向控制符
type RecordRepository struct {
	logger *zap.Logger
}

// NewRecordRepository 创建加载器
func NewRecordRepository(logger *zap.Logger) *RecordRepository {
	return &RecordRepository{logger: logger}
}

// LoadEvents 加载事件数据集（updates.csv）
// 文件缺失返回空切片，不返回错误
func (r *RecordRepository) LoadEvents(path string) ([]models.Event, error) {
	rows, err := r.readRows(path)
	if err != nil {
		return nil, err
	}

	events := make([]models.Event, 0, len(rows))
	for i, row := range rows {
		ev := models.Event{
			ID:              row["id"],
			Department:      row["department"],
			PatientName:     row["patient_name"],
			MRN:             row["mrn"],
			PatientInitials: row["patient_initials"],
			EventType:       firstOf(row, "event_type", "event"),
			Note:            row["note"],
			Timestamp:       row["timestamp"],
			Template:        row["template"],
			Extra:           row,
			Row:             i,
		}
		events = append(events, ev)
	}
	return events, nil
}

// LoadOnCall 加载值班表（oncall.csv）
func (r *RecordRepository) LoadOnCall(path string) ([]models.OnCallAssignment, error) {
	rows, err := r.readRows(path)
	if err != nil {
		return nil, err
	}

	assignments := make([]models.OnCallAssignment, 0, len(rows))
	for i, row := range rows {
		assignments = append(assignments, models.OnCallAssignment{
			Department:     row["department"],
			TelegramChatID: row["telegram_chat_id"],
			Phone:          row["phone"],
			StaffID:        firstOf(row, "staff_id", "staff"),
			Authorized:     parseBool(row["authorized"], true),
			Row:            i,
		})
	}
	return assignments, nil
}

// LoadStaff 加载员工通讯录（staff.csv）
func (r *RecordRepository) LoadStaff(path string) ([]models.StaffRecord, error) {
	rows, err := r.readRows(path)
	if err != nil {
		return nil, err
	}

	staff := make([]models.StaffRecord, 0, len(rows))
	for _, row := range rows {
		staff = append(staff, models.StaffRecord{
			StaffID:        firstOf(row, "staff_id", "id"),
			Name:           row["name"],
			Phone:          row["phone"],
			TelegramChatID: row["telegram_chat_id"],
			Email:          row["email"],
			Authorized:     parseBool(row["authorized"], true),
			EmailEnabled:   parseBool(row["email_enabled"], true),
		})
	}
	return staff, nil
}

// readRows 读取 CSV 为按清洗后列名索引的行
func (r *RecordRepository) readRows(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Debug("CSV not found, treating as empty",
				zap.String("path", path),
			)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // 行宽不齐也接受

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := make([]string, len(records[0]))
	for i, name := range records[0] {
		header[i] = strings.ToLower(cleanField(name))
	}

	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			if i < len(record) {
				row[name] = cleanField(record[i])
			} else {
				row[name] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// 表格导出常见的不可见字符：BOM、左/右向标记、零宽空格
var invisibleReplacer = strings.NewReplacer(
	"\uFEFF", "",
	"\u200E", "",
	"\u200F", "",
	"\u200B", "",
)

func cleanField(s string) string {
	return strings.TrimSpace(invisibleReplacer.Replace(s))
}

func firstOf(row map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := row[k]; v != "" {
			return v
		}
	}
	return ""
}

// parseBool 布尔列解析
// 肯定值与否定值大小写不敏感，空白或无法识别时取列的缺省语义
func parseBool(s string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on", "authorized":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return defaultValue
}
