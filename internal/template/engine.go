package template

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/zayed1/SmartHospital/internal/models"
)

// DefaultName 事件未指定模板名时使用的名字，同时也是查找失败的兜底名
const DefaultName = "default"

// Engine 消息模板引擎
// 查找链：精确名 → "default" → 硬编码最小排版；缺字段替换为空串，绝不中断周期
type Engine struct {
	templates models.TemplateSet
	logger    *zap.Logger
}

// NewEngine 创建引擎（带内置默认模板）
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{
		templates: Defaults(),
		logger:    logger,
	}
}

// Defaults 内置模板（templates.json 缺失时的兜底）
func Defaults() models.TemplateSet {
	return models.TemplateSet{
		"default": {
			Vars: []string{"patient_name", "department", "event", "timestamp"},
			Telegram: models.TelegramBlock{
				Text: "📣 تحديث جديد\nالمريض: {patient_name}\nالقسم: {department}\nالحالة: {event}\n🕒 {timestamp}",
			},
		},
		"emergency": {
			Vars: []string{"patient_name", "department", "event", "timestamp"},
			Telegram: models.TelegramBlock{
				Text: "🚨🚑 طارئ جديد!\nالقسم: {department}\nالحالة: {event}\nالمريض: {patient_name}\n🕒 {timestamp}",
			},
		},
	}
}

// Load 从 templates.json 加载模板集合
// 文件缺失或损坏保留当前模板（首次即内置默认），只记日志
func (e *Engine) Load(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			e.logger.Warn("Failed to read templates file, keeping current set",
				zap.String("path", path),
				zap.Error(err),
			)
		}
		return
	}

	set := models.TemplateSet{}
	if err := json.Unmarshal(data, &set); err != nil {
		e.logger.Warn("Invalid templates file, keeping current set",
			zap.String("path", path),
			zap.Error(err),
		)
		return
	}
	if len(set) == 0 {
		return
	}
	e.templates = set
}

// lookup 模板查找链：精确名 → default
func (e *Engine) lookup(name string) (models.Template, bool) {
	if name == "" {
		name = DefaultName
	}
	if t, ok := e.templates[name]; ok {
		return t, true
	}
	if t, ok := e.templates[DefaultName]; ok {
		return t, true
	}
	return models.Template{}, false
}

// RenderText 渲染文本类渠道的消息体（telegram/whatsapp/sms 共用）
// 模板与 default 都不可用时退到硬编码最小排版
func (e *Engine) RenderText(name string, fields map[string]string) string {
	if t, ok := e.lookup(name); ok && t.Telegram.Text != "" {
		return substitute(t.Telegram.Text, fields)
	}
	return minimalLayout(fields)
}

// RenderEmail 渲染邮件渠道
// 模板没有邮件块时返回 ok=false，调用方落到下一渠道
func (e *Engine) RenderEmail(name string, fields map[string]string) (subject, plain, html string, ok bool) {
	t, found := e.lookup(name)
	if !found {
		return "", "", "", false
	}
	if t.Email.Subject == "" && t.Email.Plain == "" && t.Email.HTML == "" {
		return "", "", "", false
	}
	subject = substitute(t.Email.Subject, fields)
	if subject == "" {
		subject = minimalLayout(fields)
	}
	return subject, substitute(t.Email.Plain, fields), substitute(t.Email.HTML, fields), true
}

// ContentVariables 按模板 vars 顺序生成 WhatsApp 模板变量（"1"、"2"……）
// 返回 ok=false 表示该模板没有声明变量，模板发送无从谈起
func (e *Engine) ContentVariables(name string, fields map[string]string) (map[string]string, bool) {
	t, found := e.lookup(name)
	if !found || len(t.Vars) == 0 {
		return nil, false
	}
	vars := make(map[string]string, len(t.Vars))
	for i, v := range t.Vars {
		vars[strconv.Itoa(i+1)] = fields[v]
	}
	return vars, true
}

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// substitute 占位符替换；缺字段替换为空串（安全替换）
func substitute(format string, fields map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(format, func(match string) string {
		key := match[1 : len(match)-1]
		return fields[key]
	})
}

// minimalLayout 硬编码最小排版（模板系统完全不可用时的兜底）
func minimalLayout(fields map[string]string) string {
	patient := fields["patient_name"]
	if patient == "" {
		patient = fields["mrn"]
	}
	return fmt.Sprintf("%s | %s | %s | %s",
		fields["department"],
		fields["event"],
		patient,
		fields["timestamp"],
	)
}
