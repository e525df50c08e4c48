package resolver

import (
	"strings"

	"go.uber.org/zap"

	"github.com/zayed1/SmartHospital/internal/config"
	"github.com/zayed1/SmartHospital/internal/models"
)

// 解析来源标记（写进日志与审计，便于排查"这条消息为什么发给了他"）
const (
	OriginOnCall       = "oncall"
	OriginOverride     = "override"
	OriginStaff        = "staff"
	OriginNotFound     = "not-found"
	OriginNoDepartment = "no-department"
)

// Resolution 一次解析的结果
type Resolution struct {
	Target string
	Origin string
}

// Found 是否解析到了投递目标
func (r Resolution) Found() bool {
	return r.Target != ""
}

// Resolver 科室 → 值班人投递目标解析器
// 纯函数式：同样的（科室、值班表、通讯录、覆盖表）总是得到同一目标
type Resolver struct {
	config *config.Config
	logger *zap.Logger
}

// NewResolver 创建解析器
func NewResolver(cfg *config.Config, logger *zap.Logger) *Resolver {
	return &Resolver{config: cfg, logger: logger}
}

// Resolve 按固定优先级解析科室在指定渠道上的投递目标
// 优先级（业务核心规则，顺序不可调换）：
//  1. 值班表行上直接写明的目标
//  2. 配置里的科室全局覆盖表
//  3. 值班表 authorized 行指向的员工（员工记录也必须 authorized）
//
// 第 3 级同科室有多个 authorized 行时取文件顺序的第一行——是约定，不是优先级字段
func (r *Resolver) Resolve(department string, oncall []models.OnCallAssignment, staff []models.StaffRecord, channel string) Resolution {
	dept := strings.TrimSpace(department)
	if dept == "" {
		return Resolution{Origin: OriginNoDepartment}
	}

	// (1) 值班表行上直接写明的目标
	for _, row := range oncall {
		if row.Department != dept {
			continue
		}
		if target := rowTarget(row, channel); target != "" {
			return Resolution{Target: target, Origin: OriginOnCall}
		}
	}

	// (2) 全局覆盖表
	if target := strings.TrimSpace(r.overrideFor(dept, channel)); target != "" {
		return Resolution{Target: target, Origin: OriginOverride}
	}

	// (3) 员工路径：文件顺序第一个 authorized 且带 staff_id 的值班行
	var staffID string
	for _, row := range oncall {
		if row.Department != dept || !row.Authorized {
			continue
		}
		if row.StaffID != "" {
			staffID = row.StaffID
			break
		}
	}
	if staffID != "" {
		for _, s := range staff {
			if s.StaffID != staffID {
				continue
			}
			// 值班行与员工记录双方都要 authorized
			if !s.Authorized {
				break
			}
			if target := staffTarget(s, channel); target != "" {
				return Resolution{Target: target, Origin: OriginStaff}
			}
			break
		}
	}

	return Resolution{Origin: OriginNotFound}
}

// rowTarget 值班表行上与渠道匹配的显式目标
func rowTarget(row models.OnCallAssignment, channel string) string {
	switch channel {
	case models.ChannelTelegram:
		return row.TelegramChatID
	case models.ChannelWhatsApp, models.ChannelSMS:
		return row.Phone
	}
	// 值班表没有邮箱列
	return ""
}

func (r *Resolver) overrideFor(dept, channel string) string {
	switch channel {
	case models.ChannelTelegram:
		return r.config.Telegram.ChatIDs[dept]
	case models.ChannelWhatsApp, models.ChannelSMS:
		return r.config.Twilio.PhoneOverrides[dept]
	case models.ChannelEmail:
		return r.config.Email.Overrides[dept]
	}
	return ""
}

// staffTarget 员工记录上与渠道匹配的目标
func staffTarget(s models.StaffRecord, channel string) string {
	switch channel {
	case models.ChannelTelegram:
		return s.TelegramChatID
	case models.ChannelWhatsApp, models.ChannelSMS:
		return s.Phone
	case models.ChannelEmail:
		if !s.EmailEnabled {
			return ""
		}
		return s.Email
	}
	return ""
}
