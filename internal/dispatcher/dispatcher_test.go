package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zayed1/SmartHospital/internal/config"
	"github.com/zayed1/SmartHospital/internal/models"
)

// fakeTwilio 可编排每种调用的结果与投递状态序列
type fakeTwilio struct {
	unconfigured   bool // 零值 = 凭据齐备
	templateResult models.SendResult
	freeformResult models.SendResult
	smsResult      models.SendResult
	statuses       []string // PollStatus 依次返回的状态
	calls          []string
	polls          int
}

func (f *fakeTwilio) Configured() bool { return !f.unconfigured }

func (f *fakeTwilio) SendWhatsAppTemplate(_ context.Context, to, contentSID string, variables map[string]string) models.SendResult {
	f.calls = append(f.calls, "template")
	return f.templateResult
}

func (f *fakeTwilio) SendWhatsApp(_ context.Context, to, body string) models.SendResult {
	f.calls = append(f.calls, "freeform")
	return f.freeformResult
}

func (f *fakeTwilio) SendSMS(_ context.Context, to, body string) models.SendResult {
	f.calls = append(f.calls, "sms")
	return f.smsResult
}

func (f *fakeTwilio) PollStatus(_ context.Context, messageSID string) (string, error) {
	idx := f.polls
	f.polls++
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	return f.statuses[idx], nil
}

type fakeTelegram struct {
	result models.SendResult
	calls  []string
}

func (f *fakeTelegram) Send(_ context.Context, chatID, text string) models.SendResult {
	f.calls = append(f.calls, chatID)
	return f.result
}

type fakeEmail struct {
	result models.SendResult
	calls  []string
}

func (f *fakeEmail) SendEmail(_ context.Context, to, subject, plain, html string) models.SendResult {
	f.calls = append(f.calls, to)
	return f.result
}

func sentResult(sid string) models.SendResult {
	return models.SendResult{OK: true, Status: models.StatusSent, MessageID: sid}
}

func failedResult(code string) models.SendResult {
	return models.SendResult{OK: false, Status: models.StatusError, ProviderCode: code}
}

func simResult() models.SendResult {
	return models.SendResult{OK: true, Status: models.StatusSimulated, MessageID: "SIM-1", Simulated: true}
}

func newTestDispatcher(cfg *config.Config, tw *fakeTwilio, tg *fakeTelegram, em *fakeEmail) *Dispatcher {
	d := NewDispatcher(cfg, tw, tg, em, zap.NewNop())
	d.pollInterval = time.Millisecond
	return d
}

func baseConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Twilio.DeliveryTimeoutSec = 1
	cfg.Twilio.RequireDelivered = true
	return cfg
}

func TestDispatch_TemplateDeliveredFirstTry(t *testing.T) {
	cfg := baseConfig()
	cfg.Twilio.ContentSID = "HX123"

	tw := &fakeTwilio{templateResult: sentResult("SM1"), statuses: []string{"delivered"}}
	tg := &fakeTelegram{result: sentResult("99")}
	d := newTestDispatcher(cfg, tw, tg, &fakeEmail{})

	out := d.Dispatch(context.Background(), models.Event{Department: "ER"},
		Targets{Phone: "+111", ChatID: "chat:1"},
		Rendered{Text: "msg", TemplateVars: map[string]string{"1": "ER"}, HasTemplateVars: true})

	assert.Equal(t, models.ChannelWhatsAppTemplate, out.Channel)
	assert.Equal(t, "delivered", out.Status)
	assert.Equal(t, "SM1", out.MessageID)
	assert.Equal(t, "+111", out.Target)
	assert.Equal(t, []string{"template"}, tw.calls)
	assert.Empty(t, tg.calls)
}

// 模板失败 → 自由文本失败 → 短信失败 → Telegram 兜底
func TestDispatch_FallbackOrder(t *testing.T) {
	cfg := baseConfig()
	cfg.Twilio.ContentSID = "HX123"
	cfg.Twilio.SMSEnabled = true

	tw := &fakeTwilio{
		templateResult: failedResult("63016"),
		freeformResult: failedResult("63016"),
		smsResult:      failedResult("21211"),
	}
	tg := &fakeTelegram{result: sentResult("42")}
	d := newTestDispatcher(cfg, tw, tg, &fakeEmail{})

	out := d.Dispatch(context.Background(), models.Event{Department: "ER"},
		Targets{Phone: "+111", ChatID: "chat:9"},
		Rendered{Text: "msg", TemplateVars: map[string]string{"1": "ER"}, HasTemplateVars: true})

	assert.Equal(t, []string{"template", "freeform", "sms"}, tw.calls)
	assert.Equal(t, []string{"chat:9"}, tg.calls)
	assert.Equal(t, models.ChannelTelegram, out.Channel)
	assert.Equal(t, models.StatusSent, out.Status)
	assert.Equal(t, "chat:9", out.Target)
}

func TestDispatch_NoContentSIDSkipsTemplate(t *testing.T) {
	cfg := baseConfig()
	tw := &fakeTwilio{freeformResult: sentResult("SM2"), statuses: []string{"delivered"}}
	d := newTestDispatcher(cfg, tw, &fakeTelegram{}, &fakeEmail{})

	out := d.Dispatch(context.Background(), models.Event{},
		Targets{Phone: "+111"},
		Rendered{Text: "msg", TemplateVars: map[string]string{"1": "x"}, HasTemplateVars: true})

	assert.Equal(t, []string{"freeform"}, tw.calls)
	assert.Equal(t, models.ChannelWhatsApp, out.Channel)
}

func TestDispatch_SMSDisabledSkipped(t *testing.T) {
	cfg := baseConfig()
	tw := &fakeTwilio{freeformResult: failedResult("63016")}
	tg := &fakeTelegram{result: sentResult("7")}
	d := newTestDispatcher(cfg, tw, tg, &fakeEmail{})

	out := d.Dispatch(context.Background(), models.Event{},
		Targets{Phone: "+111", ChatID: "chat:2"}, Rendered{Text: "msg"})

	assert.Equal(t, []string{"freeform"}, tw.calls)
	assert.Equal(t, models.ChannelTelegram, out.Channel)
	assert.Equal(t, "chat:2", out.Target)
}

func TestDispatch_NoTargets(t *testing.T) {
	d := newTestDispatcher(baseConfig(), &fakeTwilio{}, &fakeTelegram{}, &fakeEmail{})

	out := d.Dispatch(context.Background(), models.Event{}, Targets{}, Rendered{Text: "msg"})

	assert.Equal(t, models.StatusNoTarget, out.Status)
	assert.Empty(t, out.Channel)
}

func TestDispatch_AllChannelsFail(t *testing.T) {
	cfg := baseConfig()
	tw := &fakeTwilio{freeformResult: failedResult("63016")}
	tg := &fakeTelegram{result: failedResult("403")}
	d := newTestDispatcher(cfg, tw, tg, &fakeEmail{})

	out := d.Dispatch(context.Background(), models.Event{},
		Targets{Phone: "+111", ChatID: "chat:3"}, Rendered{Text: "msg"})

	assert.Equal(t, models.StatusError, out.Status)
	assert.Equal(t, models.ChannelTelegram, out.Channel)
	assert.Equal(t, "chat:3", out.Target)
}

func TestDispatch_SimulatedSkipsPolling(t *testing.T) {
	cfg := baseConfig()
	tw := &fakeTwilio{freeformResult: simResult()}
	d := newTestDispatcher(cfg, tw, &fakeTelegram{}, &fakeEmail{})

	out := d.Dispatch(context.Background(), models.Event{},
		Targets{Phone: "+111"}, Rendered{Text: "msg"})

	assert.Equal(t, models.StatusSimulated, out.Status)
	assert.Equal(t, "SIM-1", out.MessageID)
	assert.Zero(t, tw.polls)
}

func TestDispatch_PollsUntilDelivered(t *testing.T) {
	cfg := baseConfig()
	tw := &fakeTwilio{
		freeformResult: sentResult("SM3"),
		statuses:       []string{"queued", "sent", "delivered"},
	}
	d := newTestDispatcher(cfg, tw, &fakeTelegram{}, &fakeEmail{})

	out := d.Dispatch(context.Background(), models.Event{},
		Targets{Phone: "+111"}, Rendered{Text: "msg"})

	require.Equal(t, "delivered", out.Status)
	assert.Equal(t, 3, tw.polls)
}

func TestDispatch_SentAcceptedWhenDeliveredNotRequired(t *testing.T) {
	cfg := baseConfig()
	cfg.Twilio.RequireDelivered = false
	tw := &fakeTwilio{freeformResult: sentResult("SM4"), statuses: []string{"sent"}}
	d := newTestDispatcher(cfg, tw, &fakeTelegram{}, &fakeEmail{})

	out := d.Dispatch(context.Background(), models.Event{},
		Targets{Phone: "+111"}, Rendered{Text: "msg"})

	assert.Equal(t, models.ChannelWhatsApp, out.Channel)
	assert.Equal(t, "sent", out.Status)
	assert.Equal(t, 1, tw.polls)
}

func TestDispatch_FailedStatusFallsBack(t *testing.T) {
	cfg := baseConfig()
	tw := &fakeTwilio{freeformResult: sentResult("SM5"), statuses: []string{"failed"}}
	tg := &fakeTelegram{result: sentResult("11")}
	d := newTestDispatcher(cfg, tw, tg, &fakeEmail{})

	out := d.Dispatch(context.Background(), models.Event{},
		Targets{Phone: "+111", ChatID: "chat:4"}, Rendered{Text: "msg"})

	assert.Equal(t, models.ChannelTelegram, out.Channel)
	assert.Equal(t, []string{"chat:4"}, tg.calls)
}

func TestDispatch_ConfirmationTimeout(t *testing.T) {
	cfg := baseConfig()
	tw := &fakeTwilio{freeformResult: sentResult("SM6"), statuses: []string{"queued"}}
	tg := &fakeTelegram{result: sentResult("12")}
	d := newTestDispatcher(cfg, tw, tg, &fakeEmail{})
	d.pollInterval = 20 * time.Millisecond

	start := time.Now()
	out := d.Dispatch(context.Background(), models.Event{},
		Targets{Phone: "+111", ChatID: "chat:5"}, Rendered{Text: "msg"})

	assert.Equal(t, models.ChannelTelegram, out.Channel)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDispatch_EmailLastResort(t *testing.T) {
	cfg := baseConfig()
	cfg.Email.Enabled = true
	tg := &fakeTelegram{result: failedResult("403")}
	em := &fakeEmail{result: sentResult("")}
	d := newTestDispatcher(cfg, &fakeTwilio{}, tg, em)

	out := d.Dispatch(context.Background(), models.Event{},
		Targets{ChatID: "chat:6", Email: "doc@hospital.example"},
		Rendered{Text: "msg", EmailSubject: "s", EmailPlain: "p", HasEmail: true})

	assert.Equal(t, models.ChannelEmail, out.Channel)
	assert.Equal(t, []string{"doc@hospital.example"}, em.calls)
	assert.Equal(t, "doc@hospital.example", out.Target)
}

// 凭据未配置且非演练模式：Twilio 链整体让位，已配置的 Telegram 真正收到消息，
// 而不是被一次假成功的模拟发送截停
func TestDispatch_UnconfiguredTwilioYieldsToTelegram(t *testing.T) {
	cfg := baseConfig()
	cfg.Twilio.ContentSID = "HX123"
	cfg.Twilio.SMSEnabled = true

	tw := &fakeTwilio{unconfigured: true, freeformResult: simResult()}
	tg := &fakeTelegram{result: sentResult("21")}
	d := newTestDispatcher(cfg, tw, tg, &fakeEmail{})

	out := d.Dispatch(context.Background(), models.Event{Department: "ER"},
		Targets{Phone: "+111", ChatID: "chat:7"},
		Rendered{Text: "msg", TemplateVars: map[string]string{"1": "ER"}, HasTemplateVars: true})

	assert.Empty(t, tw.calls)
	assert.Equal(t, models.ChannelTelegram, out.Channel)
	assert.Equal(t, "chat:7", out.Target)
}

// 演练模式下凭据缺失不让位，照常走模拟发送
func TestDispatch_DryRunKeepsTwilioChain(t *testing.T) {
	cfg := baseConfig()
	cfg.Notifier.DryRun = true

	tw := &fakeTwilio{unconfigured: true, freeformResult: simResult()}
	tg := &fakeTelegram{result: sentResult("22")}
	d := newTestDispatcher(cfg, tw, tg, &fakeEmail{})

	out := d.Dispatch(context.Background(), models.Event{},
		Targets{Phone: "+111", ChatID: "chat:8"}, Rendered{Text: "msg"})

	assert.Equal(t, []string{"freeform"}, tw.calls)
	assert.Equal(t, models.ChannelWhatsApp, out.Channel)
	assert.Equal(t, models.StatusSimulated, out.Status)
	assert.Empty(t, tg.calls)
}

func TestDispatch_EmailSkippedWithoutRenderedEmail(t *testing.T) {
	cfg := baseConfig()
	cfg.Email.Enabled = true
	em := &fakeEmail{result: sentResult("")}
	d := newTestDispatcher(cfg, &fakeTwilio{}, &fakeTelegram{}, em)

	out := d.Dispatch(context.Background(), models.Event{},
		Targets{Email: "doc@hospital.example"}, Rendered{Text: "msg"})

	assert.Empty(t, em.calls)
	assert.Equal(t, models.StatusNoTarget, out.Status)
}
