package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zayed1/SmartHospital/internal/models"
)

func sampleFields() map[string]string {
	return map[string]string{
		"patient_name": "A.B.",
		"department":   "ER",
		"event":        "admission",
		"timestamp":    "2024-01-01T10:00:00",
	}
}

func TestRenderText_NamedTemplate(t *testing.T) {
	e := NewEngine(zap.NewNop())
	e.templates = models.TemplateSet{
		"admission": {Telegram: models.TelegramBlock{Text: "{department}: {event} for {patient_name}"}},
		"default":   {Telegram: models.TelegramBlock{Text: "default {event}"}},
	}

	got := e.RenderText("admission", sampleFields())
	assert.Equal(t, "ER: admission for A.B.", got)
}

func TestRenderText_FallsBackToDefault(t *testing.T) {
	e := NewEngine(zap.NewNop())
	e.templates = models.TemplateSet{
		"default": {Telegram: models.TelegramBlock{Text: "default {event}"}},
	}

	// 未知模板名 → default
	assert.Equal(t, "default admission", e.RenderText("unknown", sampleFields()))
	// 空模板名 → default
	assert.Equal(t, "default admission", e.RenderText("", sampleFields()))
}

func TestRenderText_MissingFieldsBecomeEmpty(t *testing.T) {
	e := NewEngine(zap.NewNop())
	e.templates = models.TemplateSet{
		"default": {Telegram: models.TelegramBlock{Text: "[{department}] {room} {event}"}},
	}

	got := e.RenderText("", sampleFields())
	assert.Equal(t, "[ER]  admission", got)
}

func TestRenderText_HardcodedLayoutWhenNoTemplates(t *testing.T) {
	e := NewEngine(zap.NewNop())
	e.templates = models.TemplateSet{}

	got := e.RenderText("anything", sampleFields())
	assert.Equal(t, "ER | admission | A.B. | 2024-01-01T10:00:00", got)
}

func TestRenderText_BuiltinDefaultsRender(t *testing.T) {
	e := NewEngine(zap.NewNop())

	got := e.RenderText("emergency", sampleFields())
	assert.Contains(t, got, "ER")
	assert.Contains(t, got, "admission")
	assert.NotContains(t, got, "{department}")
}

func TestRenderEmail_NoBlockFallsThrough(t *testing.T) {
	e := NewEngine(zap.NewNop())
	e.templates = models.TemplateSet{
		"default": {Telegram: models.TelegramBlock{Text: "text only"}},
	}

	_, _, _, ok := e.RenderEmail("default", sampleFields())
	assert.False(t, ok)
}

func TestRenderEmail_RendersAllParts(t *testing.T) {
	e := NewEngine(zap.NewNop())
	e.templates = models.TemplateSet{
		"default": {
			Email: models.EmailBlock{
				Subject: "{department} update",
				Plain:   "{event} at {timestamp}",
				HTML:    "<b>{event}</b>",
			},
		},
	}

	subject, plain, html, ok := e.RenderEmail("default", sampleFields())
	require.True(t, ok)
	assert.Equal(t, "ER update", subject)
	assert.Equal(t, "admission at 2024-01-01T10:00:00", plain)
	assert.Equal(t, "<b>admission</b>", html)
}

func TestContentVariables_NumberedByVarsOrder(t *testing.T) {
	e := NewEngine(zap.NewNop())
	e.templates = models.TemplateSet{
		"default": {Vars: []string{"department", "event"}},
	}

	vars, ok := e.ContentVariables("default", sampleFields())
	require.True(t, ok)
	assert.Equal(t, map[string]string{"1": "ER", "2": "admission"}, vars)
}

func TestLoad_FileReplacesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"default":{"telegram":{"text":"from file {event}"}}}`), 0o644))

	e := NewEngine(zap.NewNop())
	e.Load(path)

	assert.Equal(t, "from file admission", e.RenderText("", sampleFields()))
}

func TestLoad_InvalidFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	e := NewEngine(zap.NewNop())
	e.Load(path)

	// 内置默认模板仍然可用
	got := e.RenderText("", sampleFields())
	assert.Contains(t, got, "ER")
}
