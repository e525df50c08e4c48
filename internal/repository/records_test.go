package repository

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadEvents_MissingFileIsEmpty(t *testing.T) {
	repo := NewRecordRepository(zap.NewNop())

	events, err := repo.LoadEvents(filepath.Join(t.TempDir(), "missing.csv"))

	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestLoadEvents_TrimsAndStripsInvisibles(t *testing.T) {
	repo := NewRecordRepository(zap.NewNop())

	// 表头带 BOM，值带空白与 RTL 标记
	path := writeCSV(t, "updates.csv",
		"\uFEFFid,department,event_type,patient_name,timestamp,template\n"+
			" 1 , ER ,admission,\u200Fعلي\u200E,2024-01-01T10:00:00, \n")

	events, err := repo.LoadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "1", ev.ID)
	assert.Equal(t, "ER", ev.Department)
	assert.Equal(t, "admission", ev.EventType)
	assert.Equal(t, "علي", ev.PatientName)
	assert.Equal(t, "2024-01-01T10:00:00", ev.Timestamp)
	assert.Equal(t, "", ev.Template)
	assert.Equal(t, 0, ev.Row)
}

func TestLoadEvents_EventColumnAlias(t *testing.T) {
	repo := NewRecordRepository(zap.NewNop())
	path := writeCSV(t, "updates.csv",
		"department,event,timestamp\nER,admission,2024-01-01T10:00:00\n")

	events, err := repo.LoadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "admission", events[0].EventType)
}

func TestLoadEvents_ExtraColumnsPreserved(t *testing.T) {
	repo := NewRecordRepository(zap.NewNop())
	path := writeCSV(t, "updates.csv",
		"department,event_type,timestamp,room\nER,admission,2024-01-01T10:00:00,12B\n")

	events, err := repo.LoadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "12B", events[0].Extra["room"])
	assert.Equal(t, "12B", events[0].Fields()["room"])
}

func TestLoadOnCall_BooleanDefaults(t *testing.T) {
	repo := NewRecordRepository(zap.NewNop())
	path := writeCSV(t, "oncall.csv",
		"department,staff_id,authorized\n"+
			"ER,s1,\n"+ // 空白 → 默认 true
			"ICU,s2,no\n"+
			"OR,s3,AUTHORIZED\n")

	rows, err := repo.LoadOnCall(path)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.True(t, rows[0].Authorized)
	assert.False(t, rows[1].Authorized)
	assert.True(t, rows[2].Authorized)
	assert.Equal(t, 1, rows[1].Row)
}

func TestLoadOnCall_StaffColumnAlias(t *testing.T) {
	repo := NewRecordRepository(zap.NewNop())
	path := writeCSV(t, "oncall.csv", "department,staff\nER,s9\n")

	rows, err := repo.LoadOnCall(path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "s9", rows[0].StaffID)
}

func TestLoadStaff_IDAliasAndEmailEnabled(t *testing.T) {
	repo := NewRecordRepository(zap.NewNop())
	path := writeCSV(t, "staff.csv",
		"id,name,telegram_chat_id,email,authorized,email_enabled\n"+
			"s1,Dr. X,555,x@h.test,yes,\n"+
			"s2,Dr. Y,,y@h.test,yes,0\n")

	staff, err := repo.LoadStaff(path)
	require.NoError(t, err)
	require.Len(t, staff, 2)

	assert.Equal(t, "s1", staff[0].StaffID)
	assert.True(t, staff[0].EmailEnabled)
	assert.False(t, staff[1].EmailEnabled)
}

func TestLoadEvents_RaggedRowsAccepted(t *testing.T) {
	repo := NewRecordRepository(zap.NewNop())
	path := writeCSV(t, "updates.csv",
		"department,event_type,timestamp\nER,admission\n")

	events, err := repo.LoadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "", events[0].Timestamp)
}

func TestParseBool(t *testing.T) {
	assert.True(t, parseBool("Yes", false))
	assert.True(t, parseBool("on", false))
	assert.True(t, parseBool("authorized", false))
	assert.False(t, parseBool("N", true))
	assert.False(t, parseBool("off", true))
	assert.True(t, parseBool("garbage", true))
	assert.False(t, parseBool("garbage", false))
}
