package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestDescribe(t *testing.T) {
	cases := []struct {
		sql  string
		want statement
	}{
		{"SELECT id FROM events WHERE id = ? FOR UPDATE", statement{"SELECT", "events", true}},
		{"INSERT INTO registrations (id) VALUES (?)", statement{"INSERT", "registrations", false}},
		{"UPDATE payments SET status = ?", statement{"UPDATE", "payments", false}},
		{"SELECT * FROM payment_compensations FOR UPDATE SKIP LOCKED", statement{"SELECT", "payment_compensations", true}},
		{"WITH x AS (SELECT 1) DELETE FROM audit_logs", statement{"SELECT", "audit_logs", false}},
		{"", statement{"UNKNOWN", "", false}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, describe(tc.sql), tc.sql)
	}
}

func TestTraceLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	l := NewSQL(gormlogger.Warn, 50*time.Millisecond)
	query := func() (string, int64) { return "UPDATE events SET reserved = reserved + 1", 1 }

	l.Trace(context.Background(), time.Now(), query, nil)
	l.Trace(context.Background(), time.Now().Add(-time.Second), query, nil)
	l.Trace(context.Background(), time.Now(), query, errors.New("deadlock"))
	l.Trace(context.Background(), time.Now(), query, gormlogger.ErrRecordNotFound)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, true, entries[0].ContextMap()["slow"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "events", entries[1].ContextMap()["table"])

	NewSQL(gormlogger.Silent, 0).Trace(context.Background(), time.Now(), query, errors.New("ignored"))
	assert.Len(t, logs.All(), 2)
}
