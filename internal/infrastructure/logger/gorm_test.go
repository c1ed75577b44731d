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

func statement(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_Trace(t *testing.T) {
	ctx, _ := WithTenantID(context.Background(), zap.NewNop(), "tenant-a")
	const sql = `UPDATE "products" SET "virtual_stock"=3 WHERE "version" = 4`

	tests := []struct {
		name    string
		level   gormlogger.LogLevel
		begin   time.Time
		err     error
		wantMsg string
		wantLvl zapcore.Level
	}{
		{"error", gormlogger.Error, time.Now(), errors.New("deadlock detected"), "SQL error", zapcore.ErrorLevel},
		{"not found skipped", gormlogger.Error, time.Now(), gormlogger.ErrRecordNotFound, "", 0},
		{"slow", gormlogger.Warn, time.Now().Add(-time.Second), nil, "Slow SQL", zapcore.WarnLevel},
		{"fast at warn", gormlogger.Warn, time.Now(), nil, "", 0},
		{"fast at info", gormlogger.Info, time.Now(), nil, "SQL", zapcore.DebugLevel},
		{"silent", gormlogger.Silent, time.Now(), errors.New("boom"), "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, recorded := observer.New(zapcore.DebugLevel)
			l := NewGormLogger(zap.New(core), tt.level)

			l.Trace(ctx, tt.begin, statement(sql, 1), tt.err)

			if tt.wantMsg == "" {
				assert.Zero(t, recorded.Len())
				return
			}
			entries := recorded.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.wantMsg, entries[0].Message)
			assert.Equal(t, tt.wantLvl, entries[0].Level)
			fields := entries[0].ContextMap()
			assert.Equal(t, sql, fields["sql"])
			assert.Equal(t, "tenant-a", fields["tenant_id"])
		})
	}
}

func TestGormLogger_RecordNotFoundOption(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(zap.New(core), gormlogger.Error, WithRecordNotFound(true))

	l.Trace(context.Background(), time.Now(), statement("SELECT 1", 0), gormlogger.ErrRecordNotFound)
	assert.Equal(t, 1, recorded.Len())
}

func TestGormLogger_LogModeReturnsCopy(t *testing.T) {
	l := NewGormLogger(zap.NewNop(), gormlogger.Warn, WithSlowThreshold(time.Second))
	quiet := l.LogMode(gormlogger.Silent).(*GormLogger)

	assert.Equal(t, gormlogger.Silent, quiet.level)
	assert.Equal(t, gormlogger.Warn, l.level)
	assert.Equal(t, time.Second, quiet.slowThreshold)
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("info"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("warn"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("ERROR"))
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("verbose"))
}
