package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// SQL routes gorm output through the request-scoped zap logger. Bound values
// are never logged.
type SQL struct {
	level gormlogger.LogLevel
	slow  time.Duration
}

func NewSQL(level gormlogger.LogLevel, slow time.Duration) *SQL {
	return &SQL{level: level, slow: slow}
}

func (l *SQL) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *SQL) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *SQL) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *SQL) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *SQL) message(ctx context.Context, min gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.level < min {
		return
	}
	fields := []zap.Field{zap.String("component", "gorm")}
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	if ce := FromContext(ctx).Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

// Trace logs failed statements at error, slow ones at warn and the rest at
// debug when gorm runs at Info.
func (l *SQL) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	var level zapcore.Level
	slow := l.slow > 0 && time.Since(begin) > l.slow
	switch {
	case l.level <= gormlogger.Silent:
		return
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound):
		level = zapcore.ErrorLevel
	case slow && l.level >= gormlogger.Warn:
		level = zapcore.WarnLevel
	case l.level >= gormlogger.Info:
		level = zapcore.DebugLevel
	default:
		return
	}

	ce := FromContext(ctx).Check(level, "gorm.query")
	if ce == nil {
		return
	}
	sql, rows := fc()
	stmt := describe(sql)
	fields := []zap.Field{
		zap.String("component", "gorm"),
		zap.String("operation", stmt.operation),
		zap.String("table", stmt.table),
		zap.Bool("row_lock", stmt.locking),
		zap.Int64("duration_ms", sinceMillis(begin)),
		zap.String("sql", strings.TrimSpace(sql)),
	}
	if slow {
		fields = append(fields, zap.Bool("slow", true))
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	ce.Write(fields...)
}

func (l *SQL) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

type statement struct {
	operation string
	table     string
	locking   bool
}

// describe pulls the verb, the first table and whether the statement takes
// row locks (capacity and compensation claims do).
func describe(sql string) statement {
	out := statement{operation: "UNKNOWN"}
	tokens := strings.Fields(sql)
	for i, raw := range tokens {
		token := strings.ToUpper(strings.Trim(raw, "();"))
		switch token {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			if out.operation == "UNKNOWN" {
				out.operation = token
			}
		}
		switch token {
		case "FROM", "INTO", "UPDATE", "JOIN":
			if out.table == "" && i+1 < len(tokens) {
				name := strings.Trim(tokens[i+1], "();`\"")
				if name != "" && !strings.EqualFold(name, "SELECT") {
					out.table = strings.ToLower(name)
				}
			}
		case "FOR":
			if i+1 < len(tokens) && strings.EqualFold(tokens[i+1], "UPDATE") {
				out.locking = true
			}
		}
	}
	return out
}

var _ gormlogger.Interface = (*SQL)(nil)
