package kv

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/invites/internal/observability/logger"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// sqlLogger routes gorm output to zap. Statements are logged without bound
// values; keys and invite payloads never reach the log.
type sqlLogger struct {
	log   *zap.Logger
	level gormlogger.LogLevel
}

// NewSQLLogger returns a gorm logger writing to log at warn level: errors
// and slow statements only.
func NewSQLLogger(log *zap.Logger) gormlogger.Interface {
	return &sqlLogger{log: log.Named("sql"), level: gormlogger.Warn}
}

func (l *sqlLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *sqlLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		logger.WithContext(ctx, l.log).Info(msg, zap.Any("data", data))
	}
}

func (l *sqlLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		logger.WithContext(ctx, l.log).Warn(msg, zap.Any("data", data))
	}
}

func (l *sqlLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		logger.WithContext(ctx, l.log).Error(msg, zap.Any("data", data))
	}
}

func (l *sqlLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	slow := elapsed > slowQueryThreshold
	failed := err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound)
	if !failed && !slow && l.level < gormlogger.Info {
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.String("statement", statementKind(sql)),
		zap.String("table", tableFromSQL(sql)),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
	}
	log := logger.WithContext(ctx, l.log)
	switch {
	case failed && l.level >= gormlogger.Error:
		log.Error("kv sql statement failed", append(fields, zap.Error(err))...)
	case slow && l.level >= gormlogger.Warn:
		log.Warn("kv sql statement slow", fields...)
	case l.level >= gormlogger.Info:
		log.Debug("kv sql statement", fields...)
	}
}

// ParamsFilter drops bound values from rendered statements.
func (l *sqlLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func statementKind(sql string) string {
	fields := strings.Fields(strings.ToUpper(sql))
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	return fields[0]
}

func tableFromSQL(sql string) string {
	for _, table := range []string{"kv_entries", "kv_sequence"} {
		if strings.Contains(sql, table) {
			return table
		}
	}
	return ""
}

var _ gormlogger.Interface = (*sqlLogger)(nil)
