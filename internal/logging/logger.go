// Package logging wraps zap with the structured fields every core
// component needs: tenant, run, and pipeline stage. It intentionally
// drops HTTP-request and alerting helpers this repo has no collaborator
// for.
package logging

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger embeds *zap.Logger and carries service-scoped fields so callers
// never have to re-pass service/version/environment on every call.
type Logger struct {
	*zap.Logger
	serviceName string
}

// Config controls logger construction. Zero value is valid; New fills in
// production defaults.
type Config struct {
	Level       string // debug|info|warn|error
	Environment string
	Format      string // "json" or "console"
}

// New builds a Logger for serviceName. Defaults to info level, JSON
// encoding, and the IAROS_ENV environment variable (falling back to
// "development").
func New(serviceName string, opts ...Config) *Logger {
	cfg := Config{
		Level:       "info",
		Environment: getEnv("IAROS_ENV", "development"),
		Format:      "json",
	}
	if len(opts) > 0 {
		if opts[0].Level != "" {
			cfg.Level = opts[0].Level
		}
		if opts[0].Environment != "" {
			cfg.Environment = opts[0].Environment
		}
		if opts[0].Format != "" {
			cfg.Format = opts[0].Format
		}
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
	base := zap.New(core, zap.AddCaller()).With(
		zap.String("service", serviceName),
		zap.String("environment", cfg.Environment),
	)

	return &Logger{Logger: base, serviceName: serviceName}
}

// WithTenant scopes all subsequent log lines to a tenant.
func (l *Logger) WithTenant(tenantID int64) *Logger {
	return &Logger{Logger: l.Logger.With(zap.Int64("tenant_id", tenantID)), serviceName: l.serviceName}
}

// WithRun scopes all subsequent log lines to a reco run.
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("run_id", runID)), serviceName: l.serviceName}
}

// PipelineStageLogger records a completed ingest/load/derive stage.
func (l *Logger) PipelineStageLogger(stage string, duration time.Duration, rows int) {
	l.Info("pipeline stage completed",
		zap.String("stage", stage),
		zap.Duration("duration", duration),
		zap.Int("rows", rows),
	)
}

// RuleViolationLogger records a single audit rule hit; rule violations
// never abort a run by themselves.
func (l *Logger) RuleViolationLogger(ruleCode, severity, customerCode string) {
	level := l.Info
	if severity == "ERROR" {
		level = l.Warn
	}
	level("audit rule triggered",
		zap.String("rule_code", ruleCode),
		zap.String("severity", severity),
		zap.String("customer_code", customerCode),
	)
}

// StorageQueryLogger logs a single store operation's timing.
func (l *Logger) StorageQueryLogger(op string, duration time.Duration, rowsAffected int64) {
	l.Debug("store operation",
		zap.String("op", op),
		zap.Duration("duration", duration),
		zap.Int64("rows_affected", rowsAffected),
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
