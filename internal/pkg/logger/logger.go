// Package logger is the process-wide structured logger. Calls take a message
// followed by alternating key/value pairs; values under e-mail-ish keys and
// any embedded addresses are masked unless redaction is switched off.
package logger

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu        sync.RWMutex
	level     = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base, _   = build(level)
	redactPII = true
)

func build(atom zap.AtomicLevel) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = atom
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop(), err
	}
	return l, nil
}

// Init replaces the default logger. Level is one of debug, info, warn, error.
func Init(lvl string, redact bool) error {
	zl, err := ParseLevel(lvl)
	if err != nil {
		return err
	}
	atom := zap.NewAtomicLevelAt(zl)
	l, err := build(atom)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	base = l
	level = atom
	redactPII = redact
	return nil
}

// Use installs an already-built zap logger, mostly for tests.
func Use(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
}

// Discard silences all output.
func Discard() { Use(zap.NewNop()) }

// ParseLevel maps a config string onto a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// SetLevel changes the minimum level of the current logger.
func SetLevel(s string) error {
	zl, err := ParseLevel(s)
	if err != nil {
		return err
	}
	mu.RLock()
	level.SetLevel(zl)
	mu.RUnlock()
	return nil
}

// SetRedactPII enables or disables PII redaction.
func SetRedactPII(r bool) {
	mu.Lock()
	redactPII = r
	mu.Unlock()
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

func Debug(msg string, kv ...any) { write(zapcore.DebugLevel, msg, kv) }
func Info(msg string, kv ...any)  { write(zapcore.InfoLevel, msg, kv) }
func Warn(msg string, kv ...any)  { write(zapcore.WarnLevel, msg, kv) }
func Error(msg string, kv ...any) { write(zapcore.ErrorLevel, msg, kv) }

func write(lvl zapcore.Level, msg string, kv []any) {
	mu.RLock()
	l, redact := base, redactPII
	mu.RUnlock()

	ce := l.Check(lvl, msg)
	if ce == nil {
		return
	}
	ce.Write(Fields(redact, kv...)...)
}

// Fields turns alternating key/value pairs into zap fields. A trailing key
// without a value is dropped.
func Fields(redact bool, kv ...any) []zap.Field {
	fields := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		switch v := kv[i+1].(type) {
		case error:
			s := v.Error()
			if redact {
				s = redactValue(key, s)
			}
			fields = append(fields, zap.String(key, s))
		case string:
			if redact {
				v = redactValue(key, v)
			}
			fields = append(fields, zap.String(key, v))
		case int, int32, int64, uint, uint32, uint64, float32, float64, bool:
			fields = append(fields, zap.Any(key, v))
		default:
			s := fmt.Sprintf("%v", v)
			if redact {
				s = redactValue(key, s)
			}
			fields = append(fields, zap.String(key, s))
		}
	}
	return fields
}

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redactValue(key, val string) string {
	k := strings.ToLower(key)
	if strings.Contains(k, "email") || strings.Contains(k, "recipient") {
		return RedactEmail(val)
	}
	return emailPattern.ReplaceAllStringFunc(val, RedactEmail)
}
