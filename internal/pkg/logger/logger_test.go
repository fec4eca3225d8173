package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"john.doe@example.com", "jo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"not-an-email", "***@***"},
		{"a@b@c.com", "***@***"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RedactEmail(tt.in), tt.in)
	}
}

func TestFieldsRedaction(t *testing.T) {
	fields := Fields(true,
		"email", "jane@example.com",
		"note", "sent to bob.smith@example.org today",
		"count", 3,
		"err", errors.New("bounce for carol@example.net"),
		"dangling",
	)
	require.Len(t, fields, 4)
	assert.Equal(t, "ja***@example.com", fields[0].String)
	assert.Equal(t, "sent to bo***@example.org today", fields[1].String)
	assert.Equal(t, "bounce for ca***@example.net", fields[3].String)

	plain := Fields(false, "email", "jane@example.com")
	assert.Equal(t, "jane@example.com", plain[0].String)
}

func TestWriteRespectsLevel(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	Use(zap.New(core))
	t.Cleanup(Discard)

	Info("ignored")
	Warn("kept", "email", "jane@example.com")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0].Message)
	assert.Equal(t, "ja***@example.com", entries[0].ContextMap()["email"])
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, l)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
