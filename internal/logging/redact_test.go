package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func encode(t *testing.T, enc zapcore.Encoder, msg string, fields ...zapcore.Field) string {
	t.Helper()
	buf, err := enc.EncodeEntry(zapcore.Entry{Message: msg, Time: time.Unix(0, 0)}, fields)
	require.NoError(t, err)
	defer buf.Free()
	return buf.String()
}

func TestRedactingEncoder(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	t.Run("sensitive key", func(t *testing.T) {
		out := encode(t, enc, "calling provider", zap.String("api_key", "sk-live-abcdef"))
		assert.NotContains(t, out, "sk-live-abcdef")
		assert.Contains(t, out, `"api_key":"[REDACTED]"`)
	})

	t.Run("value pattern", func(t *testing.T) {
		out := encode(t, enc, "header", zap.String("auth", "Bearer abc.def.ghi"))
		assert.NotContains(t, out, "abc.def.ghi")
	})

	t.Run("message pattern", func(t *testing.T) {
		out := encode(t, enc, "got api_key=hunter2 from env")
		assert.NotContains(t, out, "hunter2")
	})

	t.Run("ordinary fields untouched", func(t *testing.T) {
		out := encode(t, enc, "cloned", zap.String("repo", "flask"))
		assert.Contains(t, out, `"repo":"flask"`)
	})

	t.Run("fields added via With", func(t *testing.T) {
		clone := enc.Clone()
		clone.AddString("token", "ghp_secret")
		out := encode(t, clone, "with")
		assert.NotContains(t, out, "ghp_secret")
	})
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: false})
	require.NoError(t, err)

	out := encode(t, enc, "plain", zap.String("token", "visible"))
	assert.Contains(t, out, "visible")
}

func TestNewRedactingEncoder_InvalidPattern(t *testing.T) {
	_, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: true, Patterns: []string{"("}})
	assert.Error(t, err)
}

func TestSecretField(t *testing.T) {
	f := RedactedString("key", "abcd")
	assert.Equal(t, "[REDACTED:4]", f.String)
}
