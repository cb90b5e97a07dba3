package log

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		err  bool
	}{
		{in: "debug", want: LevelDebug},
		{in: "INFO", want: LevelInfo},
		{in: "", want: LevelInfo},
		{in: "warning", want: LevelWarn},
		{in: "error", want: LevelError},
		{in: "loud", want: LevelInfo, err: true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestLevelText(t *testing.T) {
	var l Level
	require.NoError(t, l.UnmarshalText([]byte("warn")))
	assert.Equal(t, LevelWarn, l)
	out, err := l.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "warn", string(out))
}

func TestNopLogger(t *testing.T) {
	l := NewNop()
	assert.False(t, l.Enabled(LevelInfo))

	scoped := l.With(String("component", "test"), Error(errors.New("boom")))
	scoped.Info("ignored", Int("n", 1), Bool("ok", true))
	scoped.WithContext(ContextWithRequestID(context.Background(), "r-1")).Debug("ignored")
}
