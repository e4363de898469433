package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_ContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := Logger(&buf, true, slog.LevelInfo)
	ctx := AppendCtx(context.Background(), slog.String("stream", "abc"))
	ctx = AppendCtx(ctx, slog.Int("segment", 3))

	log.DebugContext(ctx, "hidden")
	assert.Zero(t, buf.Len())

	log.With(slog.String("cmd", "decode")).InfoContext(ctx, "decoded", slog.Int("packets", 12))
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "decoded", rec["msg"])
	assert.Equal(t, "abc", rec["stream"])
	assert.Equal(t, float64(3), rec["segment"])
	assert.Equal(t, float64(12), rec["packets"])
	assert.Equal(t, "decode", rec["cmd"])
}

func TestLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	log := Logger(&buf, false, slog.LevelDebug)
	log.WithGroup("bpe").Debug("truncated", slog.Int("streams", 2))
	assert.Contains(t, buf.String(), "bpe.streams=2")
	assert.Contains(t, buf.String(), "level=DEBUG")
}

func TestRotatingWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.log")
	w := RotatingWriter(path)
	log := Logger(w, true, slog.LevelInfo)
	log.Info("hello")
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
