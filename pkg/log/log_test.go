package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer

	fallback := slog.New(slog.NewTextHandler(&buf, nil))
	assert.Same(t, fallback, FromContext(context.Background(), fallback))

	scoped := fallback.With("execution_id", "exec-1")
	ctx := WithLogger(context.Background(), scoped)

	FromContext(ctx, fallback).Info("step")
	assert.Contains(t, buf.String(), "execution_id=exec-1")
}

func TestNewHandler(t *testing.T) {
	var buf bytes.Buffer

	slog.New(NewHandler(&buf, "info", "JSON")).Info("started", "module", "scheduler")
	assert.Contains(t, buf.String(), `"module":"scheduler"`)

	buf.Reset()
	slog.New(NewHandler(&buf, "warn", "text")).Info("hidden")
	assert.Empty(t, buf.String())
}
