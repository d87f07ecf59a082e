package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefault_NilReturnsDiscard(t *testing.T) {
	logger := Default(nil)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelError))
}

func TestDefault_KeepsGivenLogger(t *testing.T) {
	given := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Same(t, given, Default(given))
}

func TestNew_DebugLevel(t *testing.T) {
	var buf bytes.Buffer

	New(&buf, false).Debug("hidden")
	assert.Empty(t, buf.String())

	New(&buf, true).Debug("shown", "k", "v")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "k=v")
}
