package errutil

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlersLogAndReturn(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitializeGlobalErrorHandler(slog.New(slog.NewTextHandler(&buf, nil))))
	t.Cleanup(func() {
		mu.Lock()
		logger = nil
		mu.Unlock()
	})

	boom := errors.New("boom")

	err := HandleDiscordError("send message", func() error { return boom })
	assert.Same(t, boom, err)
	assert.Contains(t, buf.String(), "operation=\"send message\"")
	assert.Contains(t, buf.String(), "category=discord")

	err = HandleConfigError("write", "/tmp/settings.yaml", func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "config write /tmp/settings.yaml")

	err = HandleDatabaseError("insert", func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, buf.String(), "category=database")

	assert.NoError(t, HandleDiscordError("ok", func() error { return nil }))
	assert.Error(t, HandleDiscordError("nil", nil))
	assert.Error(t, InitializeGlobalErrorHandler(nil))
}
