package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_JSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Out: &buf})

	Info().Msg("hidden")
	Warn().Str("id", "1").Msg("shown")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "1", entry["id"])
	assert.Contains(t, entry, "time")
}

func TestInit_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "loud", Out: &buf})
	Debug().Msg("hidden")
	Info().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestInit_ErrorStack(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Out: &buf})
	Error().Stack().Err(errors.New("boom")).Msg("failed")
	assert.Contains(t, buf.String(), `"stack":[`)
}

func TestCtx(t *testing.T) {
	var global, scoped bytes.Buffer
	Init(Config{Out: &global})

	Ctx(context.Background()).Info().Msg("global")
	assert.Contains(t, global.String(), "global")

	ctx := WithContext(context.Background(), Logger.Output(&scoped).With().Str("request", "r1").Logger())
	Ctx(ctx).Info().Msg("scoped")
	assert.Contains(t, scoped.String(), `"request":"r1"`)
	assert.NotContains(t, global.String(), "scoped")
}
