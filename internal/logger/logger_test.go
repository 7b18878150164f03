package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	lg := InitWriter(&buf, "test-service", "debug", "json")
	lg.Info().Str("k", "v").Msg("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "test-service", line["service"])
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "v", line["k"])
}

func TestInitWriter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	lg := InitWriter(&buf, "svc", "warn", "json")
	lg.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	lg.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestInitWriter_BadLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	lg := InitWriter(&buf, "svc", "loud", "json")
	lg.Debug().Msg("dropped")
	lg.Info().Msg("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestSessionID_RoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", SessionID(ctx))

	ctx = WithSessionID(ctx, "sess-123")
	assert.Equal(t, "sess-123", SessionID(ctx))
}

func TestGenerateSessionID(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	id := GenerateSessionID("127.0.0.1:5128", ts)

	assert.True(t, strings.HasPrefix(id, "127.0.0.1:5128-"))
	assert.Contains(t, id, "123456789")
}

func TestCtx_AddsSessionField(t *testing.T) {
	var buf bytes.Buffer
	base := InitWriter(&buf, "svc", "info", "json")

	withSess := Ctx(WithSessionID(context.Background(), "abc"), base)
	withSess.Info().Msg("m")
	assert.Contains(t, buf.String(), `"session_id":"abc"`)

	buf.Reset()
	noSess := Ctx(context.Background(), base)
	noSess.Info().Msg("m")
	assert.NotContains(t, buf.String(), "session_id")
}
