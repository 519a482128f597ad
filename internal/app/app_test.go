package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/law-makers/marketscrape/internal/config"
)

func restoreLogger(t *testing.T) {
	prev, level := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(level)
	})
}

func TestSetupLogging_JSON(t *testing.T) {
	restoreLogger(t)

	var buf bytes.Buffer
	_, closer, err := SetupLogging(config.LogConfig{Level: "warn", JSON: true}, &buf)
	require.NoError(t, err)
	assert.Nil(t, closer)

	log.Info().Msg("hidden")
	log.Warn().Str("run_id", "abc").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "abc", entry["run_id"])
}

func TestSetupLogging_File(t *testing.T) {
	restoreLogger(t)

	path := filepath.Join(t.TempDir(), "logs", "run.log")
	var console bytes.Buffer
	_, closer, err := SetupLogging(config.LogConfig{Level: "info", File: path, MaxSizeMB: 1}, &console)
	require.NoError(t, err)
	require.NotNil(t, closer)

	log.Info().Int("page", 3).Msg("Page extracted")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"page":3`)
	assert.Contains(t, console.String(), "Page extracted")
}

func TestNew_WiresDependencies(t *testing.T) {
	restoreLogger(t)

	cfg := config.Default()
	cfg.Log.Level = "error"
	cfg.Output.Dir = t.TempDir()
	cfg.Network.Proxies = []string{"http://127.0.0.1:3128"}
	cfg.Network.Headers = []string{"referer: https://x.test/"}
	cfg.Network.RateLimit = 2
	cfg.MetricsAddr = "127.0.0.1:0"

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, a.Proxies.Len())
	assert.Equal(t, map[string]string{"Referer": "https://x.test/"}, a.Headers)
	assert.NotNil(t, a.Limiter)
	assert.NotNil(t, a.Browser)
	require.NotNil(t, a.metricsServer)

	sink, err := a.Sink()
	require.NoError(t, err)
	assert.Equal(t, cfg.Output.Dir, sink.Dir)
	assert.NotNil(t, a.Trending())
	assert.NotNil(t, a.Assets())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, a.Close(ctx))
}

func TestNew_RejectsBadHeader(t *testing.T) {
	restoreLogger(t)

	cfg := config.Default()
	cfg.Log.Level = "error"
	cfg.Network.Headers = []string{"broken"}
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestServeMetrics(t *testing.T) {
	restoreLogger(t)

	cfg := config.Default()
	cfg.Log.Level = "error"
	cfg.MetricsAddr = "127.0.0.1:0"
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close(context.Background())

	a.Metrics.IncSessions()

	resp, err := http.Get("http://" + a.MetricsAddr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "marketscrape_sessions_opened_total 1")
}
