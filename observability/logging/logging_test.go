package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupEmitsJSONWithServiceAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := Setup("feeshared", "test", Options{Level: slog.LevelInfo, Stdout: &buf})
	defer closer.Close()

	logger.Debug("hidden")
	logger.Info("hello", slog.String("pool", "0xabc"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "hello", entry["message"])
	require.Equal(t, "INFO", entry["severity"])
	require.Equal(t, "feeshared", entry["service"])
	require.Equal(t, "test", entry["env"])
	require.Contains(t, entry, "timestamp")
}

func TestSetupWritesRotatingFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "feeshared.log")
	logger, closer := Setup("feeshared", "", Options{Level: slog.LevelDebug, File: path, MaxSizeMB: 1, Stdout: &buf, Console: true})

	logger.Debug("to both sinks")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"message":"to both sinks"`)
	require.Contains(t, buf.String(), "to both sinks")
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("warn")
	require.NoError(t, err)
	require.Equal(t, slog.LevelWarn, level)

	_, err = ParseLevel("loud")
	require.Error(t, err)
}

func TestRedactAttr(t *testing.T) {
	require.Equal(t, "Bearer "+RedactedValue, redactAttr(nil, slog.String("authorization", "Bearer abc")).Value.String())
	require.Equal(t, RedactedValue, redactAttr(nil, slog.String("Authorization", "opaque")).Value.String())
	require.Equal(t, "0xabc", redactAttr(nil, slog.String("pool", "0xabc")).Value.String())
	require.Equal(t, RedactedValue, redactAttr(nil, slog.String("jwt_secret", "s3cret")).Value.String())
	require.Equal(t, "", MaskValue(""))
}

func TestMaskDSN(t *testing.T) {
	masked := MaskDSN("postgres://feeshare:hunter2@db:5432/journal?sslmode=disable")
	require.NotContains(t, masked, "hunter2")
	require.Contains(t, masked, "feeshare")
	require.Contains(t, masked, "db:5432/journal")

	require.Equal(t, "host=db user=feeshare password="+RedactedValue+" dbname=journal",
		MaskDSN("host=db user=feeshare password=hunter2 dbname=journal"))
	require.Equal(t, "file:journal.db?cache=shared", MaskDSN("file:journal.db?cache=shared"))
}

func TestSetupRedactsSensitiveAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := Setup("feeshared", "test", Options{Level: slog.LevelInfo, Stdout: &buf})
	defer closer.Close()

	logger.Info("journal opened",
		slog.String("dsn", "postgres://feeshare:hunter2@db/journal"),
		slog.String("account", "fs1qqqq"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	require.NotContains(t, entry["dsn"], "hunter2")
	require.Equal(t, "fs1qqqq", entry["account"])
}
