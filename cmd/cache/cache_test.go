package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/warden/internal/config"
)

func TestClearCommand(t *testing.T) {
	cfg := &config.Config{}
	cfg.Cache.Path = filepath.Join(t.TempDir(), "cache", "findings_cache.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Cache.Path), 0o755))
	require.NoError(t, os.WriteFile(cfg.Cache.Path, []byte(`{"entries":{}}`), 0o644))
	Init(cfg)

	var out bytes.Buffer
	clearCmd.SetOut(&out)
	require.NoError(t, clearCmd.RunE(clearCmd, nil))
	assert.NoFileExists(t, cfg.Cache.Path)
	assert.Contains(t, out.String(), "Findings cache cleared")

	require.NoError(t, clearCmd.RunE(clearCmd, nil), "clearing twice is fine")
}
