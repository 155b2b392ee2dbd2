package version

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/warden/internal/config"
)

func TestGetPluginVersions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "semgrep"), []byte("bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "semgrep.version"), []byte(`{"version":"1.2.0","frame_id":"semgrep"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bandit"), []byte("bin"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "cache"), 0o755))

	meta := getPluginVersions(dir)
	assert.Equal(t, map[string]PluginMeta{
		"semgrep": {Version: "1.2.0", FrameID: "semgrep"},
		"bandit":  {Version: "unknown", FrameID: "unknown"},
	}, meta)

	assert.Empty(t, getPluginVersions(filepath.Join(dir, "absent")))
}

func TestVersionCommandOutput(t *testing.T) {
	cfg := &config.Config{}
	cfg.Warden.PluginsFolder = t.TempDir()
	Init(cfg)

	cmd := NewVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "Core Version: vunknown")
	assert.Contains(t, out.String(), "Go Version: go")
	assert.NotContains(t, out.String(), "Frame Plugins")
}
