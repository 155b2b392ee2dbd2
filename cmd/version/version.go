package version

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scan-io-git/warden/internal/config"
)

var (
	AppConfig   *config.Config
	CoreVersion = "unknown"
	BuildTime   = "unknown"
)

// Versions describes the running binary.
type Versions struct {
	Version       string `json:"version"`
	GolangVersion string `json:"golang_version"`
	BuildTime     string `json:"build_time"`
}

// CoreVersions holds version information for the core application and installed frame plugins.
type CoreVersions struct {
	Versions    Versions              `json:"versions"`
	PluginsMeta map[string]PluginMeta `json:"plugins_meta"`
}

// PluginMeta is read from <plugin>.version next to a plugin binary.
type PluginMeta struct {
	Version string `json:"version"`
	FrameID string `json:"frame_id"`
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

// NewVersionCmd creates a new cobra.Command for the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:                   "version",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "Print the version number of warden and its frame plugins",
		Run: func(cmd *cobra.Command, args []string) {
			v := CoreVersions{
				Versions: Versions{
					Version:       CoreVersion,
					GolangVersion: runtime.Version(),
					BuildTime:     BuildTime,
				},
				PluginsMeta: getPluginVersions(config.GetPluginsFolder(AppConfig)),
			}
			printVersionInfo(cmd, &v)
		},
	}
}

func readVersionFile(path string) PluginMeta {
	var pm PluginMeta
	data, err := os.ReadFile(path)
	if err != nil {
		return PluginMeta{Version: "unknown", FrameID: "unknown"}
	}
	if err := json.Unmarshal(data, &pm); err != nil {
		return PluginMeta{Version: "unknown", FrameID: "unknown"}
	}
	return pm
}

// getPluginVersions lists plugin binaries and their version files.
func getPluginVersions(pluginsDir string) map[string]PluginMeta {
	pluginsMeta := make(map[string]PluginMeta)
	entries, err := os.ReadDir(pluginsDir)
	if err != nil {
		return pluginsMeta
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, ".version") {
			continue
		}
		pluginsMeta[name] = readVersionFile(filepath.Join(pluginsDir, name+".version"))
	}
	return pluginsMeta
}

func printVersionInfo(cmd *cobra.Command, versions *CoreVersions) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Core Version: v%s\n", versions.Versions.Version)
	if len(versions.PluginsMeta) > 0 {
		fmt.Fprintln(out, "Frame Plugins:")
		names := make([]string, 0, len(versions.PluginsMeta))
		for name := range versions.PluginsMeta {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			meta := versions.PluginsMeta[name]
			fmt.Fprintf(out, "  %s: v%s (Frame: %s)\n", name, meta.Version, meta.FrameID)
		}
	}
	fmt.Fprintf(out, "Go Version: %s\n", versions.Versions.GolangVersion)
	fmt.Fprintf(out, "Build Time: %s\n", versions.Versions.BuildTime)
}
