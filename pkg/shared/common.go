package shared

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"github.com/scan-io-git/warden/internal/config"
)

const PluginTypeFrame string = "frame"

var HandshakeConfig = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "WARDEN",
	MagicCookieValue: "3c0f1e9b7a52d4486f21b0e6d9ac7f35e8b14d02",
}

var PluginMap = map[string]plugin.Plugin{
	PluginTypeFrame: &FramePlugin{},
}

// PluginPath returns the binary of a frame plugin inside the plugins folder.
func PluginPath(cfg *config.Config, pluginName string) (string, error) {
	pluginPath := filepath.Join(config.GetPluginsFolder(cfg), pluginName)
	info, err := os.Stat(pluginPath)
	if err != nil {
		return "", fmt.Errorf("plugin %q is not installed: %w", pluginName, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("plugin path %q is a directory", pluginPath)
	}
	return pluginPath, nil
}

// StartPlugin launches a plugin process and dispenses its frame implementation.
// The caller owns the returned client and must Kill it.
func StartPlugin(cfg *config.Config, logger hclog.Logger, pluginName string) (*plugin.Client, Frame, error) {
	pluginPath, err := PluginPath(cfg, pluginName)
	if err != nil {
		return nil, nil, err
	}

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins:         PluginMap,
		Cmd:             exec.Command(pluginPath),
		Logger:          logger,
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("failed to connect to plugin %q: %w", pluginName, err)
	}

	raw, err := rpcClient.Dispense(PluginTypeFrame)
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("failed to dispense plugin %q: %w", pluginName, err)
	}

	impl, ok := raw.(Frame)
	if !ok {
		client.Kill()
		return nil, nil, fmt.Errorf("plugin %q does not implement the frame protocol", pluginName)
	}
	return client, impl, nil
}

// ForEachWithBoundedGoroutines calls f for every value with at most limit calls in flight.
func ForEachWithBoundedGoroutines[T any](limit int, values []T, f func(i int, value T)) {
	if limit < 1 {
		limit = 1
	}
	guard := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i, value := range values {
		guard <- struct{}{} // would block if guard channel is already filled
		wg.Add(1)
		go func(i int, value T) {
			defer wg.Done()
			defer func() { <-guard }()
			f(i, value)
		}(i, value)
	}
	wg.Wait()
}
