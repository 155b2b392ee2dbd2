package scan

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/warden/internal/config"
	"github.com/scan-io-git/warden/internal/frames"
	"github.com/scan-io-git/warden/internal/pipeline"
	"github.com/scan-io-git/warden/internal/sarif"
	"github.com/scan-io-git/warden/pkg/shared"
)

// pluginStarter launches a plugin binary. It is replaced in tests.
var pluginStarter = func(cfg *config.Config, lg hclog.Logger, name string) (shared.Frame, pipeline.Closer, error) {
	client, impl, err := shared.StartPlugin(cfg, lg, name)
	if err != nil {
		return nil, nil, err
	}
	return impl, pipeline.CloserFunc(func() error {
		client.Kill()
		return nil
	}), nil
}

// buildRegistry registers the built-in frames and one plugin frame per
// configured frame with a plugin binary. Started plugins are returned as closers
// even when a later plugin fails.
func buildRegistry(cfg *config.Config, lg hclog.Logger) (*frames.Registry, map[string]pipeline.Closer, error) {
	registry := frames.NewRegistry()
	registry.Register(sarif.NewImportFrame(lg.Named("sarif")))

	closers := make(map[string]pipeline.Closer)
	ids := make([]string, 0, len(cfg.Frames))
	for id := range cfg.Frames {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		fc := cfg.Frames[id]
		if fc.Plugin == "" || (fc.Enabled != nil && !*fc.Enabled) {
			continue
		}
		impl, closer, err := pluginStarter(cfg, lg.Named("plugin."+fc.Plugin), fc.Plugin)
		if err != nil {
			return registry, closers, fmt.Errorf("frame %q: %w", id, err)
		}
		closers["plugin "+fc.Plugin] = closer

		frame, err := frames.NewPluginFrame(impl)
		if err != nil {
			return registry, closers, fmt.Errorf("frame %q: %w", id, err)
		}
		if frame.ID() != id {
			return registry, closers, fmt.Errorf("frame %q: plugin %q describes itself as %q", id, fc.Plugin, frame.ID())
		}
		registry.Register(frame)
		lg.Debug("plugin frame registered", "frame", id, "plugin", fc.Plugin)
	}
	return registry, closers, nil
}
