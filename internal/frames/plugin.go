package frames

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/scan-io-git/warden/pkg/shared"
)

// PluginFrame adapts an out-of-process plugin to the Frame contract.
// net/rpc calls cannot be interrupted, so cancellation is observed between calls
// and a late reply is dropped.
type PluginFrame struct {
	impl shared.Frame
	desc shared.FrameDescription

	mu       sync.Mutex
	settings map[string]interface{}
	project  ProjectContext
	ready    bool
}

// NewPluginFrame asks the plugin to describe itself.
func NewPluginFrame(impl shared.Frame) (*PluginFrame, error) {
	desc, err := impl.Describe()
	if err != nil {
		return nil, fmt.Errorf("failed to describe plugin frame: %w", err)
	}
	if desc.ID == "" {
		return nil, fmt.Errorf("plugin frame has no id")
	}
	if desc.Name == "" {
		desc.Name = desc.ID
	}
	return &PluginFrame{impl: impl, desc: desc}, nil
}

func (p *PluginFrame) ID() string   { return p.desc.ID }
func (p *PluginFrame) Name() string { return p.desc.Name }

func (p *PluginFrame) Spec() Spec {
	lane, _ := ParseLane(p.desc.MinimumTriageLane)
	if p.desc.MinimumTriageLane == "" {
		lane = FastLane
	}
	return Spec{
		IsBlocker:         p.desc.IsBlocker,
		MinimumTriageLane: lane,
		RequiresFrames:    p.desc.RequiresFrames,
		RequiresConfig:    p.desc.RequiresConfig,
		RequiresContext:   p.desc.RequiresContext,
		Priority:          p.desc.Priority,
		Cacheable:         true,
	}
}

func (p *PluginFrame) Configure(settings map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings = settings
	p.ready = false
	return nil
}

func (p *PluginFrame) SetProjectContext(pc ProjectContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.project = pc
	p.ready = false
}

func (p *PluginFrame) setup() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ready {
		return nil
	}
	raw, err := json.Marshal(jsonCompatible(p.settings))
	if err != nil {
		return fmt.Errorf("failed to encode settings of %q: %w", p.desc.ID, err)
	}
	ok, err := p.impl.Setup(shared.FrameSetupRequest{Root: p.project.Root, Settings: raw, CIMode: p.project.CIMode})
	if err != nil {
		return fmt.Errorf("plugin %q setup failed: %w", p.desc.ID, err)
	}
	if !ok {
		return fmt.Errorf("plugin %q rejected its settings", p.desc.ID)
	}
	p.ready = true
	return nil
}

func (p *PluginFrame) Execute(ctx context.Context, file *CodeFile) (FrameResult, error) {
	results, err := p.scan(ctx, []*CodeFile{file})
	if err != nil {
		return FrameResult{}, err
	}
	return results[0], nil
}

// ExecuteBatch is used only when the plugin declared batch support.
func (p *PluginFrame) ExecuteBatch(ctx context.Context, files []*CodeFile) ([]FrameResult, error) {
	if !p.desc.Batch {
		out := make([]FrameResult, 0, len(files))
		for _, f := range files {
			res, err := p.Execute(ctx, f)
			if err != nil {
				return out, err
			}
			out = append(out, res)
		}
		return out, nil
	}
	return p.scan(ctx, files)
}

func (p *PluginFrame) scan(ctx context.Context, files []*CodeFile) ([]FrameResult, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if err := p.setup(); err != nil {
		return nil, err
	}

	req := shared.FrameScanRequest{Files: make([]shared.PluginFile, 0, len(files))}
	for _, f := range files {
		req.Files = append(req.Files, shared.PluginFile{
			Path:     f.Path,
			Content:  f.Content,
			Language: f.Language,
			Lane:     f.Lane().String(),
			Context:  string(f.Context()),
		})
	}

	type reply struct {
		resp shared.FrameScanResponse
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		resp, err := p.impl.Scan(req)
		done <- reply{resp, err}
	}()

	var r reply
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r = <-done:
	}
	if r.err != nil {
		return nil, fmt.Errorf("plugin %q scan failed: %w", p.desc.ID, r.err)
	}

	meta := make(map[string]interface{}, len(r.resp.Metadata))
	for k, v := range r.resp.Metadata {
		meta[k] = v
	}
	status := StatusPassed
	if len(r.resp.Findings) > 0 {
		status = StatusFailed
	}
	// Findings of a batch are reported once, on the first result.
	results := make([]FrameResult, len(files))
	for i := range files {
		results[i] = FrameResult{FrameID: p.desc.ID, FrameName: p.desc.Name, Status: StatusPassed}
	}
	results[0].Status = status
	results[0].Findings = r.resp.Findings
	results[0].IssuesFound = len(r.resp.Findings)
	results[0].Metadata = meta
	return results, nil
}

// jsonCompatible converts yaml.v2 maps keyed by interface{} into string keyed ones.
func jsonCompatible(v interface{}) interface{} {
	switch node := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(node))
		for k, val := range node {
			out[fmt.Sprint(k)] = jsonCompatible(val)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(node))
		for k, val := range node {
			out[k] = jsonCompatible(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(node))
		for i, val := range node {
			out[i] = jsonCompatible(val)
		}
		return out
	}
	return v
}
