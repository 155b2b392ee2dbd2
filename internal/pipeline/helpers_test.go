package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/warden/internal/ci"
	"github.com/scan-io-git/warden/internal/config"
	"github.com/scan-io-git/warden/internal/events"
	"github.com/scan-io-git/warden/internal/findings"
	"github.com/scan-io-git/warden/internal/frames"
)

type fakeFrame struct {
	id    string
	spec  frames.Spec
	fn    func(ctx context.Context, f *frames.CodeFile) ([]findings.Finding, error)
	calls int32

	mu   sync.Mutex
	seen []string
}

func (f *fakeFrame) ID() string        { return f.id }
func (f *fakeFrame) Name() string      { return "Fake " + f.id }
func (f *fakeFrame) Spec() frames.Spec { return f.spec }

func (f *fakeFrame) Execute(ctx context.Context, file *frames.CodeFile) (frames.FrameResult, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.seen = append(f.seen, file.Path)
	f.mu.Unlock()

	var list []findings.Finding
	if f.fn != nil {
		var err error
		list, err = f.fn(ctx, file)
		if err != nil {
			return frames.FrameResult{}, err
		}
	}
	return frames.FrameResult{FrameID: f.id, Findings: list}, nil
}

func (f *fakeFrame) Seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

// findingOn returns a frame body reporting one finding of sev on every file.
func findingOn(rule string, sev findings.Severity) func(context.Context, *frames.CodeFile) ([]findings.Finding, error) {
	return func(_ context.Context, f *frames.CodeFile) ([]findings.Finding, error) {
		return []findings.Finding{findings.New(rule, sev, "found "+rule, f.Path, 1)}, nil
	}
}

type fakeBatchFrame struct {
	fakeFrame
	batch   func(ctx context.Context, files []*frames.CodeFile) ([]frames.FrameResult, error)
	batches int32
}

func (f *fakeBatchFrame) ExecuteBatch(ctx context.Context, files []*frames.CodeFile) ([]frames.FrameResult, error) {
	atomic.AddInt32(&f.batches, 1)
	if f.batch != nil {
		return f.batch(ctx, files)
	}
	out := make([]frames.FrameResult, 0, len(files))
	for _, file := range files {
		res, err := f.Execute(ctx, file)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

type cleanupFrame struct {
	fakeFrame
	cleaned int32
}

func (f *cleanupFrame) Cleanup(context.Context) error {
	atomic.AddInt32(&f.cleaned, 1)
	return fmt.Errorf("already closed")
}

type configurableFrame struct {
	fakeFrame
	settings map[string]interface{}
	project  frames.ProjectContext
}

func (f *configurableFrame) Configure(settings map[string]interface{}) error {
	if _, bad := settings["invalid"]; bad {
		return fmt.Errorf("invalid setting")
	}
	f.settings = settings
	return nil
}

func (f *configurableFrame) SetProjectContext(pc frames.ProjectContext) { f.project = pc }

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Warden.Mode = config.ModeUser
	cfg.Pipeline.Timeout = config.DefaultPipelineTimeout
	cfg.Pipeline.FrameTimeout = config.DefaultFrameTimeout
	cfg.Pipeline.FileTimeoutMin = config.DefaultFileTimeoutMin
	cfg.Pipeline.Strategy = StrategySequential
	cfg.Pipeline.ParallelLimit = config.DefaultParallelLimit
	return cfg
}

func codeFiles(paths ...string) []*frames.CodeFile {
	out := make([]*frames.CodeFile, 0, len(paths))
	for _, p := range paths {
		f := frames.NewCodeFile(p, "package x\n", frames.DetectLanguage(p))
		f.SetContext(frames.ContextProduction)
		out = append(out, f)
	}
	return out
}

func numberedFiles(n int) []*frames.CodeFile {
	paths := make([]string, n)
	for i := range paths {
		paths[i] = fmt.Sprintf("pkg/file%02d.go", i)
	}
	return codeFiles(paths...)
}

func newTestContext(files []*frames.CodeFile) *Context {
	return NewContext(NewRun(ci.Environment{}, nil), "/repo", files)
}

func newTestRunner(cfg *config.Config, opts RunnerOptions) *FrameRunner {
	return NewFrameRunner(cfg, opts, hclog.NewNullLogger())
}

// blockUntilDone simulates a frame that never answers within its budget.
func blockUntilDone(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return nil
	}
}

func newRecorder() *events.Recorder { return &events.Recorder{} }
