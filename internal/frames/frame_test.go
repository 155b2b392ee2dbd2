package frames

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/warden/internal/config"
)

type stubFrame struct {
	id   string
	spec Spec
}

func (s stubFrame) ID() string   { return s.id }
func (s stubFrame) Name() string { return s.id }
func (s stubFrame) Spec() Spec   { return s.spec }
func (s stubFrame) Execute(context.Context, *CodeFile) (FrameResult, error) {
	return FrameResult{FrameID: s.id}, nil
}

func TestParseLane(t *testing.T) {
	tests := []struct {
		raw  string
		want Lane
		ok   bool
	}{
		{raw: "fast_lane", want: FastLane, ok: true},
		{raw: "middle", want: MiddleLane, ok: true},
		{raw: " DEEP_LANE ", want: DeepLane, ok: true},
		{raw: "", want: MiddleLane, ok: false},
		{raw: "turbo", want: MiddleLane, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseLane(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "deep_lane", DeepLane.String())
}

func TestCodeFileMetadataDefaults(t *testing.T) {
	f := NewCodeFile("a.go", "package a\n", "go")
	assert.Equal(t, int64(10), f.Size)
	assert.Equal(t, MiddleLane, f.Lane())
	assert.False(t, f.HasLane())
	assert.Equal(t, ContextProduction, f.Context())
	assert.False(t, f.Unchanged())

	f.SetLane(DeepLane)
	f.SetContext(ContextTest)
	f.MarkUnchanged(true)
	assert.Equal(t, DeepLane, f.Lane())
	assert.True(t, f.HasLane())
	assert.Equal(t, ContextTest, f.Context())
	assert.True(t, f.Unchanged())

	bare := &CodeFile{Path: "b.go"}
	bare.SetLane(FastLane)
	assert.Equal(t, FastLane, bare.Lane())
}

func TestEffectiveSpec(t *testing.T) {
	blocker := false
	frame := stubFrame{id: "security", spec: Spec{
		IsBlocker:         true,
		MinimumTriageLane: MiddleLane,
		RequiresFrames:    []string{"architecture"},
		Priority:          10,
	}}
	fc := config.FrameConfig{
		IsBlocker:         &blocker,
		MinimumTriageLane: "deep",
		OnFail:            "continue",
		RequiresFrames:    []string{"style"},
		RequiresConfig:    []string{"spec.platforms"},
		Priority:          2,
	}

	spec := EffectiveSpec(frame, fc)
	assert.False(t, spec.IsBlocker)
	assert.Equal(t, DeepLane, spec.MinimumTriageLane)
	assert.Equal(t, "continue", spec.OnFail)
	assert.Equal(t, 2, spec.Priority)
	assert.Equal(t, []string{"architecture", "style"}, spec.RequiresFrames)
	assert.Equal(t, []string{"spec.platforms"}, spec.RequiresConfig)
	assert.Equal(t, []string{"architecture"}, frame.spec.RequiresFrames, "static spec untouched")

	spec = EffectiveSpec(frame, config.FrameConfig{})
	assert.True(t, spec.IsBlocker)
	assert.Equal(t, MiddleLane, spec.MinimumTriageLane)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(stubFrame{id: "style", spec: Spec{Priority: 5}})
	reg.Register(stubFrame{id: "security", spec: Spec{Priority: 1}})
	reg.Register(stubFrame{id: "architecture", spec: Spec{Priority: 5}})

	var ids []string
	for _, f := range reg.All() {
		ids = append(ids, f.ID())
	}
	assert.Equal(t, []string{"security", "architecture", "style"}, ids)

	f, ok := reg.Get("style")
	require.True(t, ok)
	assert.Equal(t, "style", f.ID())

	var nilReg *Registry
	_, ok = nilReg.Get("style")
	assert.False(t, ok)
	assert.Empty(t, nilReg.All())
}

func TestSkipped(t *testing.T) {
	res := Skipped("security", "Security", "no files", map[string]interface{}{"total": 3})
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, "no files", res.Metadata["skip_reason"])
	assert.Equal(t, 3, res.Metadata["total"])
	assert.False(t, res.Status.IsFailure())
	assert.True(t, StatusTimeout.IsFailure())
}

func TestDetectLanguage(t *testing.T) {
	tests := map[string]string{
		"cmd/main.go":       "go",
		"web/App.TSX":       "typescript",
		"deploy/Dockerfile": "dockerfile",
		"infra/main.tf":     "terraform",
		"README":            "",
		"assets/logo.png":   "",
	}
	for path, want := range tests {
		assert.Equal(t, want, DetectLanguage(path), path)
	}
}
