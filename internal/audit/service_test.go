package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	healthErr  error
	calleesErr error
	callees    []string
	parents    []string
	refs       map[string]int
	delay      time.Duration
	calls      int
}

func (f *fakeClient) Health(context.Context) error {
	f.calls++
	return f.healthErr
}

func (f *fakeClient) Callees(ctx context.Context, _ string, _ int) ([]string, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.callees, f.calleesErr
}

func (f *fakeClient) ParentTypes(context.Context, string, int) ([]string, error) {
	f.calls++
	return f.parents, nil
}

func (f *fakeClient) References(_ context.Context, filePath string, _ int) (int, error) {
	f.calls++
	return f.refs[filePath], nil
}

func newService(c Client, opts Options) *ResilientService {
	return NewResilientService(c, opts, hclog.NewNullLogger(), nil)
}

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	client := &fakeClient{calleesErr: errors.New("connection refused")}
	svc := newService(client, Options{})

	for i := 0; i < 3; i++ {
		assert.True(t, svc.IsAvailable())
		assert.Equal(t, Undetermined, svc.CheckEdge(context.Background(), RelationCalls, "a.py", 1))
	}
	assert.False(t, svc.IsAvailable())

	callsBefore := client.calls
	assert.Equal(t, Undetermined, svc.CheckEdge(context.Background(), RelationCalls, "a.py", 1))
	_, ok := svc.IsSymbolUsed(context.Background(), "a.py", 1)
	assert.False(t, ok)
	assert.Equal(t, callsBefore, client.calls, "no I/O after the breaker tripped")

	usage := svc.Usage()
	assert.Equal(t, 3, usage.Failures)
	assert.True(t, usage.Disabled)
}

func TestSuccessResetsFailures(t *testing.T) {
	client := &fakeClient{calleesErr: errors.New("boom")}
	svc := newService(client, Options{})

	svc.CheckEdge(context.Background(), RelationCalls, "a.py", 1)
	svc.CheckEdge(context.Background(), RelationCalls, "a.py", 1)
	client.calleesErr = nil
	client.callees = []string{"b"}
	assert.Equal(t, Confirmed, svc.CheckEdge(context.Background(), RelationCalls, "a.py", 1))

	client.calleesErr = errors.New("boom")
	svc.CheckEdge(context.Background(), RelationCalls, "a.py", 1)
	svc.CheckEdge(context.Background(), RelationCalls, "a.py", 1)
	assert.True(t, svc.IsAvailable())
}

func TestUndeterminedLeavesCounterUnchanged(t *testing.T) {
	client := &fakeClient{calleesErr: errors.New("boom")}
	svc := newService(client, Options{})

	svc.CheckEdge(context.Background(), RelationCalls, "a.py", 1)
	svc.CheckEdge(context.Background(), RelationCalls, "a.py", 1)
	// unsupported relations are undetermined without I/O
	assert.Equal(t, Undetermined, svc.CheckEdge(context.Background(), RelationImports, "a.py", 1))
	assert.Equal(t, 2, svc.failures)
}

func TestHealthCheckRunsOnce(t *testing.T) {
	client := &fakeClient{callees: []string{"x"}}
	svc := newService(client, Options{})

	svc.CheckEdge(context.Background(), RelationCalls, "a.py", 1)
	svc.CheckEdge(context.Background(), RelationCalls, "a.py", 1)
	assert.Equal(t, 3, client.calls)
}

func TestUnhealthyServiceIsDisabled(t *testing.T) {
	client := &fakeClient{healthErr: errors.New("down")}
	svc := newService(client, Options{})

	v := svc.ValidateGraph(context.Background(), &CodeGraph{})
	assert.False(t, v.Available)
	assert.False(t, svc.IsAvailable())
	assert.Equal(t, 1, client.calls)
}

func sampleGraph() *CodeGraph {
	g := &CodeGraph{}
	g.AddNode(Node{FQN: "app.main", Kind: KindFunction, FilePath: "app.py", Line: 1})
	g.AddNode(Node{FQN: "app.Base", Kind: KindClass, FilePath: "base.py", Line: 3})
	g.AddNode(Node{FQN: "app.unused", Kind: KindFunction, FilePath: "unused.py", Line: 9})
	g.AddNode(Node{FQN: "app", Kind: KindModule, FilePath: "__init__.py"})
	g.AddNode(Node{FQN: "tests.helper", Kind: KindFunction, FilePath: "test_x.py", IsTest: true})
	g.Edges = []Edge{
		{Source: "app.main", Target: "app.Base", Relation: RelationCalls},
		{Source: "app.Base", Target: "object", Relation: RelationInherits},
		{Source: "app.main", Target: "os", Relation: RelationImports},
		{Source: "ghost", Target: "app.main", Relation: RelationCalls},
	}
	return g
}

func TestValidateGraph(t *testing.T) {
	client := &fakeClient{
		callees: []string{"app.Base"},
		refs:    map[string]int{"app.py": 2, "base.py": 1},
	}
	svc := newService(client, Options{})

	v := svc.ValidateGraph(context.Background(), sampleGraph())
	require.True(t, v.Available)
	assert.Equal(t, 4, v.TotalChecked)
	assert.Equal(t, 1, v.Confirmed)
	assert.Equal(t, 1, v.Unconfirmed)
	assert.Equal(t, 2, v.Errors)
	assert.Equal(t, []string{"app.unused"}, v.DeadSymbols)
	assert.InDelta(t, 0.25, v.ConfirmationRate(), 0.0001)
	assert.Equal(t, 0.25, v.Summary()["confirmation_rate"])
}

func TestValidateGraphRespectsLimits(t *testing.T) {
	g := sampleGraph()
	svc := newService(&fakeClient{callees: []string{"x"}}, Options{MaxEdges: 1, MaxDeadSymbols: 1})

	v := svc.ValidateGraph(context.Background(), g)
	assert.Equal(t, 1, v.TotalChecked)
	assert.LessOrEqual(t, len(v.DeadSymbols), 1)
}

func TestValidateGraphBatchCap(t *testing.T) {
	client := &fakeClient{callees: []string{"x"}, delay: 50 * time.Millisecond}
	svc := newService(client, Options{BatchTimeout: 80 * time.Millisecond, MaxFailures: 100})

	g := &CodeGraph{}
	g.AddNode(Node{FQN: "a", Kind: KindFunction, FilePath: "a.py", Line: 1})
	for i := 0; i < 10; i++ {
		g.Edges = append(g.Edges, Edge{Source: "a", Target: "b", Relation: RelationCalls})
	}

	start := time.Now()
	v := svc.ValidateGraph(context.Background(), g)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, v.TimedOut)
	assert.Less(t, v.TotalChecked, 10)
	assert.GreaterOrEqual(t, v.Confirmed, 1)
}

func TestBatchCapDoesNotTripBreaker(t *testing.T) {
	client := &fakeClient{callees: []string{"x"}, delay: 50 * time.Millisecond}
	svc := newService(client, Options{BatchTimeout: 80 * time.Millisecond})

	g := &CodeGraph{}
	g.AddNode(Node{FQN: "a", Kind: KindFunction, FilePath: "a.py", Line: 1})
	for i := 0; i < 10; i++ {
		g.Edges = append(g.Edges, Edge{Source: "a", Target: "b", Relation: RelationCalls})
	}

	v := svc.ValidateGraph(context.Background(), g)
	assert.True(t, v.TimedOut)
	assert.Zero(t, svc.failures)
	assert.True(t, svc.IsAvailable())
	assert.Zero(t, svc.Usage().Failures)
}

func TestRateLimitRefusalIsNotAFailure(t *testing.T) {
	client := &fakeClient{calleesErr: fmt.Errorf("%w: would exceed context deadline", ErrRateLimited)}
	svc := newService(client, Options{})

	for i := 0; i < 5; i++ {
		assert.Equal(t, Undetermined, svc.CheckEdge(context.Background(), RelationCalls, "a.py", 1))
	}
	assert.True(t, svc.IsAvailable())
	assert.Zero(t, svc.failures)
}

func TestConfirmationRateEmpty(t *testing.T) {
	assert.Equal(t, 0.0, Validation{}.ConfirmationRate())
}
