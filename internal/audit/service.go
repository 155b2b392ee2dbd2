package audit

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/warden/internal/config"
	"github.com/scan-io-git/warden/internal/metrics"
	wardenerrors "github.com/scan-io-git/warden/pkg/shared/errors"
)

const serviceName = "audit"

// Outcome of a single check.
type Outcome int

const (
	Undetermined Outcome = iota
	Confirmed
	Unconfirmed
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case Unconfirmed:
		return "unconfirmed"
	default:
		return "undetermined"
	}
}

// Entry records the check of one edge.
type Entry struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Confirmed bool   `json:"confirmed"`
	Error     string `json:"error,omitempty"`
}

// Validation is the result of one audit batch.
type Validation struct {
	Available    bool     `json:"available"`
	TotalChecked int      `json:"total_checked"`
	Confirmed    int      `json:"confirmed"`
	Unconfirmed  int      `json:"unconfirmed"`
	Errors       int      `json:"errors"`
	TimedOut     bool     `json:"timed_out"`
	Entries      []Entry  `json:"entries,omitempty"`
	DeadSymbols  []string `json:"dead_symbols"`
}

// ConfirmationRate is confirmed / total, 0 when nothing was checked.
func (v Validation) ConfirmationRate() float64 {
	if v.TotalChecked == 0 {
		return 0
	}
	return float64(v.Confirmed) / float64(v.TotalChecked)
}

// Summary flattens the validation for reports and phase results.
func (v Validation) Summary() map[string]interface{} {
	return map[string]interface{}{
		"total":             v.TotalChecked,
		"confirmed":         v.Confirmed,
		"unconfirmed":       v.Unconfirmed,
		"errors":            v.Errors,
		"confirmation_rate": v.ConfirmationRate(),
		"dead_symbols":      v.DeadSymbols,
		"timed_out":         v.TimedOut,
	}
}

// Usage counts calls made to the remote service.
type Usage struct {
	Requests int  `json:"requests"`
	Failures int  `json:"failures"`
	Disabled bool `json:"disabled"`
}

// Options bound the service. Zero values take the configuration defaults.
type Options struct {
	MaxFailures    int
	MaxEdges       int
	MaxDeadSymbols int
	BatchTimeout   time.Duration
}

// OptionsFromConfig reads the audit section.
func OptionsFromConfig(a config.Audit) Options {
	return Options{
		MaxFailures:    a.MaxFailures,
		MaxEdges:       a.MaxEdges,
		MaxDeadSymbols: a.MaxDeadSymbols,
		BatchTimeout:   a.BatchTimeout,
	}
}

// ResilientService wraps a Client with a consecutive-failure circuit breaker.
// It is used from a single phase and is not safe for concurrent use.
type ResilientService struct {
	client  Client
	opts    Options
	logger  hclog.Logger
	metrics *metrics.Collector

	failures      int
	disabled      bool
	healthChecked bool
	usage         Usage
}

func NewResilientService(client Client, opts Options, logger hclog.Logger, m *metrics.Collector) *ResilientService {
	opts.MaxFailures = config.SetThen(opts.MaxFailures, config.DefaultAuditMaxFailures)
	opts.MaxEdges = config.SetThen(opts.MaxEdges, config.DefaultAuditMaxEdges)
	opts.MaxDeadSymbols = config.SetThen(opts.MaxDeadSymbols, config.DefaultAuditMaxDeadSymbols)
	opts.BatchTimeout = config.SetThen(opts.BatchTimeout, config.DefaultAuditBatchTimeout)
	return &ResilientService{client: client, opts: opts, logger: logger, metrics: m}
}

// IsAvailable is false once the breaker tripped.
func (s *ResilientService) IsAvailable() bool {
	return !s.disabled
}

// Usage returns request and failure counters.
func (s *ResilientService) Usage() Usage {
	u := s.usage
	u.Disabled = s.disabled
	return u
}

func (s *ResilientService) recordFailure(operation string, err error) {
	s.failures++
	s.usage.Failures++
	s.metrics.RecordAuditCall(operation, "failure")
	s.logger.Debug("audit call failed", "operation", operation, "error", wardenerrors.NewExternalServiceError(serviceName, operation, err), "consecutive", s.failures)
	if s.failures >= s.opts.MaxFailures && !s.disabled {
		s.disabled = true
		s.logger.Warn("audit circuit breaker tripped", "failures", s.failures)
	}
}

// callFailed counts err against the breaker unless the caller's deadline or
// the rate limit budget cut the call short.
func (s *ResilientService) callFailed(ctx context.Context, operation string, err error) {
	if ctx.Err() != nil || errors.Is(err, ErrRateLimited) {
		s.metrics.RecordAuditCall(operation, "abandoned")
		s.logger.Debug("audit call abandoned", "operation", operation, "error", err)
		return
	}
	s.recordFailure(operation, err)
}

func (s *ResilientService) recordSuccess(operation string) {
	s.failures = 0
	s.metrics.RecordAuditCall(operation, "success")
}

// ensureHealthy runs the health check once, before the first real call.
func (s *ResilientService) ensureHealthy(ctx context.Context) bool {
	if s.disabled {
		return false
	}
	if s.healthChecked {
		return true
	}
	s.healthChecked = true
	s.usage.Requests++
	if err := s.client.Health(ctx); err != nil {
		s.recordFailure("health", err)
		s.disabled = true
		s.logger.Warn("audit service unhealthy, disabled for this run", "error", err)
		return false
	}
	s.recordSuccess("health")
	return true
}

// CheckEdge confirms one relation. Remote errors are counted and reported as undetermined.
func (s *ResilientService) CheckEdge(ctx context.Context, relation Relation, filePath string, line int) Outcome {
	if !s.ensureHealthy(ctx) {
		return Undetermined
	}

	var (
		operation string
		call      func(context.Context, string, int) ([]string, error)
	)
	switch relation {
	case RelationCalls:
		operation, call = "callees", s.client.Callees
	case RelationInherits, RelationImplements:
		operation, call = "type_hierarchy", s.client.ParentTypes
	default:
		return Undetermined
	}

	s.usage.Requests++
	items, err := call(ctx, filePath, line)
	if err != nil {
		s.callFailed(ctx, operation, err)
		return Undetermined
	}
	s.recordSuccess(operation)
	if len(items) > 0 {
		return Confirmed
	}
	return Unconfirmed
}

// IsSymbolUsed reports usage of a symbol; ok is false when it could not be determined.
func (s *ResilientService) IsSymbolUsed(ctx context.Context, filePath string, line int) (used bool, ok bool) {
	if !s.ensureHealthy(ctx) {
		return false, false
	}
	s.usage.Requests++
	count, err := s.client.References(ctx, filePath, line)
	if err != nil {
		s.callFailed(ctx, "references", err)
		return false, false
	}
	s.recordSuccess("references")
	return count > 0, true
}

// ValidateGraph checks up to MaxEdges edges and MaxDeadSymbols symbols within
// BatchTimeout. Whatever was computed before the cap is returned.
func (s *ResilientService) ValidateGraph(ctx context.Context, graph *CodeGraph) Validation {
	v := Validation{DeadSymbols: []string{}}
	if graph == nil || !s.ensureHealthy(ctx) {
		s.logger.Info("audit skipped", "reason", "service unavailable")
		return v
	}
	v.Available = true

	batchCtx, cancel := context.WithTimeout(ctx, s.opts.BatchTimeout)
	defer cancel()

	edges := graph.Edges
	if len(edges) > s.opts.MaxEdges {
		edges = edges[:s.opts.MaxEdges]
	}

	for _, edge := range edges {
		if s.disabled {
			break
		}
		if batchCtx.Err() != nil {
			v.TimedOut = true
			break
		}
		v.TotalChecked++
		entry := Entry{Source: edge.Source, Target: edge.Target}

		node, ok := graph.Nodes[edge.Source]
		if !ok {
			entry.Error = "source_node_missing"
			v.Errors++
			v.Entries = append(v.Entries, entry)
			continue
		}

		switch s.CheckEdge(batchCtx, edge.Relation, node.FilePath, node.Line) {
		case Confirmed:
			entry.Confirmed = true
			v.Confirmed++
		case Unconfirmed:
			v.Unconfirmed++
		default:
			entry.Error = "undetermined"
			v.Errors++
		}
		v.Entries = append(v.Entries, entry)
	}

	if !v.TimedOut {
		v.DeadSymbols, v.TimedOut = s.detectDeadSymbols(batchCtx, graph)
	}

	s.logger.Info("audit complete",
		"checked", v.TotalChecked,
		"confirmed", v.Confirmed,
		"unconfirmed", v.Unconfirmed,
		"dead", len(v.DeadSymbols),
		"timed_out", v.TimedOut,
	)
	return v
}

func (s *ResilientService) detectDeadSymbols(ctx context.Context, graph *CodeGraph) ([]string, bool) {
	dead := []string{}
	checked := 0
	for _, fqn := range sortedKeys(graph.Nodes) {
		if checked >= s.opts.MaxDeadSymbols || s.disabled {
			break
		}
		if ctx.Err() != nil {
			return dead, true
		}
		node := graph.Nodes[fqn]
		if node.IsTest || node.Kind == KindModule {
			continue
		}
		used, ok := s.IsSymbolUsed(ctx, node.FilePath, node.Line)
		checked++
		if ok && !used {
			dead = append(dead, fqn)
		}
	}
	return dead, false
}
