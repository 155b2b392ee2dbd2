// Package events carries pipeline progress to whoever renders it.
package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Event type tags.
const (
	TypeProgress = "progress"
	TypeResult   = "result"
)

// Event names.
const (
	PhaseStarted      = "phase_started"
	PhaseCompleted    = "phase_completed"
	PhaseSkipped      = "phase_skipped"
	ProgressUpdate    = "progress_update"
	FrameStarted      = "frame_started"
	FrameCompleted    = "frame_completed"
	PipelineCompleted = "pipeline_completed"
)

// Event is the tagged union {type, event, data}.
type Event struct {
	Type      string                 `json:"type"`
	Event     string                 `json:"event"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Emitter receives events. Implementations must be safe for concurrent use.
type Emitter interface {
	Emit(e Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(Event) {})

// Progress builds a progress event.
func Progress(name string, data map[string]interface{}) Event {
	return Event{Type: TypeProgress, Event: name, Data: data, Timestamp: time.Now().UTC()}
}

// Result builds a result event.
func Result(name string, data map[string]interface{}) Event {
	return Event{Type: TypeResult, Event: name, Data: data, Timestamp: time.Now().UTC()}
}

// JSONLinesEmitter writes one JSON document per event.
type JSONLinesEmitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONLinesEmitter(w io.Writer) *JSONLinesEmitter {
	return &JSONLinesEmitter{enc: json.NewEncoder(w)}
}

func (j *JSONLinesEmitter) Emit(e Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	_ = j.enc.Encode(e)
}

// TextEmitter renders events as short human readable lines.
type TextEmitter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewTextEmitter(w io.Writer) *TextEmitter {
	return &TextEmitter{w: w}
}

func (t *TextEmitter) Emit(e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e.Event {
	case PhaseStarted:
		fmt.Fprintf(t.w, "==> %v\n", e.Data["phase"])
	case PhaseSkipped:
		fmt.Fprintf(t.w, "--> %v skipped (%v)\n", e.Data["phase"], e.Data["reason"])
	case FrameStarted:
		fmt.Fprintf(t.w, "    [%v] started on %v file(s)\n", e.Data["frame_id"], e.Data["files"])
	case FrameCompleted:
		fmt.Fprintf(t.w, "    [%v] %v, %v issue(s)\n", e.Data["frame_id"], e.Data["status"], e.Data["issues_found"])
	case ProgressUpdate, PhaseCompleted:
		return
	default:
		fmt.Fprintf(t.w, "%s %s\n", e.Event, formatData(e.Data))
	}
}

func formatData(data map[string]interface{}) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return strings.Join(parts, " ")
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Named returns the recorded events with the given name.
func (r *Recorder) Named(name string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}
