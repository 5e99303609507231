package orchestrator

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"solio-donations/internal/domain"
)

// Progress observes an attempt moving through its stages.
type Progress interface {
	Enter(stage domain.Stage)
	Fail(stage domain.Stage, err error)
	Complete(record *domain.DonationRecord)
}

// NopProgress discards all events.
type NopProgress struct{}

func (NopProgress) Enter(domain.Stage)              {}
func (NopProgress) Fail(domain.Stage, error)        {}
func (NopProgress) Complete(*domain.DonationRecord) {}

// Event is one recorded progress call.
type Event struct {
	Stage  domain.Stage
	Failed bool
	Done   bool
	Err    error
}

// RecordingProgress keeps every event, for tests and diagnostics.
type RecordingProgress struct {
	mu     sync.Mutex
	events []Event
}

func (r *RecordingProgress) add(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *RecordingProgress) Enter(stage domain.Stage) { r.add(Event{Stage: stage}) }

func (r *RecordingProgress) Fail(stage domain.Stage, err error) {
	r.add(Event{Stage: stage, Failed: true, Err: err})
}

func (r *RecordingProgress) Complete(*domain.DonationRecord) {
	r.add(Event{Stage: domain.StageVerify, Done: true})
}

// Events returns a copy of the recorded events.
func (r *RecordingProgress) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Entered returns the stages entered, in order.
func (r *RecordingProgress) Entered() []domain.Stage {
	var out []domain.Stage
	for _, e := range r.Events() {
		if !e.Failed && !e.Done {
			out = append(out, e.Stage)
		}
	}
	return out
}

// TerminalProgress draws the stage indicator on a terminal. A failure
// stays on screen for Pin before Fail returns.
type TerminalProgress struct {
	Out   io.Writer
	Pin   time.Duration
	Sleep func(time.Duration)

	mu sync.Mutex
}

// NewTerminalProgress writes to out and pins failures for pin.
func NewTerminalProgress(out io.Writer, pin time.Duration) *TerminalProgress {
	return &TerminalProgress{Out: out, Pin: pin, Sleep: time.Sleep}
}

func (t *TerminalProgress) render(active domain.Stage, mark string) string {
	parts := make([]string, len(domain.Stages))
	for i, s := range domain.Stages {
		switch {
		case s < active:
			parts[i] = "[x] " + s.String()
		case s == active:
			parts[i] = mark + " " + s.String()
		default:
			parts[i] = "[ ] " + s.String()
		}
	}
	return strings.Join(parts, "  ")
}

func (t *TerminalProgress) Enter(stage domain.Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.Out, "\r%s", t.render(stage, "[>]"))
}

func (t *TerminalProgress) Fail(stage domain.Stage, err error) {
	t.mu.Lock()
	fmt.Fprintf(t.Out, "\r%s\n%s\n", t.render(stage, "[!]"), domain.Describe(err))
	t.mu.Unlock()
	if t.Pin > 0 && t.Sleep != nil {
		t.Sleep(t.Pin)
	}
}

func (t *TerminalProgress) Complete(record *domain.DonationRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.Out, "\r%s\n", t.render(domain.Stage(len(domain.Stages)), ""))
	if record == nil {
		return
	}
	if record.AlreadyProcessed {
		fmt.Fprintln(t.Out, "This donation was already recorded.")
	}
	fmt.Fprintf(t.Out, "Project now has %s SOL raised (%.1f%%) from %d donations.\n",
		record.RaisedSOL.String(), record.ProgressPercent, record.DonationCount)
}
