package driver

import (
	"time"

	"jobmono/internal/observ"
)

// PhaseStatus reports whether a phase started or finished.
type PhaseStatus int

const (
	PhaseStart PhaseStatus = iota
	PhaseEnd
)

// PhaseEvent describes a pipeline phase boundary.
type PhaseEvent struct {
	Name    string
	Status  PhaseStatus
	Elapsed time.Duration
	Note    string
}

// PhaseObserver receives phase events emitted by a Resolver.
type PhaseObserver func(PhaseEvent)

// phases feeds the optional timer and observer from one place.
type phases struct {
	timer    *observ.Timer
	observer PhaseObserver
}

type phase struct {
	p     *phases
	name  string
	idx   int
	start time.Time
}

func (p *phases) begin(name string) phase {
	ph := phase{p: p, name: name, idx: -1, start: time.Now()}
	if p.timer != nil {
		ph.idx = p.timer.Begin(name)
	}
	if p.observer != nil {
		p.observer(PhaseEvent{Name: name, Status: PhaseStart})
	}
	return ph
}

func (ph phase) end(note string) {
	if ph.p.timer != nil {
		ph.p.timer.End(ph.idx, note)
	}
	if ph.p.observer != nil {
		ph.p.observer(PhaseEvent{Name: ph.name, Status: PhaseEnd, Elapsed: time.Since(ph.start), Note: note})
	}
}
