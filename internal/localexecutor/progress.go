package localexecutor

import (
	"fmt"
	"sync"

	"github.com/specialistvlad/buildgridgo/internal/pipeline"
)

// Phase is the position of a run in its lifecycle.
type Phase string

const (
	PhasePending           Phase = "PENDING"
	PhaseBuilding          Phase = "BUILDING"
	PhaseComposed          Phase = "COMPOSED"
	PhaseServiceRegistered Phase = "SERVICE_REGISTERED"
	PhaseEnvConfigured     Phase = "ENV_CONFIGURED"
	PhaseToolchainPurged   Phase = "TOOLCHAIN_PURGED"
	PhaseDone              Phase = "DONE"
	PhaseFailed            Phase = "FAILED"
)

// Milestone marks a finished part of the build.
type Milestone string

const (
	MilestoneBaseReady   Milestone = "BASE_READY"
	MilestoneUIBuilt     Milestone = "UI_BUILT"
	MilestoneHostBuilt   Milestone = "HOST_BUILT"
	MilestoneWorkerBuilt Milestone = "WORKER_BUILT"
)

// milestoneByKind maps stage kinds to the milestone they reach.
var milestoneByKind = map[string]Milestone{
	"ui_bundle":      MilestoneUIBuilt,
	"host_package":   MilestoneHostBuilt,
	"worker_package": MilestoneWorkerBuilt,
}

var transitions = map[pipeline.Target]map[Phase]Phase{
	pipeline.TargetContainer: {
		PhasePending:  PhaseBuilding,
		PhaseBuilding: PhaseComposed,
		PhaseComposed: PhaseDone,
	},
	pipeline.TargetAppliance: {
		PhasePending:           PhaseBuilding,
		PhaseBuilding:          PhaseComposed,
		PhaseComposed:          PhaseServiceRegistered,
		PhaseServiceRegistered: PhaseEnvConfigured,
		PhaseEnvConfigured:     PhaseToolchainPurged,
		PhaseToolchainPurged:   PhaseDone,
	},
}

// Progress is the phase machine of one run. It is safe for concurrent use.
type Progress struct {
	mu         sync.Mutex
	target     pipeline.Target
	phase      Phase
	history    []Phase
	milestones []Milestone
}

// NewProgress creates a machine in PENDING.
func NewProgress(target pipeline.Target) *Progress {
	return &Progress{target: target, phase: PhasePending, history: []Phase{PhasePending}}
}

// Advance moves to next. Only the single successor of the current phase is
// accepted.
func (p *Progress) Advance(next Phase) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if want, ok := transitions[p.target][p.phase]; !ok || want != next {
		return fmt.Errorf("invalid phase transition %s -> %s for %s target", p.phase, next, p.target)
	}
	p.phase = next
	p.history = append(p.history, next)
	return nil
}

// Fail moves to FAILED from any phase but DONE. It reports whether the
// transition happened.
func (p *Progress) Fail() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.phase == PhaseDone || p.phase == PhaseFailed {
		return false
	}
	p.phase = PhaseFailed
	p.history = append(p.history, PhaseFailed)
	return true
}

// Phase returns the current phase.
func (p *Progress) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// History returns every phase entered so far, in order.
func (p *Progress) History() []Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Phase(nil), p.history...)
}

// Mark records a milestone once.
func (p *Progress) Mark(m Milestone) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, seen := range p.milestones {
		if seen == m {
			return
		}
	}
	p.milestones = append(p.milestones, m)
}

// Milestones returns the milestones reached, in the order they were reached.
func (p *Progress) Milestones() []Milestone {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Milestone(nil), p.milestones...)
}
