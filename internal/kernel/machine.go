package kernel

import (
	"github.com/careforge/cohort/internal/model"
	"github.com/careforge/cohort/internal/rng"
)

// Hazard computes an instantaneous rate (events per day) for a transition
// given the current snapshot. A non-positive or non-finite rate drops the
// candidate. Hazards must treat the snapshot as read-only.
//
// The rng source passed in is a child derived per (machine, version,
// transition index); every draw a hazard makes is therefore deterministic
// in (seed, patient, machine, version, index).
type Hazard func(snap model.Snapshot, now float64, r *rng.Source) float64

// Term is one component of a hazard breakdown, printed in explain mode.
type Term struct {
	Name  string
	Value float64
}

// Transition is a (from, to, hazard, on-fire) tuple. OnFire and Explain are
// optional. Explain declares the hazard's term breakdown for tracing;
// Form is "additive" or "loglinear".
type Transition struct {
	From    string
	To      string
	Hazard  Hazard
	OnFire  func(ctx *Ctx) []model.Effect
	Form    string
	Explain func(snap model.Snapshot, now float64) []Term
}

// Watcher observes every emitted event, including events produced by other
// watchers, and may return effects. Watchers must not mutate state
// directly.
type Watcher struct {
	ID    string
	Match func(e model.Event) bool
	React func(e model.Event, ctx *Ctx) []model.Effect
}

// CatalogModifier is a hazard modifier installed at kernel construction.
type CatalogModifier struct {
	ID string
	Fn model.HazardModifier
}

// Machine is a named state machine over a finite state set.
type Machine struct {
	ID          string
	States      []string
	Initial     string
	Transitions []Transition
	Watchers    []Watcher
	Modifiers   []CatalogModifier
}

// machineRuntime is the per-patient mutable state of one machine. The
// version counter bumps on every state change or modifier change,
// invalidating previously enqueued transition items.
type machineRuntime struct {
	state   string
	version uint64
}

// modEntry is one installed hazard modifier. The token uniquely identifies
// this installation; a timed removal only fires if its captured token still
// matches, so reinstallation under the same id survives the original's
// expiry.
type modEntry struct {
	id    string
	fn    model.HazardModifier
	token uint64
}
