package kernel

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/careforge/cohort/internal/model"
	"github.com/careforge/cohort/internal/rng"
)

// defaultAgeBase is assumed when the initial snapshot carries no ageYr.
const defaultAgeBase = 40.0

// ageAttr is the kernel's designated age attribute, rewritten on every
// time advance (days since start / 365 added to the base age).
const ageAttr = "ageYr"

// Config carries the construction inputs for one patient's kernel.
type Config struct {
	PID      string
	Machines []Machine
	Initial  model.Snapshot
	RNG      *rng.Source
	Start    float64 // days
	Horizon  float64 // days
	Explain  bool
	// ExplainTo receives the explain trace; defaults to stdout.
	ExplainTo io.Writer
	Logger    *slog.Logger
	// Limits drives the clamp applied by SetAttr effects, keyed by
	// attribute. Attributes without an entry are unclamped.
	Limits map[string]model.Limits
}

// Kernel is the central event loop for a single patient. It owns all
// mutable simulation state exclusively; see the package doc for the
// invariants it maintains.
type Kernel struct {
	pid      string
	machines []Machine
	byID     map[string]*Machine
	watchers []Watcher

	attrs    model.Attributes
	diseases model.DiseaseStateMap
	runtimes map[string]*machineRuntime
	mods     map[string][]modEntry
	limits   map[string]model.Limits

	queue  *Queue[*item]
	events []model.Event

	base *rng.Source
	fx   *rng.Source // shared source for watcher and on-fire draws

	now     float64
	horizon float64
	ageBase float64

	nextToken uint64
	eventSeq  int64
	dead      bool

	snap model.Snapshot

	explain   bool
	explainTo io.Writer
	log       *slog.Logger
}

// New constructs a kernel: copies the initial snapshot, adopts each
// machine's initial state where the disease map is silent, and installs
// every catalog modifier with a fresh token.
func New(cfg Config) *Kernel {
	k := &Kernel{
		pid:       cfg.PID,
		machines:  cfg.Machines,
		byID:      make(map[string]*Machine, len(cfg.Machines)),
		attrs:     cfg.Initial.Attrs.Clone(),
		diseases:  cfg.Initial.Diseases.Clone(),
		runtimes:  make(map[string]*machineRuntime, len(cfg.Machines)),
		mods:      make(map[string][]modEntry),
		limits:    cfg.Limits,
		queue:     NewQueue[*item](),
		base:      cfg.RNG,
		now:       cfg.Start,
		horizon:   cfg.Horizon,
		explain:   cfg.Explain,
		explainTo: cfg.ExplainTo,
		log:       cfg.Logger,
	}
	if k.attrs == nil {
		k.attrs = make(model.Attributes)
	}
	if k.diseases == nil {
		k.diseases = make(model.DiseaseStateMap)
	}
	if k.explainTo == nil {
		k.explainTo = os.Stdout
	}
	if k.log == nil {
		k.log = slog.Default()
	}
	k.fx = k.base.Child("effects")

	if n, ok := k.attrs[ageAttr].(model.Number); ok {
		k.ageBase = float64(n)
	} else {
		k.ageBase = defaultAgeBase
	}

	for i := range k.machines {
		m := &k.machines[i]
		k.byID[m.ID] = m
		if _, ok := k.diseases[m.ID]; !ok {
			k.diseases[m.ID] = m.Initial
		}
		k.runtimes[m.ID] = &machineRuntime{state: k.diseases[m.ID]}
		k.watchers = append(k.watchers, m.Watchers...)
		for _, cm := range m.Modifiers {
			k.installModifier(m.ID, cm.ID, cm.Fn)
		}
	}

	k.rebuildSnapshot()
	return k
}

// Events returns the append-only event log.
func (k *Kernel) Events() []model.Event { return k.events }

// Diseases returns the current machine-state map.
func (k *Kernel) Diseases() model.DiseaseStateMap { return k.diseases.Clone() }

// Schedule enqueues a thunk at an absolute time, clamped to now. Intended
// for seeding external stimuli before Run; during a run, prefer returning
// a Schedule effect.
func (k *Kernel) Schedule(at float64, fn model.Thunk) {
	if at < k.now {
		at = k.now
	}
	k.queue.Push(at, &item{thunk: fn})
}

// ModifierIDs lists the installed modifier ids for a machine in
// application order. Used for diagnostics and tests.
func (k *Kernel) ModifierIDs(machine string) []string {
	entries := k.mods[machine]
	ids := make([]string, len(entries))
	for i, me := range entries {
		ids[i] = me.id
	}
	return ids
}

// Now returns the current simulated time in days.
func (k *Kernel) Now() float64 { return k.now }

// Snapshot returns the current read-only view. Callers must not mutate it.
func (k *Kernel) Snapshot() model.Snapshot { return k.snap }

// rebuildSnapshot refreshes the view handed to hazards and watchers.
// Clones keep previously handed-out snapshots stable while the kernel
// mutates its own maps.
func (k *Kernel) rebuildSnapshot() {
	k.snap = model.Snapshot{Attrs: k.attrs.Clone(), Diseases: k.diseases.Clone()}
}

// advanceTo moves simulated time forward and rewrites the age attribute
// from the recorded base (days to years).
func (k *Kernel) advanceTo(t float64) {
	k.now = t
	k.attrs[ageAttr] = model.Number(k.ageBase + t/365.0)
	k.rebuildSnapshot()
}

// Run schedules every machine once and drains the queue until it empties,
// an item exceeds the horizon, or a death event is recorded. It returns
// the event log.
func (k *Kernel) Run() []model.Event {
	for i := range k.machines {
		k.scheduleMachine(k.machines[i].ID)
	}

	for k.queue.Len() > 0 {
		t, it, _ := k.queue.Pop()
		if t > k.horizon {
			// Dropped, not re-enqueued: anything scheduled beyond the
			// horizon is lost. Surfaced at debug for observability.
			k.log.Debug("halting at horizon",
				"pid", k.pid, "item_time", t, "horizon", k.horizon)
			break
		}
		k.advanceTo(t)

		if it.isThunk() {
			k.applyEffects(k.runThunk(it.thunk))
		} else {
			k.fireTransition(it)
		}

		if k.dead {
			k.log.Debug("halting on death", "pid", k.pid, "t", k.now)
			break
		}
	}
	return k.events
}

// fireTransition applies a popped transition item, discarding it silently
// when its captured version is stale.
func (k *Kernel) fireTransition(it *item) {
	rt, ok := k.runtimes[it.machine]
	if !ok {
		return
	}
	if it.version != rt.version {
		return // stale: superseded by a later state or modifier change
	}
	m := k.byID[it.machine]
	tr := &m.Transitions[it.tindex]
	if tr.From != rt.state {
		return // defensive; version check should already cover this
	}

	rt.state = tr.To
	rt.version++
	k.diseases[it.machine] = tr.To
	k.rebuildSnapshot()

	if k.explain {
		k.printExplain(it, tr)
	}

	if tr.OnFire != nil {
		k.applyEffects(k.runOnFire(it.machine, tr))
	}
	k.scheduleMachine(it.machine)
}

// scheduleMachine bumps the machine's version, samples a candidate firing
// time for every transition leaving the current state, and enqueues the
// earliest. Ties break by enumeration order. Machines with no viable
// transition enqueue nothing.
func (k *Kernel) scheduleMachine(id string) {
	rt, ok := k.runtimes[id]
	if !ok {
		return
	}
	m := k.byID[id]
	rt.version++

	best := -1
	bestT := math.Inf(1)
	var bestDetail *fireDetail

	for i := range m.Transitions {
		tr := &m.Transitions[i]
		if tr.From != rt.state {
			continue
		}
		child := k.base.Child(fmt.Sprintf("%s:v%d:t%d", id, rt.version, i))
		lambda := tr.Hazard(k.snap, k.now, child)
		if !(lambda > 0) || math.IsInf(lambda, 1) || math.IsNaN(lambda) {
			continue
		}

		detail := &fireDetail{base: lambda}
		viable := true
		for _, me := range k.mods[id] {
			lambda = me.fn(lambda, k.snap, k.now)
			detail.modified = append(detail.modified, modStep{id: me.id, rate: lambda})
			if !(lambda > 0) || math.IsNaN(lambda) {
				viable = false
				break
			}
		}
		if !viable {
			continue
		}
		detail.final = lambda

		delta := child.Expo(lambda)
		if math.IsInf(delta, 0) || math.IsNaN(delta) {
			continue
		}
		t := k.now + delta
		if t < bestT {
			bestT = t
			best = i
			bestDetail = detail
		}
	}

	if best >= 0 {
		k.queue.Push(bestT, &item{
			machine: id,
			tindex:  best,
			version: rt.version,
			detail:  bestDetail,
		})
	}
}

// runOnFire invokes a transition's on-fire hook, converting a panic into a
// logged failure. The state change itself is never rolled back.
func (k *Kernel) runOnFire(machine string, tr *Transition) (effects []model.Effect) {
	defer func() {
		if r := recover(); r != nil {
			k.log.Error("on-fire hook failed",
				"pid", k.pid, "machine", machine,
				"from", tr.From, "to", tr.To, "panic", r)
			effects = nil
		}
	}()
	return tr.OnFire(k.ctx())
}

// runThunk evaluates a scheduled thunk, converting a panic into a logged
// failure.
func (k *Kernel) runThunk(fn model.Thunk) (effects []model.Effect) {
	defer func() {
		if r := recover(); r != nil {
			k.log.Error("scheduled thunk failed", "pid", k.pid, "t", k.now, "panic", r)
			effects = nil
		}
	}()
	return fn()
}
