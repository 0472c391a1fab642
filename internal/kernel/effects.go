package kernel

import (
	"math"

	"github.com/careforge/cohort/internal/model"
	"github.com/careforge/cohort/internal/rng"
)

// Ctx is the read-mostly view handed to on-fire hooks and watcher
// reactions. Mutation happens only through the effects they return.
type Ctx struct {
	k *Kernel
}

func (k *Kernel) ctx() *Ctx { return &Ctx{k: k} }

// PID returns the patient id.
func (c *Ctx) PID() string { return c.k.pid }

// Now returns the current simulated time in days.
func (c *Ctx) Now() float64 { return c.k.now }

// Snapshot returns the current read-only view.
func (c *Ctx) Snapshot() model.Snapshot { return c.k.snap }

// Rand returns the shared effects RNG. Draws are deterministic because the
// kernel is single-threaded and effect order is fixed.
func (c *Ctx) Rand() *rng.Source { return c.k.fx }

// LastEventID returns the id of the most recently recorded event, or "".
// Watchers use it to relate follow-on events to their trigger.
func (c *Ctx) LastEventID() string {
	if len(c.k.events) == 0 {
		return ""
	}
	return c.k.events[len(c.k.events)-1].ID
}

// applyEffects drains a breadth-first queue of effects. Watcher reactions
// append to the back, so an emitted event's direct consequences are fully
// processed before consequences-of-consequences.
func (k *Kernel) applyEffects(effects []model.Effect) {
	pending := append([]model.Effect(nil), effects...)

	for len(pending) > 0 {
		eff := pending[0]
		pending = pending[1:]

		switch e := eff.(type) {
		case model.Emit:
			pending = append(pending, k.applyEmit(e)...)
		case model.SetAttr:
			k.applySetAttr(e)
		case model.SetDisease:
			k.applySetDisease(e)
		case model.ModifyHazard:
			k.applyModifyHazard(e)
		case model.Schedule:
			at := e.At
			if at < k.now {
				at = k.now
			}
			k.queue.Push(at, &item{thunk: e.Thunk})
		default:
			k.log.Error("unknown effect variant", "pid", k.pid, "effect", eff)
		}
	}
}

// applyEmit stamps, records, and dispatches one event, returning the
// effects produced by matching watchers.
func (k *Kernel) applyEmit(e model.Emit) []model.Effect {
	ev := e.Event
	ev.ID = model.EventID(k.pid, k.eventSeq)
	k.eventSeq++
	ev.PID = k.pid
	ev.Time = k.now
	k.events = append(k.events, ev)

	if ev.Kind == model.Death {
		k.dead = true
	}

	var out []model.Effect
	for i := range k.watchers {
		w := &k.watchers[i]
		if !w.Match(ev) {
			continue
		}
		out = append(out, k.runWatcher(w, ev)...)
	}
	return out
}

// runWatcher invokes one watcher reaction, converting a panic into a
// logged failure that does not abort the loop.
func (k *Kernel) runWatcher(w *Watcher, ev model.Event) (effects []model.Effect) {
	defer func() {
		if r := recover(); r != nil {
			k.log.Error("watcher reaction failed",
				"pid", k.pid, "watcher", w.ID, "event", ev.Kind, "panic", r)
			effects = nil
		}
	}()
	return w.React(ev, k.ctx())
}

func (k *Kernel) applySetAttr(e model.SetAttr) {
	v := e.Value
	if lim, ok := k.limits[e.Key]; ok {
		v = lim.Clamp(v)
	}
	k.attrs[e.Key] = v
	k.rebuildSnapshot()
}

func (k *Kernel) applySetDisease(e model.SetDisease) {
	if k.diseases[e.Machine] == e.State {
		return // no-op by contract
	}
	k.diseases[e.Machine] = e.State

	rt, ok := k.runtimes[e.Machine]
	if !ok {
		// Disease entry without a machine: record the state, nothing to
		// reschedule.
		k.rebuildSnapshot()
		return
	}
	rt.state = e.State
	rt.version++
	k.rebuildSnapshot()
	k.scheduleMachine(e.Machine)
}

func (k *Kernel) applyModifyHazard(e model.ModifyHazard) {
	if _, ok := k.byID[e.Machine]; !ok {
		k.log.Warn("modifier targets unknown machine",
			"pid", k.pid, "machine", e.Machine, "modifier", e.ModifierID)
		return
	}

	token := k.installModifier(e.Machine, e.ModifierID, e.Fn)
	k.scheduleMachine(e.Machine)

	// A non-finite until installs without a scheduled removal.
	if e.Until == nil || math.IsInf(*e.Until, 0) || math.IsNaN(*e.Until) {
		return
	}
	until := *e.Until
	if until < k.now {
		until = k.now
	}
	machine, id := e.Machine, e.ModifierID
	k.queue.Push(until, &item{thunk: func() []model.Effect {
		k.removeModifier(machine, id, token)
		return nil
	}})
}

// installModifier installs or replaces the modifier named id on a machine,
// returning the freshly issued token. A reinstall removes the prior entry
// and appends at the back, so application order follows installation order.
func (k *Kernel) installModifier(machine, id string, fn model.HazardModifier) uint64 {
	k.nextToken++
	token := k.nextToken

	entries := k.mods[machine]
	for i := range entries {
		if entries[i].id == id {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	k.mods[machine] = append(entries, modEntry{id: id, fn: fn, token: token})
	return token
}

// removeModifier uninstalls the modifier only if the stored token still
// matches the captured one: a reinstallation under the same id issued a
// fresh token and must survive the original's expiry thunk.
func (k *Kernel) removeModifier(machine, id string, token uint64) {
	entries := k.mods[machine]
	for i := range entries {
		if entries[i].id == id {
			if entries[i].token != token {
				return
			}
			k.mods[machine] = append(entries[:i], entries[i+1:]...)
			k.scheduleMachine(machine)
			return
		}
	}
}
