package kernel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careforge/cohort/internal/model"
	"github.com/careforge/cohort/internal/rng"
)

func constant(rate float64) Hazard {
	return func(model.Snapshot, float64, *rng.Source) float64 { return rate }
}

// pingPong builds a machine that oscillates A<->B at the given daily rate,
// emitting a ProcedurePerformed on every firing.
func pingPong(id string, rate float64) Machine {
	mark := func(ctx *Ctx) []model.Effect {
		return []model.Effect{model.Emit{Event: model.Event{
			Kind: model.ProcedurePerformed,
			Meta: model.Attributes{"machine": model.String(id)},
		}}}
	}
	return Machine{
		ID:      id,
		States:  []string{"A", "B"},
		Initial: "A",
		Transitions: []Transition{
			{From: "A", To: "B", Hazard: constant(rate), OnFire: mark},
			{From: "B", To: "A", Hazard: constant(rate), OnFire: mark},
		},
	}
}

func run(t *testing.T, cfg Config) *Kernel {
	t.Helper()
	k := New(cfg)
	k.Run()
	return k
}

func TestKernel_TimeMonotonic(t *testing.T) {
	k := run(t, Config{
		PID:      "p0",
		Machines: []Machine{pingPong("m", 0.5)},
		RNG:      rng.New(1),
		Horizon:  100,
	})

	events := k.Events()
	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Time, events[i-1].Time)
	}
}

func TestKernel_HorizonBound(t *testing.T) {
	k := run(t, Config{
		PID:      "p0",
		Machines: []Machine{pingPong("m", 2.0)},
		RNG:      rng.New(7),
		Horizon:  30,
	})

	for _, e := range k.Events() {
		assert.LessOrEqual(t, e.Time, 30.0)
	}
}

func TestKernel_Deterministic(t *testing.T) {
	cfg := func() Config {
		return Config{
			PID:      "p0",
			Machines: []Machine{pingPong("m", 0.5), pingPong("n", 0.25)},
			RNG:      rng.New(42),
			Horizon:  200,
		}
	}

	a, err := model.CanonicalEventLog(run(t, cfg()).Events())
	require.NoError(t, err)
	b, err := model.CanonicalEventLog(run(t, cfg()).Events())
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestKernel_StaleTransitionDiscarded(t *testing.T) {
	// A slow A->B machine whose pending item must be invalidated by a
	// watcher-forced state change reacting to a fast machine's encounter.
	slow := Machine{
		ID:      "slow",
		States:  []string{"A", "B", "C"},
		Initial: "A",
		Transitions: []Transition{
			{From: "A", To: "B", Hazard: constant(0.01), OnFire: func(ctx *Ctx) []model.Effect {
				return []model.Effect{model.Emit{Event: model.Event{Kind: model.ConditionOnset}}}
			}},
		},
		Watchers: []Watcher{{
			ID:    "force-c",
			Match: func(e model.Event) bool { return e.Kind == model.EncounterFinished },
			React: func(e model.Event, ctx *Ctx) []model.Effect {
				return []model.Effect{model.SetDisease{Machine: "slow", State: "C"}}
			},
		}},
	}
	fast := Machine{
		ID:      "fast",
		States:  []string{"Waiting", "Done"},
		Initial: "Waiting",
		Transitions: []Transition{
			{From: "Waiting", To: "Done", Hazard: constant(10000), OnFire: func(ctx *Ctx) []model.Effect {
				return []model.Effect{model.Emit{Event: model.Event{Kind: model.EncounterFinished}}}
			}},
		},
	}

	k := run(t, Config{
		PID:      "p0",
		Machines: []Machine{slow, fast},
		RNG:      rng.New(1),
		Horizon:  365,
	})

	assert.Equal(t, "C", k.Diseases()["slow"])
	for _, e := range k.Events() {
		assert.NotEqual(t, model.ConditionOnset, e.Kind,
			"stale A->B item fired after forced state change")
	}
}

func TestKernel_ModifierExpiry(t *testing.T) {
	k := New(Config{
		PID:      "p0",
		Machines: []Machine{pingPong("m", 1.0)},
		RNG:      rng.New(9),
		Horizon:  100,
	})

	until := 20.0
	k.Schedule(10, func() []model.Effect {
		return []model.Effect{model.ModifyHazard{
			Machine:    "m",
			ModifierID: "pause",
			Fn:         func(float64, model.Snapshot, float64) float64 { return 0 },
			Until:      &until,
		}}
	})
	k.Run()

	sawAfter := false
	for _, e := range k.Events() {
		assert.False(t, e.Time > 10 && e.Time <= 20,
			"transition fired at t=%v inside the paused window", e.Time)
		if e.Time > 20 {
			sawAfter = true
		}
	}
	assert.True(t, sawAfter, "transitions should resume after the modifier expires")
}

func TestKernel_ModifierReinstallSurvivesExpiry(t *testing.T) {
	k := New(Config{
		PID:      "p0",
		Machines: []Machine{pingPong("m", 1.0)},
		RNG:      rng.New(14),
		Horizon:  120,
	})

	zero := func(float64, model.Snapshot, float64) float64 { return 0 }
	firstUntil, secondUntil := 20.0, 50.0

	k.Schedule(5, func() []model.Effect {
		return []model.Effect{model.ModifyHazard{
			Machine: "m", ModifierID: "pause", Fn: zero, Until: &firstUntil,
		}}
	})
	k.Schedule(15, func() []model.Effect {
		return []model.Effect{model.ModifyHazard{
			Machine: "m", ModifierID: "pause", Fn: zero, Until: &secondUntil,
		}}
	})

	// The first installation's expiry thunk at t=20 must not remove the
	// reinstallation, which carries a fresh token.
	var installedAt25 []string
	k.Schedule(25, func() []model.Effect {
		installedAt25 = k.ModifierIDs("m")
		return nil
	})

	k.Run()

	assert.Equal(t, []string{"pause"}, installedAt25)
	for _, e := range k.Events() {
		assert.False(t, e.Time > 5 && e.Time <= 50,
			"transition fired at t=%v while paused", e.Time)
	}
}

func TestKernel_SetAttrClamped(t *testing.T) {
	k := New(Config{
		PID:      "p0",
		Machines: []Machine{pingPong("m", 0.1)},
		RNG:      rng.New(2),
		Horizon:  10,
		Limits: map[string]model.Limits{
			"bmi": {Min: ptr(10.0), Max: ptr(60.0)},
		},
	})

	k.Schedule(1, func() []model.Effect {
		return []model.Effect{
			model.SetAttr{Key: "bmi", Value: model.Number(200)},
		}
	})
	k.Run()

	assert.Equal(t, model.Number(60), k.Snapshot().Attrs["bmi"])
}

func TestKernel_DeathHaltsLoop(t *testing.T) {
	lethal := Machine{
		ID:      "mortality",
		States:  []string{"Alive", "Dead"},
		Initial: "Alive",
		Transitions: []Transition{
			{From: "Alive", To: "Dead", Hazard: constant(0.05), OnFire: func(ctx *Ctx) []model.Effect {
				return []model.Effect{model.Emit{Event: model.Event{Kind: model.Death}}}
			}},
		},
	}

	k := run(t, Config{
		PID:      "p0",
		Machines: []Machine{lethal, pingPong("m", 5.0)},
		RNG:      rng.New(3),
		Horizon:  10000,
	})

	events := k.Events()
	require.NotEmpty(t, events)

	deathAt := -1.0
	for _, e := range events {
		if e.Kind == model.Death {
			deathAt = e.Time
		}
	}
	require.GreaterOrEqual(t, deathAt, 0.0, "expected a death event")
	assert.Equal(t, model.Death, events[len(events)-1].Kind)
	for _, e := range events {
		assert.LessOrEqual(t, e.Time, deathAt)
	}
}

func TestKernel_WatcherPanicDoesNotAbort(t *testing.T) {
	m := pingPong("m", 1.0)
	m.Watchers = []Watcher{{
		ID:    "broken",
		Match: func(e model.Event) bool { return true },
		React: func(e model.Event, ctx *Ctx) []model.Effect {
			panic("watcher bug")
		},
	}}

	k := run(t, Config{
		PID:      "p0",
		Machines: []Machine{m},
		RNG:      rng.New(4),
		Horizon:  50,
	})

	// The loop survives the panicking watcher and keeps recording.
	assert.Greater(t, len(k.Events()), 1)
}

func TestKernel_ScheduleClampsPastTime(t *testing.T) {
	k := New(Config{
		PID:      "p0",
		Machines: []Machine{pingPong("m", 0.01)},
		RNG:      rng.New(5),
		Horizon:  100,
	})

	fired := math.Inf(-1)
	k.Schedule(30, func() []model.Effect {
		return []model.Effect{model.Schedule{At: 1, Thunk: func() []model.Effect {
			fired = k.Now()
			return nil
		}}}
	})
	k.Run()

	assert.Equal(t, 30.0, fired, "past-dated thunk should run at the current time")
}

func TestKernel_AgeTracksTime(t *testing.T) {
	var ages []float64
	m := pingPong("m", 1.0)
	m.Watchers = []Watcher{{
		ID:    "age-probe",
		Match: func(e model.Event) bool { return true },
		React: func(e model.Event, ctx *Ctx) []model.Effect {
			ages = append(ages, ctx.Snapshot().Num("ageYr", -1))
			return nil
		},
	}}

	k := run(t, Config{
		PID:      "p0",
		Machines: []Machine{m},
		Initial:  model.Snapshot{Attrs: model.Attributes{"ageYr": model.Number(60)}},
		RNG:      rng.New(6),
		Horizon:  730,
	})

	events := k.Events()
	require.Equal(t, len(events), len(ages))
	for i, e := range events {
		assert.InDelta(t, 60+e.Time/365.0, ages[i], 1e-9)
	}
}

func TestKernel_DefaultAgeBase(t *testing.T) {
	k := New(Config{
		PID:      "p0",
		Machines: []Machine{pingPong("m", 0.1)},
		RNG:      rng.New(8),
		Horizon:  365,
	})
	k.Run()

	// No ageYr in the initial snapshot: base defaults to 40.
	assert.GreaterOrEqual(t, k.Snapshot().Num("ageYr", -1), 40.0)
}

func ptr(v float64) *float64 { return &v }
