// Package clinical carries the builtin clinical content: kernel machines
// and module-runtime modules, resolvable by id from a world manifest.
//
// Hazard coefficients are illustrative, tuned for plausible event density
// rather than epidemiological fidelity.
package clinical

import (
	"math"

	"github.com/careforge/cohort/internal/kernel"
	"github.com/careforge/cohort/internal/model"
	"github.com/careforge/cohort/internal/rng"
)

// Machine ids used by the kernel runtime.
const (
	EncountersMachine = "encounters"
	DiabetesMachine   = "t2dm"
)

// LOINC and ICD-10 codes the builtin content emits.
const (
	loincA1c  = "4548-4"
	icdT2DM   = "E11.9"
	metformin = "metformin"
)

// Machines returns the default kernel machine layout: a routine-encounter
// machine and a type 2 diabetes onset machine, wired together by watchers
// (encounter -> A1c order -> result -> diagnosis).
func Machines() []kernel.Machine {
	return []kernel.Machine{encountersMachine(), diabetesMachine()}
}

func encountersMachine() kernel.Machine {
	return kernel.Machine{
		ID:      EncountersMachine,
		States:  []string{"Idle", "InVisit"},
		Initial: "Idle",
		Transitions: []kernel.Transition{
			{
				From: "Idle",
				To:   "InVisit",
				// Roughly three primary-care visits per year, slightly
				// more for older patients.
				Hazard: func(snap model.Snapshot, now float64, r *rng.Source) float64 {
					age := snap.Num("ageYr", 40)
					return (3.0 + math.Max(0, age-65)*0.05) / 365.0
				},
				Form: "additive",
				Explain: func(snap model.Snapshot, now float64) []kernel.Term {
					age := snap.Num("ageYr", 40)
					return []kernel.Term{
						{Name: "base", Value: 3.0 / 365.0},
						{Name: "age", Value: math.Max(0, age-65) * 0.05 / 365.0},
					}
				},
				OnFire: func(ctx *kernel.Ctx) []model.Effect {
					return []model.Effect{model.Emit{Event: model.Event{
						Kind: model.EncounterStarted,
						Meta: model.Attributes{"kind": model.String("PCP")},
					}}}
				},
			},
			{
				From: "InVisit",
				To:   "Idle",
				// Visits wrap up within a day on average.
				Hazard: func(model.Snapshot, float64, *rng.Source) float64 { return 1.0 },
				OnFire: func(ctx *kernel.Ctx) []model.Effect {
					return []model.Effect{model.Emit{Event: model.Event{
						Kind: model.EncounterFinished,
						Meta: model.Attributes{"kind": model.String("PCP")},
					}}}
				},
			},
		},
		Watchers: []kernel.Watcher{orderA1c(), resultA1c(), diagnoseT2DM()},
	}
}

// orderA1c orders an HbA1c panel at every started encounter.
func orderA1c() kernel.Watcher {
	return kernel.Watcher{
		ID: "order-a1c",
		Match: func(e model.Event) bool {
			return e.Kind == model.EncounterStarted
		},
		React: func(e model.Event, ctx *kernel.Ctx) []model.Effect {
			return []model.Effect{model.Emit{Event: model.Event{
				Kind:      model.ObservationOrdered,
				RelatesTo: e.ID,
				Meta: model.Attributes{
					"loinc": model.String(loincA1c),
					"name":  model.String("Hemoglobin A1c"),
				},
			}}}
		},
	}
}

// resultA1c collects and results an ordered A1c: the patient's underlying
// a1c attribute plus assay noise.
func resultA1c() kernel.Watcher {
	return kernel.Watcher{
		ID: "result-a1c",
		Match: func(e model.Event) bool {
			return e.Kind == model.ObservationOrdered &&
				e.Meta.StrEq("loinc", loincA1c)
		},
		React: func(e model.Event, ctx *kernel.Ctx) []model.Effect {
			value := ctx.Snapshot().Num("a1c", 5.4) + ctx.Rand().Normal(0, 0.1)
			return []model.Effect{
				model.Emit{Event: model.Event{
					Kind:      model.ObservationCollected,
					RelatesTo: e.ID,
					Meta:      model.Attributes{"loinc": model.String(loincA1c)},
				}},
				model.Emit{Event: model.Event{
					Kind:      model.ObservationResulted,
					RelatesTo: e.ID,
					Meta: model.Attributes{
						"loinc": model.String(loincA1c),
						"value": model.Number(value),
						"unit":  model.String("%"),
					},
				}},
			}
		},
	}
}

// diagnoseT2DM reacts to a diabetic-range A1c result with a condition
// onset, a state change on the diabetes machine, and a metformin start.
func diagnoseT2DM() kernel.Watcher {
	return kernel.Watcher{
		ID: "diagnose-t2dm",
		Match: func(e model.Event) bool {
			if e.Kind != model.ObservationResulted || !e.Meta.StrEq("loinc", loincA1c) {
				return false
			}
			v, ok := e.Meta["value"].(model.Number)
			return ok && float64(v) >= 6.5
		},
		React: func(e model.Event, ctx *kernel.Ctx) []model.Effect {
			if ctx.Snapshot().Diseases[DiabetesMachine] == "T2DM" {
				return nil // already diagnosed
			}
			return []model.Effect{
				model.Emit{Event: model.Event{
					Kind:      model.ConditionOnset,
					RelatesTo: e.ID,
					Meta: model.Attributes{
						"icd10": model.String(icdT2DM),
						"name":  model.String("Type 2 diabetes mellitus"),
					},
				}},
				model.SetDisease{Machine: DiabetesMachine, State: "T2DM"},
				model.Emit{Event: model.Event{
					Kind: model.MedicationStarted,
					Meta: model.Attributes{"drug": model.String(metformin)},
				}},
			}
		},
	}
}

func diabetesMachine() kernel.Machine {
	return kernel.Machine{
		ID:      DiabetesMachine,
		States:  []string{"Healthy", "T2DM"},
		Initial: "Healthy",
		Transitions: []kernel.Transition{
			{
				From:   "Healthy",
				To:     "T2DM",
				Hazard: t2dmHazard,
				Form:   "loglinear",
				Explain: func(snap model.Snapshot, now float64) []kernel.Term {
					return []kernel.Term{
						{Name: "bmi", Value: 0.05 * (snap.Num("bmi", 25) - 25)},
						{Name: "a1c", Value: 0.4 * (snap.Num("a1c", 5.4) - 5.5)},
						{Name: "smoker", Value: smokerTerm(snap)},
					}
				},
				OnFire: func(ctx *kernel.Ctx) []model.Effect {
					return []model.Effect{model.Emit{Event: model.Event{
						Kind: model.ConditionOnset,
						Meta: model.Attributes{
							"icd10": model.String(icdT2DM),
							"name":  model.String("Type 2 diabetes mellitus"),
						},
					}}}
				},
			},
		},
	}
}

// t2dmHazard is a log-linear model over BMI, A1c, and smoking status,
// expressed as a daily rate.
func t2dmHazard(snap model.Snapshot, now float64, r *rng.Source) float64 {
	exponent := -6.0 +
		0.05*(snap.Num("bmi", 25)-25) +
		0.4*(snap.Num("a1c", 5.4)-5.5) +
		smokerTerm(snap)
	return math.Exp(exponent) / 365.0
}

func smokerTerm(snap model.Snapshot) float64 {
	if snap.Flag("smoker") {
		return 0.3
	}
	return 0
}
