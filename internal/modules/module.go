// Package modules implements the month-stepped driver that advances a
// patient between scheduled encounter and death events, calling
// attribute-update hooks and per-disease step hooks along the way.
//
// It shares the RNG, the event model, and the priority queue with the
// kernel but measures time in years of patient age rather than days.
//
// Modules are explicit capability records, not duck-typed objects: a
// module is a struct of function fields, and optional capabilities are
// nil fields.
package modules

import (
	"github.com/careforge/cohort/internal/model"
	"github.com/careforge/cohort/internal/rng"
)

// GenerateResult is the output of an attribute module's Generate hook.
type GenerateResult struct {
	Attributes model.Attributes
	Signals    map[string]float64
	// SexAtBirth is optional; when non-empty it is written to the
	// SEX_AT_BIRTH attribute unless a module already produced one.
	SexAtBirth string
}

// AttributeModule generates and maintains a slice of patient attributes.
type AttributeModule struct {
	ID       string
	Category string
	Summary  string

	// Generate produces the module's initial attributes from a
	// per-module seeded source and the patient's birth year.
	Generate func(r *rng.Source, birthYear int) GenerateResult

	// Update advances the module's attributes by dtYears. Optional.
	Update func(p *Patient, ctx *SimContext, dtYears float64)

	// Test is a self-check hook used by world acceptance. Optional.
	Test func(p *Patient) error
}

// DiseaseModule models one condition's onset and progression.
type DiseaseModule struct {
	ID      string
	Version string
	Summary string

	// Init runs once per patient before the event loop. Optional.
	Init func(p *Patient, ctx *SimContext)

	// Eligible gates Step calls. A panic is treated as not eligible.
	Eligible func(p *Patient) bool

	// Risk reports the instantaneous annual risk, used by explainers.
	Risk func(p *Patient) float64

	// Step advances the disease by one month (and once more on each
	// encounter).
	Step func(p *Patient, ctx *SimContext)

	// Invariants is a self-check hook. Optional.
	Invariants func(p *Patient) error

	// Test is a self-check hook used by world acceptance. Optional.
	Test func(p *Patient) error
}

// Patient is the module runtime's unit of simulation. Events is its
// append-only record log, time-stamped in years of age.
type Patient struct {
	Index      int              `json:"index"`
	ID         string           `json:"id"`
	BirthYear  int              `json:"birthYear"`
	Attributes model.Attributes `json:"attributes"`
	// Signals is the modules' numeric scratchpad; keys are informally
	// agreed between modules and deliberately untyped.
	Signals   map[string]float64 `json:"signals,omitempty"`
	Diagnoses map[string]bool    `json:"diagnoses,omitempty"`
	MedsOn    map[string]bool    `json:"medsOn,omitempty"`
	Events    []model.Record     `json:"events"`
}

// Attr returns the numeric value of an attribute, or def when absent.
func (p *Patient) Attr(id string, def float64) float64 {
	if v, ok := p.Attributes[id].(model.Number); ok {
		return float64(v)
	}
	return def
}

// HasDiagnosis reports whether a diagnosis code has been recorded.
func (p *Patient) HasDiagnosis(code string) bool { return p.Diagnoses[code] }
