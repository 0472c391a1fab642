package modules

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/careforge/cohort/internal/kernel"
	"github.com/careforge/cohort/internal/model"
	"github.com/careforge/cohort/internal/rng"
)

// Attribute keys the runtime itself maintains.
const (
	AgeYearsAttr   = "AGE_YEARS"
	SexAtBirthAttr = "SEX_AT_BIRTH"
)

const (
	maxAge          = 115.0
	defaultStartAge = 18.0
	// patientSeedStride spaces per-patient seeds; 7919 is prime so
	// consecutive patients land far apart in seed space.
	patientSeedStride = 7919
)

// Runner drives the month-stepped simulation for a cohort.
type Runner struct {
	Attributes []AttributeModule
	Diseases   []DiseaseModule
	Limits     map[string]model.Limits
	Seed       uint32
	// HorizonYears bounds the routine-encounter series relative to the
	// start age. Zero means the default 35 years.
	HorizonYears float64
	Logger       *slog.Logger
}

// Run simulates n patients sequentially and returns them.
func (r *Runner) Run(n int) []*Patient {
	patients := make([]*Patient, n)
	for i := 0; i < n; i++ {
		patients[i] = r.RunPatient(i)
	}
	return patients
}

// RunPatient simulates one patient. The per-patient RNG is seeded from the
// world seed and the patient index so patients are independent and the
// whole cohort is reproducible from a single seed.
func (r *Runner) RunPatient(index int) *Patient {
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}
	horizon := r.HorizonYears
	if horizon <= 0 {
		horizon = 35
	}

	src := rng.New(r.Seed + uint32(index)*patientSeedStride)
	birthYear := 1940 + int(src.Uniform()*60)

	p := &Patient{
		Index:      index,
		ID:         fmt.Sprintf("p%d", index),
		BirthYear:  birthYear,
		Attributes: make(model.Attributes),
		Signals:    make(map[string]float64),
		Diagnoses:  make(map[string]bool),
		MedsOn:     make(map[string]bool),
	}

	// Attribute generation, clamped to declared limits.
	for _, am := range r.Attributes {
		res := am.Generate(src.Child(am.ID), birthYear)
		for k, v := range res.Attributes {
			if lim, ok := r.Limits[k]; ok {
				v = lim.Clamp(v)
			}
			p.Attributes[k] = v
		}
		for k, v := range res.Signals {
			p.Signals[k] = v
		}
		if res.SexAtBirth != "" {
			if _, ok := p.Attributes[SexAtBirthAttr]; !ok {
				p.Attributes[SexAtBirthAttr] = model.String(res.SexAtBirth)
			}
		}
	}

	startAge := p.Attr(AgeYearsAttr, defaultStartAge)

	queue := kernel.NewQueue[model.Record]()
	ctx := &SimContext{
		patient: p,
		r:       src,
		queue:   queue,
		limits:  r.Limits,
		log:     log,
		now:     startAge,
	}

	r.scheduleEncounters(src, queue, startAge, horizon)
	r.scheduleDeath(src, queue, startAge)

	for i := range r.Diseases {
		if r.Diseases[i].Init != nil {
			safeCall(log, p.ID, "init", r.Diseases[i].ID, func() {
				r.Diseases[i].Init(p, ctx)
			})
		}
	}
	eligible := r.eligibility(log, p)

	// Main loop: month-step between events, record each event, stop on
	// death.
	lastT := startAge
	for queue.Len() > 0 {
		t, rec, _ := queue.Pop()

		months := int((t - lastT) * 12)
		for m := 0; m < months; m++ {
			age := lastT + float64(m+1)/12
			ctx.now = age
			p.Attributes[AgeYearsAttr] = model.Number(age)

			for i := range r.Attributes {
				if r.Attributes[i].Update == nil {
					continue
				}
				am := &r.Attributes[i]
				safeCall(log, p.ID, "update", am.ID, func() {
					am.Update(p, ctx, 1.0/12)
				})
			}
			eligible = r.eligibility(log, p)
			r.stepDiseases(log, p, ctx, eligible)
		}

		ctx.now = t
		p.Attributes[AgeYearsAttr] = model.Number(t)
		rec.T = t
		p.Events = append(p.Events, rec)

		if rec.Type == model.RecEncounter {
			r.stepDiseases(log, p, ctx, eligible)
		}
		if rec.Type == model.RecDeath {
			break
		}
		lastT = t
	}

	return p
}

// scheduleEncounters enqueues the routine-encounter series: cadence by
// start age, +/- 3 months of jitter per visit, beginning within a year of
// the start, running to the horizon or age 115.
func (r *Runner) scheduleEncounters(src *rng.Source, q *kernel.Queue[model.Record], startAge, horizon float64) {
	cadence := 14.0
	switch {
	case startAge < 40:
		cadence = 18
	case startAge >= 65:
		cadence = 10
	}

	end := math.Min(startAge+horizon, maxAge)
	t := startAge + src.Uniform()
	for t < end {
		q.Push(t, model.Record{Type: model.RecEncounter, Payload: model.EncounterPayload{Kind: "PCP"}})
		jitter := src.Uniform()*6 - 3
		t += (cadence + jitter) / 12
	}
}

// scheduleDeath samples a death age from a logistic distribution
// (mean 88, scale 10), rejecting implausible draws, and omits the death
// entirely with an age-dependent probability.
func (r *Runner) scheduleDeath(src *rng.Source, q *kernel.Queue[model.Record], startAge float64) {
	deathAge := math.Inf(1)
	for tries := 0; tries < 200; tries++ {
		u := src.Uniform()
		x := 88 + 10*math.Log(u/(1-u))
		if x > startAge+0.75 && x < maxAge {
			deathAge = x
			break
		}
	}

	pOmit := 0.36 - 0.0035*math.Max(0, startAge-35)
	pOmit = math.Min(math.Max(pOmit, 0.15), 0.5)
	if src.Uniform() < pOmit {
		return
	}
	if !math.IsInf(deathAge, 1) {
		q.Push(deathAge, model.Record{Type: model.RecDeath, Payload: model.DeathPayload{}})
	}
}

// eligibility evaluates every disease's Eligible hook; a panic counts as
// not eligible.
func (r *Runner) eligibility(log *slog.Logger, p *Patient) []bool {
	out := make([]bool, len(r.Diseases))
	for i := range r.Diseases {
		dm := &r.Diseases[i]
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("eligibility check failed, treating as not eligible",
						"pid", p.ID, "disease", dm.ID, "panic", rec)
					out[i] = false
				}
			}()
			out[i] = dm.Eligible(p)
		}()
	}
	return out
}

func (r *Runner) stepDiseases(log *slog.Logger, p *Patient, ctx *SimContext, eligible []bool) {
	for i := range r.Diseases {
		if !eligible[i] {
			continue
		}
		dm := &r.Diseases[i]
		safeCall(log, p.ID, "step", dm.ID, func() {
			dm.Step(p, ctx)
		})
	}
}

// safeCall runs a module hook, logging a panic instead of aborting the
// patient. Prior side effects are not rolled back.
func safeCall(log *slog.Logger, pid, hook, module string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("module hook failed",
				"pid", pid, "hook", hook, "module", module, "panic", rec)
		}
	}()
	fn()
}
