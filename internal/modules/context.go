package modules

import (
	"log/slog"

	"github.com/careforge/cohort/internal/kernel"
	"github.com/careforge/cohort/internal/model"
	"github.com/careforge/cohort/internal/rng"
)

// SimContext is the surface modules see. now is the patient's age in
// years; it starts at the patient's start age, not at zero.
type SimContext struct {
	patient *Patient
	r       *rng.Source
	queue   *kernel.Queue[model.Record]
	limits  map[string]model.Limits
	log     *slog.Logger
	now     float64
}

// Now returns the current patient age in years.
func (c *SimContext) Now() float64 { return c.now }

// RngUniform draws from the patient's stream in (0,1).
func (c *SimContext) RngUniform() float64 { return c.r.Uniform() }

// RngNormal draws a normal deviate from the patient's stream.
func (c *SimContext) RngNormal(mu, sigma float64) float64 { return c.r.Normal(mu, sigma) }

// Emit records an event time-stamped at now. Diagnoses and medications are
// also reflected in the patient's Diagnoses/MedsOn maps.
func (c *SimContext) Emit(typ model.RecordType, payload model.Payload) {
	rec := model.Record{T: c.now, Type: typ, Payload: payload}
	c.patient.Events = append(c.patient.Events, rec)

	switch p := payload.(type) {
	case model.DiagnosisPayload:
		c.patient.Diagnoses[p.Code] = true
	case model.MedicationPayload:
		c.patient.MedsOn[p.Drug] = true
	}
}

// Schedule enqueues an event delayYears from now. Negative delays clamp
// to zero.
func (c *SimContext) Schedule(delayYears float64, typ model.RecordType, payload model.Payload) {
	if delayYears < 0 {
		delayYears = 0
	}
	c.queue.Push(c.now+delayYears, model.Record{Type: typ, Payload: payload})
}

// Get reads a signals scratchpad entry, zero when absent.
func (c *SimContext) Get(key string) float64 { return c.patient.Signals[key] }

// Set writes a signals scratchpad entry.
func (c *SimContext) Set(key string, v float64) { c.patient.Signals[key] = v }

// Attr reads an attribute value; nil when absent.
func (c *SimContext) Attr(id string) model.Value { return c.patient.Attributes[id] }

// SetAttr writes an attribute, re-applying the catalog clamp.
func (c *SimContext) SetAttr(id string, v model.Value) {
	if lim, ok := c.limits[id]; ok {
		v = lim.Clamp(v)
	}
	c.patient.Attributes[id] = v
}

// Log emits a debug line through the configured logger.
func (c *SimContext) Log(msg string) {
	c.log.Debug(msg, "pid", c.patient.ID, "age", c.now)
}
