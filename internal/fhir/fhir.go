// Package fhir maps recorded simulation events to FHIR-shaped resources.
//
// The mapping is a pure function over a finished patient: no I/O, no
// mutation of the inputs. Only the resource fields downstream tooling
// actually consumes are emitted; this is FHIR-lite, not a conformant
// server payload.
package fhir

import (
	"fmt"
	"math"
	"time"

	"github.com/careforge/cohort/internal/model"
	"github.com/careforge/cohort/internal/modules"
)

const (
	systemLOINC = "http://loinc.org"
	systemICD10 = "http://hl7.org/fhir/sid/icd-10-cm"
)

// Patient is the patient resource.
type Patient struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id"`
	Gender       string `json:"gender,omitempty"`
	BirthDate    string `json:"birthDate"`
}

// Coding is one system/code pair.
type Coding struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
}

// CodeableConcept wraps codings.
type CodeableConcept struct {
	Coding []Coding `json:"coding"`
	Text   string   `json:"text,omitempty"`
}

// Quantity is a valued measurement.
type Quantity struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// Reference points at another resource.
type Reference struct {
	Reference string `json:"reference"`
}

// Observation is a resulted lab or measurement.
type Observation struct {
	ResourceType      string          `json:"resourceType"`
	ID                string          `json:"id"`
	Status            string          `json:"status"`
	Code              CodeableConcept `json:"code"`
	Subject           Reference       `json:"subject"`
	EffectiveDateTime string          `json:"effectiveDateTime"`
	ValueQuantity     *Quantity       `json:"valueQuantity,omitempty"`
}

// Condition is a recorded diagnosis.
type Condition struct {
	ResourceType  string          `json:"resourceType"`
	ID            string          `json:"id"`
	Code          CodeableConcept `json:"code"`
	Subject       Reference       `json:"subject"`
	OnsetDateTime string          `json:"onsetDateTime"`
}

// Bundle is the export shape for one patient.
type Bundle struct {
	Patient      Patient       `json:"patient"`
	Observations []Observation `json:"observations"`
	Conditions   []Condition   `json:"conditions"`
}

// kernelDate converts a kernel timestamp (days from simulation start) to an
// ISO date anchored at January 1 of the birth year.
func kernelDate(birthYear int, tDays float64) string {
	base := time.Date(birthYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, int(math.Floor(tDays))).Format("2006-01-02")
}

// moduleDate converts a module-runtime timestamp (years of age) to a fixed
// July date in the corresponding calendar year.
func moduleDate(birthYear int, tYears float64) string {
	return fmt.Sprintf("%04d-07-01", birthYear+int(math.Floor(tYears)))
}

func gender(sex string) string {
	switch sex {
	case "M":
		return "male"
	case "F":
		return "female"
	}
	return ""
}

// FromEvents maps a kernel event log to a bundle. Observations come from
// resulted observations, conditions from condition onsets; other event kinds
// are not exported.
func FromEvents(pid string, birthYear int, sex string, events []model.Event) Bundle {
	b := Bundle{
		Patient: Patient{
			ResourceType: "Patient",
			ID:           pid,
			Gender:       gender(sex),
			BirthDate:    fmt.Sprintf("%04d-01-01", birthYear),
		},
		Observations: []Observation{},
		Conditions:   []Condition{},
	}
	subject := Reference{Reference: "Patient/" + pid}

	for _, e := range events {
		switch e.Kind {
		case model.ObservationResulted:
			obs := Observation{
				ResourceType:      "Observation",
				ID:                e.ID,
				Status:            "final",
				Subject:           subject,
				EffectiveDateTime: kernelDate(birthYear, e.Time),
			}
			if loinc, ok := e.Meta["loinc"].(model.String); ok {
				obs.Code = CodeableConcept{Coding: []Coding{{System: systemLOINC, Code: string(loinc)}}}
			}
			if v, ok := e.Meta["value"].(model.Number); ok {
				q := &Quantity{Value: float64(v)}
				if unit, ok := e.Meta["unit"].(model.String); ok {
					q.Unit = string(unit)
				}
				obs.ValueQuantity = q
			}
			b.Observations = append(b.Observations, obs)

		case model.ConditionOnset:
			cond := Condition{
				ResourceType:  "Condition",
				ID:            e.ID,
				Subject:       subject,
				OnsetDateTime: kernelDate(birthYear, e.Time),
			}
			if code, ok := e.Meta["icd10"].(model.String); ok {
				c := Coding{System: systemICD10, Code: string(code)}
				if name, ok := e.Meta["name"].(model.String); ok {
					c.Display = string(name)
				}
				cond.Code = CodeableConcept{Coding: []Coding{c}}
			}
			b.Conditions = append(b.Conditions, cond)
		}
	}
	return b
}

// FromPatient maps a module-runtime patient to a bundle. Lab records become
// observations, diagnosis records become conditions.
func FromPatient(p *modules.Patient) Bundle {
	sex := ""
	if v, ok := p.Attributes[modules.SexAtBirthAttr].(model.String); ok {
		sex = string(v)
	}
	b := Bundle{
		Patient: Patient{
			ResourceType: "Patient",
			ID:           p.ID,
			Gender:       gender(sex),
			BirthDate:    fmt.Sprintf("%04d-01-01", p.BirthYear),
		},
		Observations: []Observation{},
		Conditions:   []Condition{},
	}
	subject := Reference{Reference: "Patient/" + p.ID}

	for i, rec := range p.Events {
		switch pl := rec.Payload.(type) {
		case model.LabPayload:
			b.Observations = append(b.Observations, Observation{
				ResourceType:      "Observation",
				ID:                fmt.Sprintf("%s-obs-%d", p.ID, i),
				Status:            "final",
				Code:              CodeableConcept{Coding: []Coding{{System: systemLOINC, Code: pl.ID, Display: pl.Name}}},
				Subject:           subject,
				EffectiveDateTime: moduleDate(p.BirthYear, rec.T),
				ValueQuantity:     &Quantity{Value: pl.Value, Unit: pl.Unit},
			})
		case model.DiagnosisPayload:
			b.Conditions = append(b.Conditions, Condition{
				ResourceType:  "Condition",
				ID:            fmt.Sprintf("%s-cond-%d", p.ID, i),
				Code:          CodeableConcept{Coding: []Coding{{System: systemICD10, Code: pl.Code, Display: pl.Name}}},
				Subject:       subject,
				OnsetDateTime: moduleDate(p.BirthYear, rec.T),
			})
		}
	}
	return b
}
