package model

import (
	"encoding/json"
	"fmt"
)

// RecordType enumerates the flat output record types of the module runtime.
type RecordType string

const (
	RecEncounter  RecordType = "encounter"
	RecLab        RecordType = "lab"
	RecDiagnosis  RecordType = "diagnosis"
	RecMedication RecordType = "medication"
	RecProcedure  RecordType = "procedure"
	RecDeath      RecordType = "death"
)

// Record is a module-runtime event record. T is measured in years of
// patient age.
type Record struct {
	T       float64    `json:"t"`
	Type    RecordType `json:"type"`
	Payload Payload    `json:"payload"`
}

// Payload is a sealed interface over the per-type payload shapes.
type Payload interface {
	payload() // sealed
}

// EncounterPayload carries the encounter setting.
type EncounterPayload struct {
	Kind string `json:"kind"` // "PCP" | "ED" | "Inpatient" | "Specialty"
}

func (EncounterPayload) payload() {}

// LabPayload carries a resulted lab value.
type LabPayload struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

func (LabPayload) payload() {}

// DiagnosisPayload carries a coded diagnosis.
type DiagnosisPayload struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (DiagnosisPayload) payload() {}

// MedicationPayload carries a started medication.
type MedicationPayload struct {
	Drug string `json:"drug"`
	Dose string `json:"dose,omitempty"`
}

func (MedicationPayload) payload() {}

// ProcedurePayload carries a performed procedure.
type ProcedurePayload struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (ProcedurePayload) payload() {}

// DeathPayload is empty by contract.
type DeathPayload struct{}

func (DeathPayload) payload() {}

// UnmarshalJSON decodes a record, dispatching the payload shape on type.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		T       float64         `json:"t"`
		Type    RecordType      `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.T = raw.T
	r.Type = raw.Type

	var err error
	switch raw.Type {
	case RecEncounter:
		var p EncounterPayload
		err = json.Unmarshal(raw.Payload, &p)
		r.Payload = p
	case RecLab:
		var p LabPayload
		err = json.Unmarshal(raw.Payload, &p)
		r.Payload = p
	case RecDiagnosis:
		var p DiagnosisPayload
		err = json.Unmarshal(raw.Payload, &p)
		r.Payload = p
	case RecMedication:
		var p MedicationPayload
		err = json.Unmarshal(raw.Payload, &p)
		r.Payload = p
	case RecProcedure:
		var p ProcedurePayload
		err = json.Unmarshal(raw.Payload, &p)
		r.Payload = p
	case RecDeath:
		r.Payload = DeathPayload{}
	default:
		return fmt.Errorf("unknown record type %q", raw.Type)
	}
	return err
}
