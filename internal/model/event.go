package model

import (
	"fmt"

	"github.com/google/uuid"
)

// EventKind enumerates the closed set of clinical events the kernel records.
type EventKind string

const (
	EncounterScheduled   EventKind = "EncounterScheduled"
	EncounterStarted     EventKind = "EncounterStarted"
	EncounterFinished    EventKind = "EncounterFinished"
	ObservationOrdered   EventKind = "ObservationOrdered"
	ObservationCollected EventKind = "ObservationCollected"
	ObservationResulted  EventKind = "ObservationResulted"
	MedicationStarted    EventKind = "MedicationStarted"
	MedicationStopped    EventKind = "MedicationStopped"
	ProcedurePerformed   EventKind = "ProcedurePerformed"
	ConditionOnset       EventKind = "ConditionOnset"
	ConditionResolved    EventKind = "ConditionResolved"
	Death                EventKind = "Death"
)

// Event is a kernel event-log entry. Time is measured in days from
// simulation start. Meta carries kind-specific fields (loinc, icd10, value,
// drug, kind of encounter) as scalar values.
type Event struct {
	ID        string     `json:"id"`
	PID       string     `json:"pid"`
	Time      float64    `json:"t"`
	Kind      EventKind  `json:"kind"`
	RelatesTo string     `json:"relatesTo,omitempty"`
	Meta      Attributes `json:"meta,omitempty"`
}

// eventNamespace anchors deterministic event IDs. Event identity must be a
// pure function of (pid, seq) so repeated runs of the same seed produce
// byte-identical logs.
var eventNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// EventID derives a stable UUIDv5 for the seq-th event of a patient.
func EventID(pid string, seq int64) string {
	return uuid.NewSHA1(eventNamespace, []byte(fmt.Sprintf("%s:%d", pid, seq))).String()
}
