package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestLimits_ClampNumber(t *testing.T) {
	l := Limits{Min: f(0), Max: f(10)}

	assert.Equal(t, Number(0), l.Clamp(Number(-5)))
	assert.Equal(t, Number(10), l.Clamp(Number(99)))
	assert.Equal(t, Number(7), l.Clamp(Number(7)))
}

func TestLimits_ClampIdempotent(t *testing.T) {
	l := Limits{Min: f(1.5), Max: f(8.25)}

	once := l.Clamp(Number(100))
	twice := l.Clamp(once)
	assert.Equal(t, once, twice)
}

func TestLimits_NonNumericPassThrough(t *testing.T) {
	l := Limits{Min: f(0), Max: f(1)}

	assert.Equal(t, String("hello"), l.Clamp(String("hello")))
	assert.Equal(t, Bool(true), l.Clamp(Bool(true)))
}

func TestAttributes_UnmarshalJSON(t *testing.T) {
	var a Attributes
	err := json.Unmarshal([]byte(`{"ageYr": 60, "sex": "M", "smoker": true}`), &a)
	require.NoError(t, err)

	assert.Equal(t, Number(60), a["ageYr"])
	assert.Equal(t, String("M"), a["sex"])
	assert.Equal(t, Bool(true), a["smoker"])
}

func TestAttributes_UnmarshalJSON_RejectsComposite(t *testing.T) {
	var a Attributes
	err := json.Unmarshal([]byte(`{"bad": [1,2]}`), &a)
	assert.Error(t, err)
}

func TestEventID_Deterministic(t *testing.T) {
	assert.Equal(t, EventID("p0", 3), EventID("p0", 3))
	assert.NotEqual(t, EventID("p0", 3), EventID("p0", 4))
	assert.NotEqual(t, EventID("p0", 3), EventID("p1", 3))
}

func TestMarshalCanonical_SortedKeys(t *testing.T) {
	b, err := MarshalCanonical(map[string]any{"z": 1, "a": 2})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"z":1}`, string(b))
}

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	b, err := MarshalCanonical("a<b&c>d")
	require.NoError(t, err)
	assert.Equal(t, `"a<b&c>d"`, string(b))
}

func TestMarshalCanonical_FloatShortest(t *testing.T) {
	b, err := MarshalCanonical(map[string]any{"t": 1825.0, "v": 6.5})
	require.NoError(t, err)
	assert.Equal(t, `{"t":1825,"v":6.5}`, string(b))
}

func TestCanonicalEventLog_StableAcrossRuns(t *testing.T) {
	events := []Event{
		{ID: EventID("p0", 0), PID: "p0", Time: 1.5, Kind: EncounterStarted,
			Meta: Attributes{"kind": String("PCP")}},
		{ID: EventID("p0", 1), PID: "p0", Time: 1.5, Kind: ObservationOrdered,
			RelatesTo: EventID("p0", 0), Meta: Attributes{"loinc": String("4548-4")}},
	}

	a, err := CanonicalEventLog(events)
	require.NoError(t, err)
	b, err := CanonicalEventLog(events)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRecord_UnmarshalJSON_Dispatch(t *testing.T) {
	var r Record
	err := json.Unmarshal([]byte(`{"t":42.5,"type":"lab","payload":{"id":"4548-4","name":"HbA1c","value":7.1,"unit":"%"}}`), &r)
	require.NoError(t, err)

	p, ok := r.Payload.(LabPayload)
	require.True(t, ok)
	assert.Equal(t, "4548-4", p.ID)
	assert.Equal(t, 7.1, p.Value)
}

func TestRecord_UnmarshalJSON_UnknownType(t *testing.T) {
	var r Record
	err := json.Unmarshal([]byte(`{"t":1,"type":"visit","payload":{}}`), &r)
	assert.Error(t, err)
}
