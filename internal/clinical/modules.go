package clinical

import (
	"github.com/careforge/cohort/internal/model"
	"github.com/careforge/cohort/internal/modules"
	"github.com/careforge/cohort/internal/rng"
)

// BaselineSnapshot samples a kernel-ready initial snapshot for one patient,
// using the same distributions as the demographics module but keyed the way
// the kernel machines read them. The returned birth year anchors exported
// dates.
func BaselineSnapshot(r *rng.Source) (model.Snapshot, int) {
	birthYear := 1940 + int(r.Uniform()*60)
	sex := "F"
	if r.Uniform() < 0.5 {
		sex = "M"
	}
	snap := model.Snapshot{Attrs: model.Attributes{
		"ageYr":  model.Number(18 + r.Uniform()*62),
		"sex":    model.String(sex),
		"bmi":    model.Number(r.Normal(27.5, 4.5)),
		"smoker": model.Bool(r.Uniform() < 0.18),
		"a1c":    model.Number(r.Normal(5.6, 0.5)),
	}}
	return snap, birthYear
}

// Demographics generates the core person attributes: age, sex at birth,
// BMI, smoking status, and baseline A1c.
func Demographics() modules.AttributeModule {
	return modules.AttributeModule{
		ID:       "demographics",
		Category: "demographics",
		Summary:  "age, sex at birth, BMI, smoking status, baseline A1c",
		Generate: func(r *rng.Source, birthYear int) modules.GenerateResult {
			sex := "F"
			if r.Uniform() < 0.5 {
				sex = "M"
			}
			return modules.GenerateResult{
				Attributes: model.Attributes{
					modules.AgeYearsAttr: model.Number(18 + r.Uniform()*62),
					"BMI":                model.Number(r.Normal(27.5, 4.5)),
					"SMOKER":             model.Bool(r.Uniform() < 0.18),
					"A1C":                model.Number(r.Normal(5.6, 0.5)),
				},
				SexAtBirth: sex,
			}
		},
		Update: func(p *modules.Patient, ctx *modules.SimContext, dtYears float64) {
			// Slow BMI drift with age; the clamp keeps it in range.
			bmi := p.Attr("BMI", 27.5)
			ctx.SetAttr("BMI", model.Number(bmi+0.1*dtYears))
		},
	}
}

// Obesity diagnoses E66 for patients whose BMI crosses the obesity
// threshold.
func Obesity() modules.DiseaseModule {
	return modules.DiseaseModule{
		ID:      "obesity",
		Version: "1",
		Summary: "obesity diagnosis driven by BMI",
		Eligible: func(p *modules.Patient) bool {
			return p.Attr("BMI", 0) >= 30
		},
		Risk: func(p *modules.Patient) float64 {
			if p.Attr("BMI", 0) >= 30 {
				return 0.6
			}
			return 0
		},
		Step: func(p *modules.Patient, ctx *modules.SimContext) {
			if p.HasDiagnosis("E66") {
				return
			}
			// Eligible patients are diagnosed at roughly 60%/year,
			// stepped monthly.
			if ctx.RngUniform() < 0.6/12 {
				ctx.Emit(model.RecDiagnosis, model.DiagnosisPayload{Code: "E66", Name: "Obesity"})
			}
		},
	}
}

// TypeTwoDiabetes diagnoses E11.9 and starts metformin for high-risk
// patients.
func TypeTwoDiabetes() modules.DiseaseModule {
	risk := func(p *modules.Patient) float64 {
		r := 0.0
		if p.Attr("BMI", 25) >= 30 {
			r += 0.02
		}
		if p.Attr("A1C", 5.4) >= 5.7 {
			r += 0.04
		}
		if p.HasDiagnosis("E66") {
			r += 0.01
		}
		return r
	}
	return modules.DiseaseModule{
		ID:      "t2dm",
		Version: "1",
		Summary: "type 2 diabetes onset from BMI and A1c",
		Eligible: func(p *modules.Patient) bool {
			return p.Attr("A1C", 5.4) >= 5.7 || p.Attr("BMI", 25) >= 30
		},
		Risk: risk,
		Step: func(p *modules.Patient, ctx *modules.SimContext) {
			if p.HasDiagnosis(icdT2DM) {
				return
			}
			if ctx.RngUniform() < risk(p)/12 {
				ctx.Emit(model.RecDiagnosis, model.DiagnosisPayload{
					Code: icdT2DM, Name: "Type 2 diabetes mellitus",
				})
				ctx.Emit(model.RecLab, model.LabPayload{
					ID: loincA1c, Name: "Hemoglobin A1c",
					Value: 6.5 + ctx.RngUniform()*2, Unit: "%",
				})
				ctx.Emit(model.RecMedication, model.MedicationPayload{Drug: metformin})
			}
		},
	}
}
