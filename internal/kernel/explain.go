package kernel

import "fmt"

// fireDetail captures the rate computation behind a scheduled transition so
// explain mode can print it when the item fires.
type fireDetail struct {
	base     float64
	modified []modStep
	final    float64
}

// modStep is the rate after one modifier application.
type modStep struct {
	id   string
	rate float64
}

// printExplain writes the fired-transition trace line, followed by the
// declared hazard term breakdown and each modifier's post-application rate.
func (k *Kernel) printExplain(it *item, tr *Transition) {
	fmt.Fprintf(k.explainTo, "%s :: %s %s→%s @ t=%.3f λ=%.6g\n",
		k.pid, it.machine, tr.From, tr.To, k.now, it.detail.final)

	if tr.Explain != nil {
		form := tr.Form
		if form == "" {
			form = "additive"
		}
		for _, term := range tr.Explain(k.snap, k.now) {
			fmt.Fprintf(k.explainTo, "    %s term %s = %.6g\n", form, term.Name, term.Value)
		}
	}
	for _, step := range it.detail.modified {
		fmt.Fprintf(k.explainTo, "    modifier %s → λ=%.6g\n", step.id, step.rate)
	}
}
