package cli

import (
	"fmt"
	"log/slog"

	"github.com/careforge/cohort/internal/clinical"
	"github.com/careforge/cohort/internal/kernel"
	"github.com/careforge/cohort/internal/model"
	"github.com/careforge/cohort/internal/modules"
	"github.com/careforge/cohort/internal/world"
)

// lowAcceptance flags worlds whose builder rejected most candidate modules.
const lowAcceptance = 0.5

// content is a resolved simulation roster: the modules and machines a run
// will execute, plus the attribute limits that clamp them.
type content struct {
	attrs    []modules.AttributeModule
	diseases []modules.DiseaseModule
	machines []kernel.Machine
	limits   map[string]model.Limits
	version  string
}

// builtinContent is the roster used when no world manifest is given.
func builtinContent() *content {
	return &content{
		attrs:    []modules.AttributeModule{clinical.Demographics()},
		diseases: []modules.DiseaseModule{clinical.Obesity(), clinical.TypeTwoDiabetes()},
		machines: clinical.Machines(),
		version:  "builtin",
	}
}

// resolveContent loads a world manifest and resolves every module reference
// against the builtin registry. An unresolvable id is a configuration error.
func resolveContent(worldPath string, log *slog.Logger) (*content, error) {
	if worldPath == "" {
		return builtinContent(), nil
	}

	m, err := world.LoadManifest(worldPath)
	if err != nil {
		return nil, WrapExitError(ExitConfig, "loading world manifest", err)
	}

	if r := m.Acceptance.AttributeRatio(); r < lowAcceptance {
		log.Warn("low attribute-module acceptance in world", "ratio", r)
	}
	if r := m.Acceptance.DiseaseRatio(); r < lowAcceptance {
		log.Warn("low disease-module acceptance in world", "ratio", r)
	}

	c := &content{version: m.Version}

	if m.AttributeCatalogPath != "" {
		cat, err := world.LoadCatalog(m.AttributeCatalogPath)
		if err != nil {
			return nil, WrapExitError(ExitConfig, "loading attribute catalog", err)
		}
		c.limits = cat.Limits()
	}

	for _, ref := range m.AttributeModules {
		am, ok := clinical.LookupAttribute(ref.ID)
		if !ok {
			return nil, NewExitError(ExitConfig,
				fmt.Sprintf("world references unknown attribute module %q", ref.ID))
		}
		c.attrs = append(c.attrs, am)
	}
	for _, ref := range m.DiseaseModules {
		dm, ok := clinical.LookupDisease(ref.ID)
		if !ok {
			return nil, NewExitError(ExitConfig,
				fmt.Sprintf("world references unknown disease module %q", ref.ID))
		}
		c.diseases = append(c.diseases, dm)
	}

	// Kernel machines: the encounter machine always runs; disease machines
	// run when the manifest names a disease with a kernel counterpart.
	enc, _ := clinical.LookupMachine(clinical.EncountersMachine)
	c.machines = append(c.machines, enc)
	for _, ref := range m.DiseaseModules {
		if mach, ok := clinical.LookupMachine(ref.ID); ok {
			c.machines = append(c.machines, mach)
		}
	}

	return c, nil
}
