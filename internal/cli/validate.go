package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/careforge/cohort/internal/clinical"
	"github.com/careforge/cohort/internal/world"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <world.json>",
		Short: "Validate a world manifest",
		Long:  "Checks a world manifest against the schema, loads its attribute catalog, and verifies that every referenced module resolves.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0], opts)
		},
	}
}

func runValidate(cmd *cobra.Command, path string, opts *RootOptions) error {
	log := opts.Logger()

	m, err := world.LoadManifest(path)
	if err != nil {
		return WrapExitError(ExitConfig, "invalid world manifest", err)
	}

	var limitCount int
	if m.AttributeCatalogPath != "" {
		cat, err := world.LoadCatalog(m.AttributeCatalogPath)
		if err != nil {
			return WrapExitError(ExitConfig, "invalid attribute catalog", err)
		}
		limitCount = len(cat.Limits())
	}

	var missing []string
	for _, ref := range m.AttributeModules {
		if _, ok := clinical.LookupAttribute(ref.ID); !ok {
			missing = append(missing, "attribute:"+ref.ID)
		}
	}
	for _, ref := range m.DiseaseModules {
		if _, ok := clinical.LookupDisease(ref.ID); !ok {
			missing = append(missing, "disease:"+ref.ID)
		}
	}
	if len(missing) > 0 {
		return NewExitError(ExitConfig,
			fmt.Sprintf("world references unresolvable modules: %v", missing))
	}

	if r := m.Acceptance.AttributeRatio(); r < lowAcceptance {
		log.Warn("low attribute-module acceptance in world", "ratio", r)
	}
	if r := m.Acceptance.DiseaseRatio(); r < lowAcceptance {
		log.Warn("low disease-module acceptance in world", "ratio", r)
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"ok: version %s, seed %d, %d attribute modules, %d disease modules, %d limited attributes\n",
		m.Version, m.Seed, len(m.AttributeModules), len(m.DiseaseModules), limitCount)
	return nil
}
