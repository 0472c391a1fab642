package cli

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Runtime selectors for the simulate command.
const (
	RuntimeModules = "modules"
	RuntimeKernel  = "kernel"
)

// RunConfig carries every knob of a simulation run. Precedence, lowest to
// highest: built-in defaults, COHORT_* environment variables, the --config
// YAML file, explicit command-line flags.
type RunConfig struct {
	World        string  `yaml:"world" env:"COHORT_WORLD"`
	N            int     `yaml:"n" env:"COHORT_PATIENTS" envDefault:"10"`
	Out          string  `yaml:"out" env:"COHORT_OUT" envDefault:"out"`
	Seed         uint32  `yaml:"seed" env:"COHORT_SEED" envDefault:"42"`
	Runtime      string  `yaml:"runtime" env:"COHORT_RUNTIME" envDefault:"modules"`
	HorizonYears float64 `yaml:"horizonYears" env:"COHORT_HORIZON_YEARS" envDefault:"35"`
	HorizonDays  float64 `yaml:"horizonDays" env:"COHORT_HORIZON_DAYS" envDefault:"1825"`
	DB           string  `yaml:"db" env:"COHORT_DB"`
	FHIR         bool    `yaml:"fhir" env:"COHORT_FHIR"`
	Explain      bool    `yaml:"explain" env:"COHORT_EXPLAIN"`
}

// LoadRunConfig builds a RunConfig from the environment and, when path is
// non-empty, a YAML config file layered on top.
func LoadRunConfig(path string) (*RunConfig, error) {
	cfg := &RunConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, WrapExitError(ExitConfig, "parsing environment", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, WrapExitError(ExitConfig, "reading config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, WrapExitError(ExitConfig, "parsing config file", err)
		}
	}
	return cfg, nil
}

// Validate rejects configurations the run loop cannot honor.
func (c *RunConfig) Validate() error {
	if c.N <= 0 {
		return NewExitError(ExitConfig, fmt.Sprintf("patient count must be positive, got %d", c.N))
	}
	if c.Runtime != RuntimeModules && c.Runtime != RuntimeKernel {
		return NewExitError(ExitConfig,
			fmt.Sprintf("unknown runtime %q: must be %q or %q", c.Runtime, RuntimeModules, RuntimeKernel))
	}
	if c.HorizonYears <= 0 {
		return NewExitError(ExitConfig, "horizonYears must be positive")
	}
	if c.HorizonDays <= 0 {
		return NewExitError(ExitConfig, "horizonDays must be positive")
	}
	return nil
}
