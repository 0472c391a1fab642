package clinical

import (
	"github.com/careforge/cohort/internal/kernel"
	"github.com/careforge/cohort/internal/modules"
)

// The registry resolves world-manifest module ids to builtin capability
// records. Source worlds referenced modules by file path and loaded them
// dynamically; here a module id names a compiled-in implementation.

var attributeRegistry = map[string]func() modules.AttributeModule{
	"demographics": Demographics,
}

var diseaseRegistry = map[string]func() modules.DiseaseModule{
	"obesity": Obesity,
	"t2dm":    TypeTwoDiabetes,
}

var machineRegistry = map[string]func() kernel.Machine{
	EncountersMachine: encountersMachine,
	DiabetesMachine:   diabetesMachine,
}

// LookupAttribute resolves an attribute module id.
func LookupAttribute(id string) (modules.AttributeModule, bool) {
	f, ok := attributeRegistry[id]
	if !ok {
		return modules.AttributeModule{}, false
	}
	return f(), true
}

// LookupDisease resolves a disease module id.
func LookupDisease(id string) (modules.DiseaseModule, bool) {
	f, ok := diseaseRegistry[id]
	if !ok {
		return modules.DiseaseModule{}, false
	}
	return f(), true
}

// LookupMachine resolves a kernel machine id.
func LookupMachine(id string) (kernel.Machine, bool) {
	f, ok := machineRegistry[id]
	if !ok {
		return kernel.Machine{}, false
	}
	return f(), true
}
