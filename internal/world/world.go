// Package world loads and validates world manifests and attribute catalogs.
//
// A world manifest is a JSON document naming the attribute and disease
// modules that make up a simulated population, plus provenance counters from
// the world-building run that produced it. The attribute catalog carries
// per-attribute type, durability, and numeric limits.
//
// Both documents are validated against embedded CUE schemas before decoding,
// so a malformed world fails with a schema position rather than a zero-value
// surprise deep in the runtime.
package world

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/careforge/cohort/internal/model"
)

//go:embed schema.cue
var schemaSource string

// Manifest describes a generated world: its seed, the generating model, and
// the module roster.
type Manifest struct {
	Version              string             `json:"version"`
	Seed                 uint32             `json:"seed"`
	Model                string             `json:"model"`
	Categories           []string           `json:"categories"`
	AttributeModules     []AttributeRef     `json:"attributeModules"`
	DiseaseModules       []DiseaseRef       `json:"diseaseModules"`
	AttributeCatalogPath string             `json:"attributeCatalogPath,omitempty"`
	Acceptance           AcceptanceCounters `json:"acceptance"`
}

// AttributeRef names one attribute module in the manifest roster.
type AttributeRef struct {
	ID            string `json:"id"`
	Path          string `json:"path"`
	Category      string `json:"category"`
	DeclaredCount int    `json:"declaredCount"`
}

// DiseaseRef names one disease module in the manifest roster.
type DiseaseRef struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Name string `json:"name"`
}

// AcceptanceCounters records how many candidate modules the world builder
// attempted and accepted. A low acceptance ratio usually means the generating
// model struggled with the category list.
type AcceptanceCounters struct {
	AttributesAccepted  int `json:"attributesAccepted"`
	AttributesAttempted int `json:"attributesAttempted"`
	DiseasesAccepted    int `json:"diseasesAccepted"`
	DiseasesAttempted   int `json:"diseasesAttempted"`
}

// AttributeRatio returns accepted/attempted for attribute modules, or 1 when
// nothing was attempted.
func (a AcceptanceCounters) AttributeRatio() float64 {
	if a.AttributesAttempted == 0 {
		return 1
	}
	return float64(a.AttributesAccepted) / float64(a.AttributesAttempted)
}

// DiseaseRatio returns accepted/attempted for disease modules, or 1 when
// nothing was attempted.
func (a AcceptanceCounters) DiseaseRatio() float64 {
	if a.DiseasesAttempted == 0 {
		return 1
	}
	return float64(a.DiseasesAccepted) / float64(a.DiseasesAttempted)
}

// Catalog is the attribute catalog document.
type Catalog struct {
	Catalog []CatalogEntry `json:"catalog"`
}

// CatalogEntry describes one attribute: its value type, how durable it is
// across simulation steps, and optional numeric limits.
type CatalogEntry struct {
	Key         string       `json:"key"`
	Type        string       `json:"type"`
	Durability  string       `json:"durability"`
	Limits      *EntryLimits `json:"limits,omitempty"`
	Description string       `json:"description,omitempty"`
	Category    string       `json:"category"`
}

// EntryLimits bounds a numeric catalog entry.
type EntryLimits struct {
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Limits flattens the catalog into the per-key clamp map the runtimes use.
// Entries without limits are omitted.
func (c Catalog) Limits() map[string]model.Limits {
	out := make(map[string]model.Limits)
	for _, e := range c.Catalog {
		if e.Limits == nil {
			continue
		}
		out[e.Key] = model.Limits{Min: e.Limits.Min, Max: e.Limits.Max}
	}
	return out
}

// validate unifies the JSON document with the named schema definition and
// checks that the result is concrete.
func validate(filename string, data []byte, def string) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling schema: %w", err)
	}
	defVal := schema.LookupPath(cue.ParsePath(def))
	if !defVal.Exists() {
		return fmt.Errorf("schema definition %s not found", def)
	}
	expr, err := cuejson.Extract(filename, data)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", filename, err)
	}
	doc := ctx.BuildExpr(expr)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("building %s: %w", filename, err)
	}
	unified := defVal.Unify(doc)
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return fmt.Errorf("%s does not match %s: %w", filename, def, err)
	}
	return nil
}

// LoadManifest reads, validates, and decodes a world manifest. A relative
// attributeCatalogPath is resolved against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if err := validate(filepath.Base(path), data, "#World"); err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	if m.AttributeCatalogPath != "" && !filepath.IsAbs(m.AttributeCatalogPath) {
		m.AttributeCatalogPath = filepath.Join(filepath.Dir(path), m.AttributeCatalogPath)
	}
	return &m, nil
}

// LoadCatalog reads, validates, and decodes an attribute catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	if err := validate(filepath.Base(path), data, "#Catalog"); err != nil {
		return nil, err
	}
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	return &c, nil
}
