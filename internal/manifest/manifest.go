// Package manifest loads and validates one indexer's immutable
// configuration: identity, module source, block range, and an optional
// node override (spec.md §3 "Manifest", §6 "Manifest format").
package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Module names either a WASM module path (sandboxed) or the "native"
// marker naming a registered in-process handler. Exactly one of Wasm or
// Native is set (spec.md §6: "module: { wasm: <path> } | native").
type Module struct {
	Wasm   string `yaml:"wasm,omitempty"`
	Native string `yaml:"native,omitempty"`
}

// Manifest is one indexer's declared identity and run parameters.
type Manifest struct {
	Namespace  string  `yaml:"namespace"`
	Identifier string  `yaml:"identifier"`
	StartBlock uint32  `yaml:"start_block"`
	EndBlock   *uint32 `yaml:"end_block,omitempty"`
	Module     Module  `yaml:"module"`
	FuelClient string  `yaml:"fuel_client,omitempty"`
}

// UID is the stable routing/log-correlation key: namespace + identifier
// (spec.md §3 "Indexer identity").
func (m Manifest) UID() string {
	return m.Namespace + "." + m.Identifier
}

// Load reads and validates a manifest from path.
func Load(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest: read %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("manifest: parse %s: %w", path, err)
	}

	if err := m.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("manifest: %s: %w", path, err)
	}
	return m, nil
}

// Validate checks the required fields and the module-source mutual
// exclusivity (spec.md §6).
func (m Manifest) Validate() error {
	if m.Namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	if m.Identifier == "" {
		return fmt.Errorf("identifier is required")
	}
	if m.StartBlock == 0 {
		return fmt.Errorf("start_block is required")
	}
	if m.EndBlock != nil && *m.EndBlock < m.StartBlock {
		return fmt.Errorf("end_block (%d) must be >= start_block (%d)", *m.EndBlock, m.StartBlock)
	}

	hasWasm := m.Module.Wasm != ""
	hasNative := m.Module.Native != ""
	switch {
	case hasWasm && hasNative:
		return fmt.Errorf("module must declare exactly one of wasm or native, got both")
	case !hasWasm && !hasNative:
		return fmt.Errorf("module must declare exactly one of wasm or native, got neither")
	}
	return nil
}
