// Package sensor maps sensor names and processing levels to ocean-color
// products and decodes per-pixel quality flags.
package sensor

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed products.yaml
var defaultRegistry []byte

// Level identifies the processing level of a data product.
type Level string

const (
	// LevelL2 is swath-level (per-pixel, along-track) data.
	LevelL2 Level = "L2"
	// LevelL3m is mapped, gridded composite data.
	LevelL3m Level = "L3m"
)

// Valid reports whether the level is one the matchup pipeline handles.
func (l Level) Valid() bool {
	return l == LevelL2 || l == LevelL3m
}

// Product identifies a searchable ocean-color collection.
type Product struct {
	Sensor    string `yaml:"sensor"`
	Level     Level  `yaml:"level"`
	ShortName string `yaml:"short_name"`
	Provider  string `yaml:"provider"`
	Variable  string `yaml:"variable"`
}

// Registry resolves (sensor, level) pairs to products and decodes L2
// quality flag masks.
type Registry struct {
	products map[string]Product
	flags    []string
}

type registryFile struct {
	Products []Product `yaml:"products"`
	L2Flags  []string  `yaml:"l2_flags"`
}

// NewRegistry builds a registry from the embedded default product table.
func NewRegistry() *Registry {
	r, err := parseRegistry(defaultRegistry)
	if err != nil {
		// The embedded table is validated by tests; a parse failure here
		// is a build defect, not a runtime condition.
		panic(fmt.Sprintf("sensor: embedded registry is invalid: %v", err))
	}
	return r
}

// LoadRegistry reads a product table from a YAML file, replacing the
// embedded defaults.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}

	r, err := parseRegistry(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry file %s: %w", path, err)
	}
	return r, nil
}

func parseRegistry(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	if len(file.Products) == 0 {
		return nil, fmt.Errorf("registry has no products")
	}

	products := make(map[string]Product, len(file.Products))
	for _, p := range file.Products {
		if p.Sensor == "" || p.ShortName == "" || p.Provider == "" {
			return nil, fmt.Errorf("incomplete product entry %+v", p)
		}
		if !p.Level.Valid() {
			return nil, fmt.Errorf("product %s has unknown level %q", p.ShortName, p.Level)
		}
		if p.Variable == "" {
			p.Variable = "chlor_a"
		}
		products[productKey(p.Sensor, p.Level)] = p
	}

	return &Registry{products: products, flags: file.L2Flags}, nil
}

func productKey(sensor string, level Level) string {
	return sensor + "/" + string(level)
}

// Product resolves a sensor name and level to a product definition.
func (r *Registry) Product(sensor string, level Level) (Product, error) {
	p, ok := r.products[productKey(sensor, level)]
	if !ok {
		return Product{}, fmt.Errorf("no %s product registered for sensor %q", level, sensor)
	}
	return p, nil
}

// Sensors returns the registered sensor names, one entry per name.
func (r *Registry) Sensors() []string {
	seen := make(map[string]bool)
	var names []string
	for _, p := range r.products {
		if !seen[p.Sensor] {
			seen[p.Sensor] = true
			names = append(names, p.Sensor)
		}
	}
	return names
}

// DecodeFlags expands an L2 quality flag mask into the list of active
// flag labels, least significant bit first. SPARE bits are skipped.
func (r *Registry) DecodeFlags(mask uint32) []string {
	var active []string
	for i, label := range r.flags {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		if label == "SPARE" {
			continue
		}
		active = append(active, label)
	}
	return active
}
