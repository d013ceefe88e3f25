// pkg/registry/registry.go
package registry

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed examples.yaml
var defaultExamples []byte

// LoadRegistry reads a registry file. An empty path loads the built-in examples.
func LoadRegistry(path string) (*ExampleRegistry, error) {
	data := defaultExamples
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}
	return Parse(data)
}

func Parse(data []byte) (*ExampleRegistry, error) {
	var reg ExampleRegistry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse example registry: %w", err)
	}

	seen := make(map[string]bool, len(reg.Examples))
	for i, ex := range reg.Examples {
		if ex.ID == "" {
			return nil, fmt.Errorf("example %d has no id", i)
		}
		if seen[ex.ID] {
			return nil, fmt.Errorf("duplicate example id %q", ex.ID)
		}
		if strings.TrimSpace(ex.Brief) == "" {
			return nil, fmt.Errorf("example %q has an empty brief", ex.ID)
		}
		seen[ex.ID] = true
		if ex.Title == "" {
			reg.Examples[i].Title = ex.ID
		}
	}
	return &reg, nil
}

func (r *ExampleRegistry) Get(id string) (Example, bool) {
	for _, ex := range r.Examples {
		if ex.ID == id {
			return ex, true
		}
	}
	return Example{}, false
}
