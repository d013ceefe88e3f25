// pkg/registry/schema.go
package registry

// ExampleRegistry lists the briefs offered in the sidebar.
type ExampleRegistry struct {
	Version     string    `yaml:"version"`
	LastUpdated string    `yaml:"lastUpdated"`
	Examples    []Example `yaml:"examples"`
}

type Example struct {
	ID    string   `yaml:"id"`
	Title string   `yaml:"title"`
	Brief string   `yaml:"brief"`
	Tags  []string `yaml:"tags,omitempty"`
}
