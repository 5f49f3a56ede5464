package memory

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/manifoldrouter/manifold/pkg/announce"
	"github.com/manifoldrouter/manifold/pkg/gateway"
	"github.com/manifoldrouter/manifold/pkg/query"
)

// Config is the configuration of a memory platform.
type Config struct {
	// Announce is the path of the announcement file of the platform.
	Announce string `yaml:"announce"`

	// Announcement is an inline announcement, used when Announce is empty.
	Announcement string `yaml:"announcement"`

	// Data is the path of a YAML file mapping objects to their records.
	Data string `yaml:"data"`

	// Records are inline records, by object.
	Records map[string][]map[string]any `yaml:"records"`
}

// Register adds the memory gateway factory to the registry.
func Register(r gateway.Registry) {
	r.Register(Type, Factory)
}

// Factory builds a memory gateway from its configuration.
func Factory(platform string, raw map[string]any) (gateway.Gateway, error) {
	var config Config
	if err := gateway.DecodeConfig(raw, &config); err != nil {
		return nil, fmt.Errorf("invalid configuration of platform `%s`: %w", platform, err)
	}
	return NewFromConfig(platform, config)
}

// NewFromConfig builds a memory gateway and loads its records.
func NewFromConfig(platform string, config Config) (*Gateway, error) {
	parsed, err := announce.Load(config.Announce, config.Announcement, platform)
	if err != nil {
		return nil, fmt.Errorf("announcement of platform `%s`: %w", platform, err)
	}

	g, err := New(platform, parsed.Tables)
	if err != nil {
		return nil, err
	}

	records := config.Records
	if config.Data != "" {
		contents, err := os.ReadFile(config.Data)
		if err != nil {
			return nil, err
		}
		var fromFile map[string][]map[string]any
		if err := yaml.Unmarshal(contents, &fromFile); err != nil {
			return nil, fmt.Errorf("data file `%s`: %w", config.Data, err)
		}
		if records == nil {
			records = map[string][]map[string]any{}
		}
		for object, rs := range fromFile {
			records[object] = append(records[object], rs...)
		}
	}

	for _, object := range slices.Sorted(maps.Keys(records)) {
		loaded := make(query.Records, 0, len(records[object]))
		for _, r := range records[object] {
			loaded = append(loaded, query.Record(r))
		}
		if err := g.Load(object, loaded); err != nil {
			return nil, err
		}
	}
	return g, nil
}
