package planner

import (
	"fmt"
)

// Priority orders the exploration of relations. Lower values are explored
// first.
type Priority int

// Priorities are the priorities given to the relations leaving an explored
// table.
type Priorities struct {
	// OneToOne relations are resolved in place with a left join.
	OneToOne Priority `yaml:"one_to_one" default:"0"`

	// RequestedSubquery relations need a nested fetch and lead to a
	// requested field.
	RequestedSubquery Priority `yaml:"requested_subquery" default:"1"`

	// SpeculativeSubquery relations need a nested fetch and lead to no
	// requested field yet.
	SpeculativeSubquery Priority `yaml:"speculative_subquery" default:"2"`
}

// Config bounds the exploration of the schema graph.
type Config struct {
	// MaxDepth is the deepest level of nested fetches explored, the root
	// object being at depth 1.
	MaxDepth   int        `yaml:"max_depth" default:"3"`
	Priorities Priorities `yaml:"priorities"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		MaxDepth: 3,
		Priorities: Priorities{
			OneToOne:            0,
			RequestedSubquery:   1,
			SpeculativeSubquery: 2,
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxDepth < 1 {
		return fmt.Errorf("planner max depth must be at least 1, got %d", c.MaxDepth)
	}
	return nil
}
