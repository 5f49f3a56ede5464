package schema

import (
	"fmt"

	"github.com/manifoldrouter/manifold/pkg/query"
)

// RelationType is the kind of edge between two canonical tables.
type RelationType uint8

const (
	// Sibling links two tables sharing the same key. Joined flat.
	Sibling RelationType = iota

	// Parent links a table to the table its key references. Joined flat.
	Parent

	// Child is the reverse of Parent. Joined flat.
	Child

	// Link follows a local reference field. Joined flat.
	Link

	// Link11 follows a scalar reference to exactly one record, nested
	// under the relation name.
	Link11

	// Link1N follows an array reference, or a reference to records sharing
	// part of a key, to any number of records nested under the relation
	// name.
	Link1N

	// Link1NBackwards is a Link1N found from the referenced side: the other
	// table holds an array referencing this one.
	Link1NBackwards
)

var relationTypeNames = map[RelationType]string{
	Sibling:         "SIBLING",
	Parent:          "PARENT",
	Child:           "CHILD",
	Link:            "LINK",
	Link11:          "LINK_11",
	Link1N:          "LINK_1N",
	Link1NBackwards: "LINK_1N_BACKWARDS",
}

func (rt RelationType) String() string {
	if name, ok := relationTypeNames[rt]; ok {
		return name
	}
	return fmt.Sprintf("RelationType(%d)", rt)
}

// Relation is an edge from the Source table to the Target table.
//
// The predicate key names fields of Source, its value names the fields of
// Target they are compared to. The operator is Eq, or Contains when the
// source field is an array of references.
type Relation struct {
	Type      RelationType
	Name      string
	Source    string
	Target    string
	Predicate query.Predicate
}

// RequiresSubquery returns true when the relation can yield any number of
// target records per source record, so that resolving it needs a nested
// fetch once every source record is known.
func (r Relation) RequiresSubquery() bool {
	return r.Type == Link1N || r.Type == Link1NBackwards
}

// IsNested returns true when target records are attached under the relation
// name instead of merged into the source record.
func (r Relation) IsNested() bool {
	switch r.Type {
	case Link11, Link1N, Link1NBackwards:
		return true
	default:
		return false
	}
}

// SourceFields returns the fields of Source the relation joins on.
func (r Relation) SourceFields() []string {
	return r.Predicate.Key
}

// TargetFields returns the fields of Target the relation joins on.
func (r Relation) TargetFields() []string {
	return r.Predicate.ValueFields()
}

func (r Relation) String() string {
	return fmt.Sprintf("%s -[%s %s: %s]-> %s", r.Source, r.Type, r.Name, r.Predicate, r.Target)
}
