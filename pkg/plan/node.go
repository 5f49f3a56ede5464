package plan

import (
	"strings"

	"github.com/manifoldrouter/manifold/pkg/query"
)

// Node is one operator of a plan tree. The set of implementations is closed:
// From, Union, LeftJoin, SubQuery, Selection, Projection, Demux, Dup,
// CartesianProduct and Rename.
type Node interface {
	// Subnodes returns the children of the node, in the order they are
	// started.
	Subnodes() []Node

	// ReplaceSubnodes returns a copy of the node with its children replaced.
	ReplaceSubnodes(subs []Node) (Node, error)

	// OutputFields returns the fields of the records the node produces.
	OutputFields() query.FieldNames

	// Explain describes the node and its subtree.
	Explain() Explain

	pushSelection(filter query.Filter) Node
	pushProjection(fields query.FieldNames) Node

	// run produces the records of the node into out. extra is a filter the
	// consumer adds at run time, such as the keys a join collected.
	run(ctx *Context, id NodeID, extra query.Filter, out *emitter)
}

// Explain describes a node of a plan, for display.
type Explain struct {
	Info       string
	SubExplain []Explain
}

// String renders the explain as an indented tree.
func (e Explain) String() string {
	var sb strings.Builder
	e.write(&sb, 0)
	return sb.String()
}

func (e Explain) write(sb *strings.Builder, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(e.Info)
	sb.WriteByte('\n')
	for _, sub := range e.SubExplain {
		sub.write(sb, depth+1)
	}
}

func explainAll(info string, nodes []Node) Explain {
	subs := make([]Explain, len(nodes))
	for i, n := range nodes {
		subs[i] = n.Explain()
	}
	return Explain{Info: info, SubExplain: subs}
}

// NodeState is the lifecycle state of a node during one execution.
type NodeState uint8

const (
	StateCreated NodeState = iota
	StateStarted
	StateStreaming
	StateDone
	StateError
)

func (s NodeState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

func wrongSubnodes(kind string, expected, got int) error {
	return NewInvalidPlanErr(kind, "expected %d subnodes, got %d", expected, got)
}
