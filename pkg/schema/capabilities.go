package schema

import (
	"fmt"
	"strings"
)

// Capabilities are the operations a platform performs itself for an object.
type Capabilities struct {
	// Retrieve is set when the object can be fetched at all.
	Retrieve bool

	// Join is set when the platform can join the object with others.
	Join bool

	// Selection is set when the platform applies filters itself.
	Selection bool

	// Projection is set when the platform returns only the requested fields.
	Projection bool

	// Fullquery is set when the platform accepts a whole query at once.
	Fullquery bool

	// OnJoin is set when the object is only reachable as part of a join:
	// it cannot be fetched without a filter on its key.
	OnJoin bool
}

// ParseCapabilities parses the names listed in a CAPABILITY declaration.
func ParseCapabilities(names ...string) (Capabilities, error) {
	var c Capabilities
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "":
		case "retrieve":
			c.Retrieve = true
		case "join":
			c.Join = true
		case "selection":
			c.Selection = true
		case "projection":
			c.Projection = true
		case "fullquery":
			c.Fullquery = true
		case "onjoin":
			c.OnJoin = true
		default:
			return Capabilities{}, fmt.Errorf("unknown capability %q", name)
		}
	}
	return c, nil
}

// IsOnJoin returns true if the object is only reachable through a join.
func (c Capabilities) IsOnJoin() bool { return c.OnJoin }

// Union returns the capabilities offered by either side. The result is
// join-only when both sides are.
func (c Capabilities) Union(other Capabilities) Capabilities {
	return Capabilities{
		Retrieve:   c.Retrieve || other.Retrieve,
		Join:       c.Join || other.Join,
		Selection:  c.Selection || other.Selection,
		Projection: c.Projection || other.Projection,
		Fullquery:  c.Fullquery || other.Fullquery,
		OnJoin:     c.OnJoin && other.OnJoin,
	}
}

// Names returns the set capabilities in declaration order.
func (c Capabilities) Names() []string {
	var names []string
	for _, capability := range []struct {
		set  bool
		name string
	}{
		{c.Retrieve, "retrieve"},
		{c.Join, "join"},
		{c.Selection, "selection"},
		{c.Projection, "projection"},
		{c.Fullquery, "fullquery"},
		{c.OnJoin, "onjoin"},
	} {
		if capability.set {
			names = append(names, capability.name)
		}
	}
	return names
}

func (c Capabilities) String() string {
	return "CAPABILITY(" + strings.Join(c.Names(), ", ") + ")"
}

// Method is the object to call on a platform.
type Method struct {
	Platform string
	Object   string
}

func (m Method) String() string {
	return m.Platform + "::" + m.Object
}
