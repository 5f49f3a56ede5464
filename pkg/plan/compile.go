package plan

// NodeID addresses a node in the arena of a compiled Plan.
type NodeID int

// Plan is a compiled operator tree: an arena of nodes with explicit parent to
// children ownership and child to parent back-indexes. A node reachable from
// several parents, such as a shared Demux, appears once.
type Plan struct {
	nodes    []Node
	children [][]NodeID
	parents  [][]NodeID
	root     NodeID
}

// Compile flattens the tree rooted at root into a Plan.
func Compile(root Node) *Plan {
	p := &Plan{}
	seen := map[Node]NodeID{}

	var add func(n Node) NodeID
	add = func(n Node) NodeID {
		if id, ok := seen[n]; ok {
			return id
		}

		id := NodeID(len(p.nodes))
		seen[n] = id
		p.nodes = append(p.nodes, n)
		p.children = append(p.children, nil)
		p.parents = append(p.parents, nil)

		for _, sub := range n.Subnodes() {
			childID := add(sub)
			p.children[id] = append(p.children[id], childID)
			p.parents[childID] = append(p.parents[childID], id)
		}
		return id
	}

	p.root = add(root)
	return p
}

// Root returns the id of the root node.
func (p *Plan) Root() NodeID { return p.root }

// Len returns the number of distinct nodes.
func (p *Plan) Len() int { return len(p.nodes) }

// Node returns the node with the given id.
func (p *Plan) Node(id NodeID) Node { return p.nodes[id] }

// Children returns the ids of the children of the node, in Subnodes order.
func (p *Plan) Children(id NodeID) []NodeID { return p.children[id] }

// Parents returns the ids of the nodes consuming the node.
func (p *Plan) Parents(id NodeID) []NodeID { return p.parents[id] }

// Explain describes the whole plan.
func (p *Plan) Explain() Explain { return p.nodes[p.root].Explain() }

func (p *Plan) String() string { return p.Explain().String() }
