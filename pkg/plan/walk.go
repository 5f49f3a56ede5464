package plan

// Walk traverses a plan tree depth-first, calling the callback for each node.
// If the callback returns a different node than the input, that node replaces
// the current one. The callback is applied bottom-up (children are processed
// before parents).
func Walk(root Node, callback func(Node) (Node, error)) (Node, error) {
	if root == nil {
		return nil, nil
	}

	subs := root.Subnodes()
	if len(subs) > 0 {
		processed := make([]Node, len(subs))
		for i, sub := range subs {
			walked, err := Walk(sub, callback)
			if err != nil {
				return nil, err
			}
			processed[i] = walked
		}

		var err error
		root, err = root.ReplaceSubnodes(processed)
		if err != nil {
			return nil, err
		}
	}

	return callback(root)
}
