package plan

import "github.com/manifoldrouter/manifold/pkg/query"

// transform forwards the stream of the only child of the node, passing every
// record through fn. Records for which fn returns false are dropped.
func transform(ctx *Context, id NodeID, extra query.Filter, out *emitter, fn func(query.Record) (query.Record, bool)) {
	child := ctx.children(id)[0]
	for p := range packets(ctx, ctx.Start(child, extra)) {
		if p.IsTerminal() {
			out.Forward(p)
			return
		}
		r, ok := fn(p.Record)
		if !ok {
			continue
		}
		if !out.Record(r) {
			return
		}
	}
}
