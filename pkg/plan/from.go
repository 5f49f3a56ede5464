package plan

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	log "github.com/manifoldrouter/manifold/internal/logging"
	"github.com/manifoldrouter/manifold/pkg/gateway"
	"github.com/manifoldrouter/manifold/pkg/query"
	"github.com/manifoldrouter/manifold/pkg/schema"
)

var tracer = otel.Tracer("manifold/pkg/plan")

// From fetches the records of one object from one platform.
type From struct {
	Platform     string
	Capabilities schema.Capabilities

	// Key is the key of the object, used to filter join-only objects.
	Key []string

	// Available are the fields the platform provides for the object.
	Available query.FieldNames

	// Query is sent to the gateway. Its filter and fields only hold what the
	// platform can apply itself.
	Query query.Query
}

var _ Node = &From{}

// NewFrom returns the From of the partition of the table on the platform. It
// speaks the names the platform uses; see NewSource for the unified names.
func NewFrom(table *schema.Table, platform string, q query.Query) *From {
	f := &From{
		Platform:  platform,
		Available: table.FieldNames(),
		Query:     q.WithObject(table.Name).WithFilter(query.Filter{}).WithFields(query.Star()),
	}
	if key, ok := table.Key(); ok {
		f.Key = key.Names()
	}
	if p, ok := table.Partition(platform); ok {
		names := p.PlatformNames()
		f.Capabilities = p.Capabilities
		f.Available = p.Fields.Rename(names)
		f.Query = f.Query.WithObject(p.Method.Object)
		for i, k := range f.Key {
			if name, ok := names[k]; ok {
				f.Key[i] = name
			}
		}
	}
	return f
}

// NewSource returns the From of the partition of the table on the platform,
// under a Rename when the platform names some fields differently.
func NewSource(table *schema.Table, platform string, q query.Query) Node {
	f := NewFrom(table, platform, q)
	if p, ok := table.Partition(platform); ok && len(p.Aliases) > 0 {
		return &Rename{Child: f, Mapping: p.Aliases}
	}
	return f
}

func (f *From) Subnodes() []Node { return nil }

func (f *From) ReplaceSubnodes(subs []Node) (Node, error) {
	if len(subs) != 0 {
		return nil, wrongSubnodes("From", 0, len(subs))
	}
	return f, nil
}

func (f *From) OutputFields() query.FieldNames {
	if f.Query.Fields.IsStar() {
		return f.Available
	}
	return f.Query.Fields
}

func (f *From) Explain() Explain {
	return Explain{Info: fmt.Sprintf("From(%s: %s)", f.Platform, f.Query)}
}

// acceptsFilter returns true if the platform applies the filter itself.
func (f *From) acceptsFilter(filter query.Filter) bool {
	if f.Capabilities.Selection {
		return true
	}
	return f.Capabilities.IsOnJoin() && filter.IsWithin(query.NewFieldNames(f.Key...))
}

func (f *From) pushSelection(filter query.Filter) Node {
	if filter.IsEmpty() {
		return f
	}
	if !f.acceptsFilter(filter) {
		return &Selection{Child: f, Filter: filter}
	}
	pushed := *f
	pushed.Query = f.Query.WithFilter(f.Query.Filter.Union(filter))
	return &pushed
}

func (f *From) pushProjection(fields query.FieldNames) Node {
	if fields.IsStar() {
		return f
	}
	if !f.Capabilities.Projection {
		return &Projection{Child: f, Fields: fields}
	}
	pushed := *f
	pushed.Query = f.Query.WithFields(fields.Intersect(f.Available))
	return &pushed
}

func (f *From) run(ctx *Context, id NodeID, extra query.Filter, out *emitter) {
	gw, ok := ctx.Gateways.Gateway(f.Platform)
	if !ok {
		log.Ctx(ctx).Debug().Str("platform", f.Platform).Msg("no gateway for platform, skipping")
		out.Last()
		return
	}

	q := f.Query
	local := extra
	if !extra.IsEmpty() && f.acceptsFilter(extra) {
		q = q.WithFilter(q.Filter.Union(extra))
		local = query.Filter{}
	}

	if f.Capabilities.IsOnJoin() && q.Filter.IsEmpty() {
		log.Ctx(ctx).Debug().Str("platform", f.Platform).Object("query", q).Msg("join-only object queried without a join filter")
		out.Last()
		return
	}

	spanCtx, span := tracer.Start(log.WithPlatform(ctx, f.Platform), "From "+f.Platform, trace.WithAttributes(
		attribute.String("platform", f.Platform),
		attribute.String("object", q.Object),
		attribute.Int("node", int(id)),
	))
	defer span.End()

	records := make(chan query.Packet, DefaultBufferSize)
	ctx.Go(func() {
		defer close(records)
		gw.Start(spanCtx, q, records)
	})

	count := 0
	for p := range packets(ctx, records) {
		switch p.Kind {
		case query.RecordPacket:
			if !local.Match(p.Record) {
				continue
			}
			count++
			if !out.Record(p.Record) {
				return
			}
		case query.LastPacket:
			span.SetAttributes(attribute.Int("records", count))
			out.Last()
		case query.ErrorPacket:
			err := gateway.NewError(f.Platform, q, p.Err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			out.Fail(err)
		}
	}
}
