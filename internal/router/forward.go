package router

import (
	"context"
	"encoding/binary"
	"errors"
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	log "github.com/manifoldrouter/manifold/internal/logging"
	"github.com/manifoldrouter/manifold/internal/normalizer"
	"github.com/manifoldrouter/manifold/pkg/gateway"
	"github.com/manifoldrouter/manifold/pkg/plan"
	"github.com/manifoldrouter/manifold/pkg/query"
)

var tracer = otel.Tracer("manifold/internal/router")

// Result holds the records of a forwarded query.
type Result struct {
	Records query.Records

	// Errors are the failures that did not stop the query, such as a
	// platform failing while another served the same records, or the
	// requested fields no platform serves.
	Errors []error

	// Unresolved are the requested fields missing from the records.
	Unresolved []string
}

// ForwardOption configures the forwarding of one query.
type ForwardOption func(*forwardOptions)

type forwardOptions struct {
	platforms   []string
	bypassCache bool
}

// WithPlatforms restricts the platforms the query is forwarded to.
func WithPlatforms(platforms ...string) ForwardOption {
	return func(o *forwardOptions) { o.platforms = append(o.platforms, platforms...) }
}

// WithoutResultCache fetches every record from the platforms, ignoring and
// bypassing the result cache.
func WithoutResultCache() ForwardOption {
	return func(o *forwardOptions) { o.bypassCache = true }
}

// Forward runs the query and collects its records.
func (r *Router) Forward(ctx context.Context, q query.Query, opts ...ForwardOption) (*Result, error) {
	var records query.Records
	result, err := r.ForwardStream(ctx, q, func(rec query.Record) bool {
		records = append(records, rec)
		return true
	}, opts...)
	if err != nil {
		return nil, err
	}
	result.Records = records
	return result, nil
}

// ForwardStream runs the query, handing each record to yield as it arrives.
// Returning false from yield stops the query. The records are not kept in
// the result.
func (r *Router) ForwardStream(ctx context.Context, q query.Query, yield func(query.Record) bool, opts ...ForwardOption) (result *Result, err error) {
	ctx = log.WithObject(log.WithRequestID(ctx, uuid.NewString()), q.Object)
	ctx, span := tracer.Start(ctx, "Forward", trace.WithAttributes(
		attribute.String("action", string(q.Action)),
		attribute.String("object", q.Object),
	))
	defer span.End()

	start := r.clock.Now()
	defer func() {
		outcome := "ok"
		switch {
		case err != nil:
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case len(result.Errors) > 0:
			outcome = "partial"
		}
		forwardedQueries.WithLabelValues(string(q.Action), outcome).Inc()
		queryDuration.WithLabelValues(string(q.Action)).Observe(r.clock.Since(start).Seconds())
	}()

	var options forwardOptions
	for _, opt := range opts {
		opt(&options)
	}

	if q.Timestamp == "" {
		q.Timestamp = query.Now
	}
	if err := validateQuery(q); err != nil {
		return nil, NewQueryErr(q, err)
	}
	log.Ctx(ctx).Debug().Object("query", q).Msg("forwarding query")

	if q.Namespace() == localNamespace {
		result, err := r.forwardLocal(q, yield)
		if err != nil {
			return nil, NewQueryErr(q, err)
		}
		return result, nil
	}

	snap, err := r.snapshot()
	if err != nil {
		return nil, NewQueryErr(q, err)
	}
	allowed, err := r.allowed(snap, options.platforms)
	if err != nil {
		return nil, NewQueryErr(q, err)
	}

	if q.Action != query.ActionGet {
		return r.forwardWrite(ctx, q, snap, allowed, yield)
	}
	return r.forwardGet(ctx, q, snap, allowed, options, yield)
}

func validateQuery(q query.Query) error {
	if q.ObjectName() == "" {
		return errors.New("query has no object")
	}
	if _, err := query.ParseAction(string(q.Action)); err != nil {
		return err
	}
	if q.Action == query.ActionCreate && len(q.Params) == 0 {
		return errors.New("create without values")
	}
	if q.Action == query.ActionUpdate && len(q.Params) == 0 {
		return errors.New("update without values")
	}
	return nil
}

// allowed returns the enabled platforms among those requested, or every
// enabled platform when none is requested.
func (r *Router) allowed(snap snapshot, requested []string) ([]string, error) {
	if len(requested) == 0 {
		if len(snap.enabled) == 0 {
			return nil, ErrNoPlatform
		}
		return snap.enabled, nil
	}

	var allowed []string
	for _, name := range requested {
		if !slices.Contains(snap.configured, name) {
			return nil, NewUnknownPlatformErr(name)
		}
		if slices.Contains(snap.enabled, name) && !slices.Contains(allowed, name) {
			allowed = append(allowed, name)
		}
	}
	if len(allowed) == 0 {
		return nil, ErrNoPlatform
	}
	slices.Sort(allowed)
	return allowed, nil
}

func (r *Router) forwardGet(ctx context.Context, q query.Query, snap snapshot, allowed []string, options forwardOptions, yield func(query.Record) bool) (*Result, error) {
	cp, err := r.planFor(ctx, q, snap, allowed)
	if err != nil {
		return nil, NewQueryErr(q, err)
	}

	compiled := plan.Compile(cp.root)
	log.Ctx(ctx).Trace().Str("plan", cp.explain).Msg("running plan")

	var gateways plan.Gateways = snap.gateways
	if r.results != nil && !options.bypassCache {
		gateways = &cachedGateways{results: r.results, gateways: snap.gateways}
	}

	executed, err := plan.Stream(ctx, compiled, gateways, yield)
	result := &Result{Unresolved: cp.unresolved}
	if executed != nil {
		result.Errors = executed.Errors
	}
	if cp.unresolvedErr != nil {
		result.Errors = append(result.Errors, cp.unresolvedErr)
	}
	countGatewayErrors(result.Errors)

	if err != nil {
		countGatewayErrors([]error{err})
		return nil, NewQueryErr(q, err, result.Errors...)
	}
	return result, nil
}

func countGatewayErrors(errs []error) {
	for _, err := range errs {
		var gwErr gateway.Error
		if errors.As(err, &gwErr) {
			gatewayErrors.WithLabelValues(gwErr.Platform()).Inc()
		}
	}
}

// planKey identifies the plan of a query over one generation of the schema
// and one set of platforms.
type planKey uint64

func (k planKey) KeyString() string {
	return strconv.FormatUint(uint64(k), 36)
}

func newPlanKey(generation uint64, q query.Query, allowed []string) planKey {
	h := xxhash.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], generation)
	_, _ = h.Write(buf[:])
	_, _ = h.WriteString(q.Key())
	for _, platform := range allowed {
		_, _ = h.WriteString("\x1f" + platform)
	}
	return planKey(h.Sum64())
}

// cachedPlan is an optimized plan tree. Trees are never modified once built,
// so one tree is compiled by every execution of its query.
type cachedPlan struct {
	root          plan.Node
	explain       string
	unresolved    []string
	unresolvedErr error
}

func (r *Router) planFor(ctx context.Context, q query.Query, snap snapshot, allowed []string) (*cachedPlan, error) {
	key := newPlanKey(snap.generation, q, allowed)
	if cp, ok := r.plans.Get(key); ok {
		log.Ctx(ctx).Trace().Str("key", key.KeyString()).Msg("plan cache hit")
		return cp, nil
	}

	cp, shared, err := r.builds.Do(ctx, key, func(ctx context.Context) (*cachedPlan, error) {
		return r.buildPlan(ctx, q, snap, allowed, key)
	})
	if err != nil {
		return nil, err
	}
	planBuilds.WithLabelValues(strconv.FormatBool(shared)).Inc()
	return cp, nil
}

func (r *Router) buildPlan(ctx context.Context, q query.Query, snap snapshot, allowed []string, key planKey) (*cachedPlan, error) {
	planned, err := r.planner.Plan(ctx, q, snap.graph, allowed)
	if err != nil {
		return nil, err
	}

	root, err := plan.Optimize(planned.Root, q.Filter, q.Fields)
	if err != nil {
		return nil, err
	}

	cp := &cachedPlan{
		root:          root,
		explain:       plan.Compile(root).String(),
		unresolved:    planned.Unresolved,
		unresolvedErr: planned.Err(),
	}
	r.plans.Set(key, cp, int64(len(cp.explain)))

	log.Ctx(ctx).Debug().
		Object("query", q).
		Int("explored", planned.Explored).
		Strs("unresolved", planned.Unresolved).
		Msg("built plan")
	return cp, nil
}

// Explain returns the plan the query would run with.
func (r *Router) Explain(ctx context.Context, q query.Query, opts ...ForwardOption) (string, error) {
	var options forwardOptions
	for _, opt := range opts {
		opt(&options)
	}
	if q.Action != query.ActionGet || q.Namespace() == localNamespace {
		return "", errors.New("only queries fetching platform records have a plan")
	}

	snap, err := r.snapshot()
	if err != nil {
		return "", err
	}
	allowed, err := r.allowed(snap, options.platforms)
	if err != nil {
		return "", err
	}
	cp, err := r.planFor(ctx, q, snap, allowed)
	if err != nil {
		return "", err
	}
	return cp.explain, nil
}

// forwardWrite sends a create, update or delete to the one platform serving
// the object, then drops the cached records of that object.
func (r *Router) forwardWrite(ctx context.Context, q query.Query, snap snapshot, allowed []string, yield func(query.Record) bool) (*Result, error) {
	platform, err := writeTarget(q, snap, allowed)
	if err != nil {
		return nil, NewQueryErr(q, err)
	}

	ctx = log.WithPlatform(ctx, platform)
	sent, rename := platformQuery(q, snap, platform)
	err = run(ctx, snap.gateways[platform], sent, func(r query.Record) bool {
		return yield(r.Rename(rename))
	})

	if r.results != nil {
		invalidated := r.results.Invalidate(query.Get(platform+query.NamespaceSeparator+q.ObjectName()), true)
		log.Ctx(ctx).Debug().Int("invalidated", invalidated).Msg("dropped cached records after write")
	}

	if err != nil {
		countGatewayErrors([]error{err})
		return nil, NewQueryErr(q, err)
	}
	return &Result{}, nil
}

// platformQuery returns the write as the platform names the fields of the
// object, and the renaming of its records back to the unified names.
func platformQuery(q query.Query, snap snapshot, platform string) (query.Query, map[string]string) {
	sent := q.WithObject(q.ObjectName())
	table, ok := snap.graph.Table(q.ObjectName())
	if !ok {
		return sent, nil
	}
	p, ok := table.NativePartition(platform)
	if !ok || len(p.Aliases) == 0 {
		return sent, nil
	}

	names := p.PlatformNames()
	if len(q.Params) > 0 {
		params := make(map[string]any, len(q.Params))
		for k, v := range q.Params {
			if name, ok := names[k]; ok {
				k = name
			}
			params[k] = v
		}
		sent = sent.WithParams(params)
	}
	sent = sent.WithFilter(q.Filter.Rename(names)).WithFields(q.Fields.Rename(names))
	return sent, p.Aliases
}

func writeTarget(q query.Query, snap snapshot, allowed []string) (string, error) {
	table, err := snap.graph.MustTable(q.ObjectName())
	if err != nil {
		return "", err
	}

	if platform := q.Namespace(); platform != "" {
		if _, ok := table.NativePartition(platform); !ok || !slices.Contains(allowed, platform) {
			return "", normalizer.NewUnknownObjectErr(q.Object)
		}
		return platform, nil
	}

	var candidates []string
	for _, platform := range table.Platforms() {
		if _, native := table.NativePartition(platform); native && slices.Contains(allowed, platform) {
			candidates = append(candidates, platform)
		}
	}
	switch len(candidates) {
	case 0:
		return "", normalizer.NewUnknownObjectErr(q.Object)
	case 1:
		return candidates[0], nil
	default:
		return "", NewAmbiguousWriteErr(q.Object, candidates)
	}
}

// run runs the query on the gateway, handing its records to yield.
func run(ctx context.Context, gw gateway.Gateway, q query.Query, yield func(query.Record) bool) error {
	runCtx, cancel := context.WithCancel(ctx)
	out := make(chan query.Packet)
	done := make(chan struct{})
	go func() {
		defer close(done)
		gw.Start(runCtx, q, out)
	}()
	defer func() {
		cancel()
		<-done
	}()

	for {
		select {
		case p := <-out:
			switch p.Kind {
			case query.RecordPacket:
				if !yield(p.Record) {
					return nil
				}
			case query.LastPacket:
				return nil
			case query.ErrorPacket:
				return p.Err
			}
		case <-done:
			if err := ctx.Err(); err != nil {
				return err
			}
			return errors.New("gateway stopped without a terminal packet")
		}
	}
}
