package plan

import (
	"context"

	"github.com/manifoldrouter/manifold/pkg/query"
)

// Result is the outcome of an execution that did not fail as a whole.
type Result struct {
	Records query.Records

	// Errors are the failures of branches whose siblings still produced
	// records, such as one platform of a Union.
	Errors []error
}

// Execute runs the plan and collects its records.
func Execute(ctx context.Context, p *Plan, gateways Gateways) (*Result, error) {
	var records query.Records
	result, err := Stream(ctx, p, gateways, func(r query.Record) bool {
		records = append(records, r)
		return true
	})
	if result != nil {
		result.Records = records
	}
	return result, err
}

// Stream runs the plan, handing every record of the root to yield as it
// arrives. Returning false from yield stops the execution. Stream returns
// once every node it started has stopped.
func Stream(ctx context.Context, p *Plan, gateways Gateways, yield func(query.Record) bool) (*Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pctx := NewContext(runCtx, p, gateways)
	var failure error
	stopped := false
	for pkt := range packets(pctx, pctx.Start(p.Root(), query.Filter{})) {
		switch pkt.Kind {
		case query.RecordPacket:
			if stopped {
				continue
			}
			if !yield(pkt.Record) {
				stopped = true
				cancel()
			}
		case query.ErrorPacket:
			if !stopped {
				failure = pkt.Err
			}
		}
	}

	result := &Result{Errors: pctx.Errors()}
	cancel()
	_ = pctx.group.Wait()

	if failure != nil {
		return result, failure
	}
	return result, nil
}
