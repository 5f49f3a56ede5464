package resultcache

import (
	"context"
	"sync"
	"time"

	"github.com/manifoldrouter/manifold/pkg/query"
)

// Entry holds the result of one query: the records of the fetch in flight or
// of the last completed one, and the state consumers follow to receive them.
type Entry struct {
	mu       sync.Mutex
	records  query.Records
	terminal *query.Packet
	updated  chan struct{}

	// consumers counts the subscriptions following the fetch in flight. The
	// fetch is cancelled once it drops to zero.
	consumers int
	cancel    context.CancelFunc
	abandoned bool

	createdAt   time.Time
	completedAt time.Time
}

func newEntry(now time.Time) *Entry {
	return &Entry{updated: make(chan struct{}), createdAt: now}
}

// NewCompletedEntry returns an entry holding the records of a fetch that
// already completed.
func NewCompletedEntry(records query.Records, now time.Time) *Entry {
	last := query.NewLastPacket()
	e := newEntry(now)
	e.records = records.Clone()
	e.terminal = &last
	e.completedAt = now
	return e
}

// InFlight returns true while the fetch of the entry has not completed.
func (e *Entry) InFlight() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminal == nil
}

// Records returns a copy of the records of the entry, and false while its
// fetch is in flight.
func (e *Entry) Records() (query.Records, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminal == nil || e.terminal.Kind != query.LastPacket {
		return nil, false
	}
	return e.records.Clone(), true
}

// Len returns the number of records received so far.
func (e *Entry) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.records)
}

func (e *Entry) publish(p query.Packet, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminal != nil {
		return
	}
	if p.IsTerminal() {
		e.terminal = &p
		e.completedAt = now
		e.cancel = nil
	} else {
		e.records = append(e.records, p.Record)
	}
	close(e.updated)
	e.updated = make(chan struct{})
}

func (e *Entry) since(index int) (query.Records, *query.Packet, <-chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.records[index:], e.terminal, e.updated
}

// attach registers a consumer. It returns false if the fetch in flight was
// abandoned by every consumer.
func (e *Entry) attach() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.abandoned {
		return false
	}
	e.consumers++
	return true
}

// detach unregisters a consumer, cancelling the fetch in flight if it was the
// last one.
func (e *Entry) detach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consumers--
	if e.consumers > 0 || e.terminal != nil || e.cancel == nil {
		return
	}
	e.abandoned = true
	e.cancel()
}

func (e *Entry) expired(now time.Time, ttl time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ttl > 0 && e.terminal != nil && now.Sub(e.completedAt) >= ttl
}

// follow forwards to out the records of the entry matching the filter,
// projected on the fields, then its terminal packet. It closes out when done.
func (e *Entry) follow(ctx context.Context, filter query.Filter, fields query.FieldNames, out chan<- query.Packet) {
	defer close(out)
	defer e.detach()

	send := func(p query.Packet) bool {
		select {
		case out <- p:
			return true
		case <-ctx.Done():
			return false
		}
	}

	index := 0
	for {
		records, terminal, updated := e.since(index)
		for _, r := range records {
			index++
			if !filter.Match(r) {
				continue
			}
			if !send(query.NewRecordPacket(r.Project(fields))) {
				return
			}
		}
		if terminal != nil {
			send(*terminal)
			return
		}

		select {
		case <-updated:
		case <-ctx.Done():
			return
		}
	}
}
