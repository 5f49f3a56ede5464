// Package query holds the value types exchanged by every part of the router:
// queries against the unified schema, their filters and field sets, and the
// records and record streams they produce.
//
// All types are immutable values. Operations that change a Query, Filter or
// FieldNames return a new one, so they can be shared between goroutines and
// used as cache keys without copying.
package query
