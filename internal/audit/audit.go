// Package audit provides declarative audit rules, audit records, the audit
// storage contract, and the transaction coordinator that guarantees handler
// side effects and audit writes persist or roll back together.
package audit

import (
	"context"
	"time"
)

// Record is one persisted audit entry. Records are produced by the
// coordinator, never by handlers directly; handlers only request audits
// through the Auditor capability.
type Record struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Actor     string    `json:"actor"`
	EntityID  string    `json:"entity_id,omitempty"`
	Table     string    `json:"table,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Rule is a declarative audit rule evaluated against validated handler
// output. Rules observe the output; they never mutate it.
type Rule struct {
	// Type is the audit event type tag (e.g. "user.created").
	Type string

	// Payload maps the handler output to the audit payload.
	Payload func(out any) any

	// When optionally gates whether the rule fires. A nil When always fires.
	When func(out any) bool

	// EntityID optionally derives the audited entity's id from the output.
	EntityID func(out any) string

	// Table optionally hints the target table/partition for the record.
	Table string
}

// fires reports whether the rule applies to the given output.
func (r Rule) fires(out any) bool {
	return r.When == nil || r.When(out)
}

// Tx is an opaque handle for an in-flight atomic unit. Handlers that need
// to perform their own writes inside the same atomic scope can recover the
// driver-level transaction via Underlying.
type Tx interface {
	Underlying() any
}

// Database is the transactional resource contract. Transaction runs fn
// inside one atomic unit: if fn returns an error the transaction rolls
// back, otherwise it commits. The handle must be released on every exit
// path, including panics and context cancellation.
type Database interface {
	// ServiceName identifies the underlying resource. Two services with the
	// same name share one transactional resource.
	ServiceName() string

	Transaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Filter narrows audit queries.
type Filter struct {
	Type     string
	Actor    string
	EntityID string
	Since    time.Time
	Limit    int
}

// Store is the audit storage contract. Write persists records, joining the
// given transaction when one is provided so audit writes participate in the
// same atomic scope as the handler's own writes.
type Store interface {
	// ServiceName identifies the store's backing transactional resource,
	// used to detect whether it is shared with the handler's database.
	ServiceName() string

	Write(ctx context.Context, records []Record, tx Tx) error
	Query(ctx context.Context, f Filter) ([]Record, error)
}

// Auditor is the per-invocation capability handed to handlers. Audit queues
// a record in memory; nothing is written until the coordinator flushes the
// queue at commit time.
type Auditor interface {
	Audit(eventType string, payload any, opts ...RecordOption)
}

// RecordOption customizes a manually queued audit record.
type RecordOption func(*Record)

// WithEntityID attaches the audited entity's id to the record.
func WithEntityID(id string) RecordOption {
	return func(r *Record) { r.EntityID = id }
}

// WithTable hints the target table/partition for the record.
func WithTable(table string) RecordOption {
	return func(r *Record) { r.Table = table }
}

// MetaCarrier is implemented by handler return values that wrap a payload
// with response metadata. The coordinator validates and audits the inner
// payload, not the wrapper.
type MetaCarrier interface {
	ResponsePayload() any
}
