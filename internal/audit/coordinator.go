package audit

import (
	"context"
	"sync"
	"time"

	"github.com/constructhq/construct/internal/errs"
	"github.com/constructhq/construct/internal/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Coordinator wraps one invocation's handler execution and audit writes in
// a single atomic unit. Either the handler's side effects and every queued
// audit record persist together, or none of them do.
type Coordinator struct {
	log zerolog.Logger

	// overridable in tests
	now   func() time.Time
	newID func() string
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(log zerolog.Logger) *Coordinator {
	return &Coordinator{
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Plan describes one invocation for the coordinator. The pipeline assembles
// it from the construct's declaration and its resolved services.
type Plan struct {
	// Store is the audit storage service, or nil when the construct has no
	// audit storage configured.
	Store Store

	// Database is the transactional resource that opens the atomic unit.
	// It is the store's backing resource and must be set whenever Store is.
	Database Database

	// Rules are the construct's declarative audit rules.
	Rules []Rule

	// Actor attributes queued records to an identity.
	Actor string

	// Output optionally validates the handler's payload before any audit
	// record is flushed.
	Output schema.Schema

	// Exec runs the handler. The auditor queues records in memory; tx is
	// nil when no transaction is open.
	Exec func(ctx context.Context, a Auditor, tx Tx) (any, error)

	// Logger is the request-scoped logger.
	Logger zerolog.Logger
}

// Outcome is a successful coordinator run.
type Outcome struct {
	// Output is the raw handler return value (possibly a MetaCarrier).
	Output any

	// Payload is the validated payload, with any metadata wrapper stripped.
	Payload any

	// Audited is the number of audit records persisted.
	Audited int
}

// Run executes the plan.
//
// Without audit storage the handler runs directly: no transaction is
// opened, manual audit calls are discarded, and declarative rules (a
// likely misconfiguration, not an error) produce a warning and are
// skipped. With audit storage, the handler runs inside one transaction
// together with output validation and the audit flush; any failure rolls
// the whole unit back.
func (c *Coordinator) Run(ctx context.Context, p Plan) (*Outcome, error) {
	if p.Store == nil {
		return c.runDirect(ctx, p)
	}
	return c.runTransactional(ctx, p)
}

func (c *Coordinator) runDirect(ctx context.Context, p Plan) (*Outcome, error) {
	if len(p.Rules) > 0 {
		p.Logger.Warn().
			Int("rules", len(p.Rules)).
			Msg("declarative audit rules configured without audit storage; skipping audits")
	}

	out, err := p.Exec(ctx, discardAuditor{log: p.Logger}, nil)
	if err != nil {
		return nil, err
	}

	payload, verr := c.validateOutput(p, responsePayload(out))
	if verr != nil {
		return nil, verr
	}

	return &Outcome{Output: out, Payload: payload}, nil
}

func (c *Coordinator) runTransactional(ctx context.Context, p Plan) (*Outcome, error) {
	outcome := &Outcome{}

	err := p.Database.Transaction(ctx, func(ctx context.Context, tx Tx) error {
		queue := &queueAuditor{}

		// 1. Handler executes inside the transaction. An error propagates
		// and rolls back; no queued audits are written.
		out, err := p.Exec(ctx, queue, tx)
		if err != nil {
			return err
		}

		// 2. Output validation happens before any audit flush. A failure is
		// treated the same as a handler failure: rollback, no audit writes,
		// even for records the handler queued manually.
		payload, verr := c.validateOutput(p, responsePayload(out))
		if verr != nil {
			return verr
		}

		// 3. Declarative rules observe the validated output and append
		// their records behind the handler's manual ones.
		for _, rule := range p.Rules {
			if !rule.fires(payload) {
				continue
			}
			rec := Record{Type: rule.Type, Table: rule.Table}
			if rule.Payload != nil {
				rec.Payload = rule.Payload(payload)
			}
			if rule.EntityID != nil {
				rec.EntityID = rule.EntityID(payload)
			}
			queue.append(rec)
		}

		// 4. Flush the whole queue through the same transaction handle. A
		// flush failure rolls back the handler's writes as well.
		records := queue.drain()
		for i := range records {
			records[i].ID = c.newID()
			records[i].Actor = p.Actor
			records[i].CreatedAt = c.now().UTC()
		}
		if len(records) > 0 {
			if err := p.Store.Write(ctx, records, tx); err != nil {
				return errs.NewAuditPersistenceError(err)
			}
		}

		outcome.Output = out
		outcome.Payload = payload
		outcome.Audited = len(records)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return outcome, nil
}

func (c *Coordinator) validateOutput(p Plan, payload any) (any, error) {
	if p.Output == nil {
		return payload, nil
	}
	validated, issues := p.Output.Validate(payload)
	if len(issues) > 0 {
		return nil, errs.NewOutputValidationError(issues)
	}
	return validated, nil
}

// responsePayload strips a metadata wrapper so validation and audit rules
// see the payload the client will receive.
func responsePayload(out any) any {
	if mc, ok := out.(MetaCarrier); ok {
		return mc.ResponsePayload()
	}
	return out
}

// queueAuditor collects records in memory during handler execution. Nothing
// touches storage until the coordinator flushes the queue.
type queueAuditor struct {
	mu      sync.Mutex
	records []Record
}

func (q *queueAuditor) Audit(eventType string, payload any, opts ...RecordOption) {
	rec := Record{Type: eventType, Payload: payload}
	for _, opt := range opts {
		opt(&rec)
	}
	q.append(rec)
}

func (q *queueAuditor) append(rec Record) {
	q.mu.Lock()
	q.records = append(q.records, rec)
	q.mu.Unlock()
}

func (q *queueAuditor) drain() []Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	records := q.records
	q.records = nil
	return records
}

// discardAuditor is handed to handlers when no audit storage is configured.
// Manual audit calls are dropped with a debug log rather than failing the
// request.
type discardAuditor struct {
	log zerolog.Logger
}

func (d discardAuditor) Audit(eventType string, payload any, opts ...RecordOption) {
	d.log.Debug().
		Str("audit_type", eventType).
		Msg("audit requested without audit storage; discarded")
}
