package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/constructhq/construct/internal/audit"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// DefaultAuditTable is where audit records land unless a rule or manual
// record names another table.
const DefaultAuditTable = "audit_log"

// AuditStore persists audit records to PostgreSQL. It implements both
// audit.Store and audit.Database (by delegating to the wrapped Database),
// so a construct can use it as its audit storage while the coordinator
// opens the surrounding transaction on the same pool.
type AuditStore struct {
	db  *Database
	log *zerolog.Logger
}

// NewAuditStore creates an audit store backed by the given database.
func NewAuditStore(db *Database, logger *zerolog.Logger) *AuditStore {
	return &AuditStore{
		db:  db,
		log: logger,
	}
}

// ServiceName implements audit.Store. It reports the wrapped database's
// name so shared-resource detection matches when a construct declares the
// same PostgreSQL instance for its database and audit storage.
func (s *AuditStore) ServiceName() string {
	return s.db.ServiceName()
}

// Transaction implements audit.Database by delegating to the pool.
func (s *AuditStore) Transaction(ctx context.Context, fn func(ctx context.Context, tx audit.Tx) error) error {
	return s.db.Transaction(ctx, fn)
}

// Write inserts the batch of records. When tx carries a pgx transaction the
// inserts join it, so they commit or roll back with the handler's writes.
func (s *AuditStore) Write(ctx context.Context, records []audit.Record, tx audit.Tx) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			return fmt.Errorf("marshaling payload for audit record %q: %w", rec.Type, err)
		}

		table := rec.Table
		if table == "" {
			table = DefaultAuditTable
		}

		sql := fmt.Sprintf(
			`INSERT INTO %s (id, type, payload, actor, entity_id, created_at)
			 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)`,
			pgx.Identifier{table}.Sanitize(),
		)
		batch.Queue(sql, rec.ID, rec.Type, payload, rec.Actor, rec.EntityID, rec.CreatedAt)
	}

	results := s.batchSender(tx).SendBatch(ctx, batch)
	defer results.Close()

	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("inserting audit record: %w", err)
		}
	}

	s.log.Debug().Int("records", len(records)).Msg("audit records written")
	return nil
}

// batchSender picks the executor: the live transaction when one is in
// flight, the pool otherwise.
func (s *AuditStore) batchSender(tx audit.Tx) interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
} {
	if tx != nil {
		if pgtx, ok := tx.Underlying().(pgx.Tx); ok {
			return pgtx
		}
	}
	return s.db.Pool
}

// Query returns records from the default audit table matching the filter,
// newest first.
func (s *AuditStore) Query(ctx context.Context, filter audit.Filter) ([]audit.Record, error) {
	var (
		conditions []string
		args       []any
	)

	appendCond := func(column string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if filter.Type != "" {
		appendCond("type", filter.Type)
	}
	if filter.Actor != "" {
		appendCond("actor", filter.Actor)
	}
	if filter.EntityID != "" {
		appendCond("entity_id", filter.EntityID)
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	query := `SELECT id, type, payload, actor, COALESCE(entity_id, ''), created_at FROM ` + DefaultAuditTable
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit records: %w", err)
	}
	defer rows.Close()

	var records []audit.Record
	for rows.Next() {
		var (
			rec       audit.Record
			payload   json.RawMessage
			createdAt time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.Type, &payload, &rec.Actor, &rec.EntityID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}
		rec.CreatedAt = createdAt

		var decoded any
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, fmt.Errorf("decoding payload for audit record %s: %w", rec.ID, err)
		}
		rec.Payload = decoded

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading audit records: %w", err)
	}

	return records, nil
}
