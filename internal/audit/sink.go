/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package audit implements the vault's audit sink (C5): every mutating
// operation records a best-effort, independently-committed entry so that an
// audit write failure never changes the outcome of the primary operation.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeops-vault/vault/internal/metrics"
	"github.com/codeops-vault/vault/internal/pgutil"
	"github.com/codeops-vault/vault/pkg/logctx"
)

const (
	// DefaultBufferSize is the default capacity of the async event buffer.
	DefaultBufferSize = 1024
	// DefaultWorkers is the default number of background writer goroutines.
	DefaultWorkers = 2
	// DefaultBatchSize is the maximum number of entries written per batch.
	DefaultBatchSize = 50
	// DefaultFlushInterval is the maximum time between batch writes.
	DefaultFlushInterval = 500 * time.Millisecond
)

// Config configures a Sink.
type Config struct {
	BufferSize    int
	Workers       int
	BatchSize     int
	FlushInterval time.Duration
}

// dbPool abstracts the database operations needed by the audit sink. This
// allows mocking in unit tests while using *pgxpool.Pool in production. Each
// batch write runs in its own Exec call against the pool — a separate
// transaction from whatever the caller's primary operation is using.
type dbPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Sink is the audit pipeline: LogSuccess/LogFailure enqueue records
// non-blockingly; background workers batch-insert them into Postgres on
// their own schedule, decoupled from the caller entirely.
type Sink struct {
	pool    dbPool
	buffer  chan *Record
	stopCh  chan struct{}
	wg      sync.WaitGroup
	metrics *metrics.AuditMetrics
	log     logr.Logger
	cfg     Config
}

// New creates a Sink that writes to PostgreSQL asynchronously.
func New(pool *pgxpool.Pool, log logr.Logger, m *metrics.AuditMetrics, cfg Config) *Sink {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}

	var db dbPool
	if pool != nil {
		db = pool
	}

	s := &Sink{
		pool:    db,
		buffer:  make(chan *Record, cfg.BufferSize),
		stopCh:  make(chan struct{}),
		metrics: m,
		log:     log.WithName("audit-sink"),
		cfg:     cfg,
	}

	for range cfg.Workers {
		s.wg.Add(1)
		go s.worker()
	}

	return s
}

// LogSuccess records a successful operation. Non-blocking: if the buffer is
// full the entry is dropped and a metric incremented, per the best-effort
// contract — audit failures never propagate to the caller.
func (s *Sink) LogSuccess(ctx context.Context, e Entry) {
	s.enqueue(ctx, e, true, "")
}

// LogFailure records a failed operation.
func (s *Sink) LogFailure(ctx context.Context, e Entry, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	s.enqueue(ctx, e, false, msg)
}

func (s *Sink) enqueue(ctx context.Context, e Entry, success bool, errMsg string) {
	fields := logctx.ExtractFields(ctx)
	r := &Record{
		CreatedAt:     time.Now().UTC(),
		Team:          e.Team,
		User:          e.User,
		Operation:     e.Operation,
		Path:          e.Path,
		ResourceType:  e.ResourceType,
		ResourceID:    e.ResourceID,
		Success:       success,
		Error:         errMsg,
		ClientIP:      fields.ClientIP,
		CorrelationID: fields.CorrelationID,
		Details:       e.Details,
	}

	if s.metrics != nil {
		s.metrics.EventsTotal.WithLabelValues(e.Operation, strconv.FormatBool(success)).Inc()
	}

	select {
	case s.buffer <- r:
	default:
		if s.metrics != nil {
			s.metrics.BufferDrops.WithLabelValues(e.Operation).Inc()
		}
		s.log.V(1).Info("audit buffer full, dropping entry", "operation", e.Operation)
	}
}

// Query performs a synchronous query against the audit_record table,
// applying exactly one filter by priority: resource (type+id) > user >
// operation > path > time range > failures-only > all.
func (s *Sink) Query(ctx context.Context, opts QueryOpts) (*QueryResult, error) {
	if s.metrics != nil {
		s.metrics.QueriesTotal.Inc()
		start := time.Now()
		defer func() {
			s.metrics.QueryDuration.Observe(time.Since(start).Seconds())
		}()
	}

	qb := buildQueryFilter(opts)
	where := qb.Where()

	var total int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_record WHERE 1=1"+where, qb.Args()...).Scan(&total); err != nil {
		return nil, fmt.Errorf("audit: count query: %w", err)
	}

	limit := max(opts.Limit, 1)
	limit = min(limit, 500)
	offset := max(opts.Offset, 0)

	dataQuery := `SELECT id, created_at, team, "user", operation, path,
		resource_type, resource_id, success, error,
		client_ip, correlation_id, details
		FROM audit_record WHERE 1=1` + where + ` ORDER BY id DESC`
	dataQuery = qb.AppendPagination(dataQuery, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, qb.Args()...)
	if err != nil {
		return nil, fmt.Errorf("audit: data query: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	return &QueryResult{
		Records: records,
		Total:   total,
		HasMore: int64(offset)+int64(len(records)) < total,
	}, nil
}

// Close stops background workers and drains the buffer.
func (s *Sink) Close() error {
	close(s.stopCh)
	s.wg.Wait()
	return nil
}

func (s *Sink) worker() {
	defer s.wg.Done()

	batch := make([]*Record, 0, s.cfg.BatchSize)
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-s.buffer:
			if !ok {
				s.flushBatch(batch)
				return
			}
			batch = append(batch, rec)
			if len(batch) >= s.cfg.BatchSize {
				s.writeBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.writeBatch(batch)
				batch = batch[:0]
			}

		case <-s.stopCh:
			batch = s.drainBuffer(batch)
			s.flushBatch(batch)
			return
		}
	}
}

func (s *Sink) drainBuffer(batch []*Record) []*Record {
	for {
		select {
		case rec, ok := <-s.buffer:
			if !ok {
				return batch
			}
			batch = append(batch, rec)
			if len(batch) >= s.cfg.BatchSize {
				s.writeBatch(batch)
				batch = batch[:0]
			}
		default:
			return batch
		}
	}
}

func (s *Sink) flushBatch(batch []*Record) {
	if len(batch) > 0 {
		s.writeBatch(batch)
	}
}

// writeBatch inserts a slice of records into audit_record in its own
// context, detached from whatever transaction the triggering operation used.
func (s *Sink) writeBatch(records []*Record) {
	if len(records) == 0 || s.pool == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	query, args := buildBatchInsert(records)
	_, err := s.pool.Exec(ctx, query, args...)
	duration := time.Since(start)

	op := records[0].Operation
	if s.metrics != nil {
		s.metrics.WriteDuration.WithLabelValues(op).Observe(duration.Seconds())
	}

	if err != nil {
		if s.metrics != nil {
			s.metrics.WriteErrors.WithLabelValues(op).Inc()
		}
		s.log.Error(err, "failed to write audit batch", "count", len(records))
	}
}

// --- query helpers ----------------------------------------------------------

func buildQueryFilter(opts QueryOpts) *pgutil.QueryBuilder {
	qb := &pgutil.QueryBuilder{}
	switch {
	case opts.ResourceType != "" && opts.ResourceID != "":
		qb.Add("resource_type = $?", opts.ResourceType)
		qb.Add("resource_id = $?", opts.ResourceID)
	case opts.User != "":
		qb.Add(`"user" = $?`, opts.User)
	case opts.Operation != "":
		qb.Add("operation = $?", opts.Operation)
	case opts.Path != "":
		qb.Add("path = $?", opts.Path)
	case !opts.From.IsZero() || !opts.To.IsZero():
		if !opts.From.IsZero() {
			qb.Add("created_at >= $?", opts.From)
		}
		if !opts.To.IsZero() {
			qb.Add("created_at < $?", opts.To)
		}
	case opts.FailuresOnly:
		qb.Add("success = $?", false)
	}
	return qb
}

func scanRecords(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]*Record, error) {
	var records []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate rows: %w", err)
	}
	if records == nil {
		records = []*Record{}
	}
	return records, nil
}

func scanRecord(row interface{ Scan(dest ...any) error }) (*Record, error) {
	var r Record
	var path, resourceType, resourceID, errMsg, clientIP, correlationID *string
	var detailsJSON []byte

	if err := row.Scan(
		&r.ID, &r.CreatedAt, &r.Team, &r.User, &r.Operation,
		&path, &resourceType, &resourceID, &r.Success, &errMsg,
		&clientIP, &correlationID, &detailsJSON,
	); err != nil {
		return nil, fmt.Errorf("audit: scan row: %w", err)
	}

	r.Path = pgutil.DerefString(path)
	r.ResourceType = pgutil.DerefString(resourceType)
	r.ResourceID = pgutil.DerefString(resourceID)
	r.Error = pgutil.DerefString(errMsg)
	r.ClientIP = pgutil.DerefString(clientIP)
	r.CorrelationID = pgutil.DerefString(correlationID)
	if len(detailsJSON) > 0 {
		_ = json.Unmarshal(detailsJSON, &r.Details)
	}

	return &r, nil
}

// --- batch insert helpers ---------------------------------------------------

func buildBatchInsert(records []*Record) (string, []any) {
	const cols = 12
	values := make([]string, 0, len(records))
	args := make([]any, 0, len(records)*cols)

	for i, r := range records {
		base := i * cols
		placeholders := make([]string, cols)
		for j := range cols {
			placeholders[j] = "$" + strconv.Itoa(base+j+1)
		}
		values = append(values, "("+strings.Join(placeholders, ", ")+")")

		var detailsJSON []byte
		if len(r.Details) > 0 {
			detailsJSON, _ = json.Marshal(r.Details)
		} else {
			detailsJSON = []byte("{}")
		}

		args = append(args,
			r.CreatedAt, r.Team, r.User, r.Operation,
			pgutil.NullString(r.Path), pgutil.NullString(r.ResourceType), pgutil.NullString(r.ResourceID),
			r.Success, pgutil.NullString(r.Error),
			pgutil.NullString(r.ClientIP), pgutil.NullString(r.CorrelationID),
		)
		args = append(args, detailsJSON)
	}

	query := `INSERT INTO audit_record (
		created_at, team, "user", operation,
		path, resource_type, resource_id,
		success, error, client_ip, correlation_id, details
	) VALUES ` + strings.Join(values, ", ")

	return query, args
}
