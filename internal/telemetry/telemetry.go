// Package telemetry appends one row per executed AREQ to ClickHouse for
// offline query-performance analysis: plan shape, per-processor timings,
// and the timeout/cancellation outcome. It is independent of the OTel
// live metrics path in internal/obs.
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
)

// ProcessorTiming is how long one result-processor step in an AREQ's
// chain spent, keyed by its rp.Kind string (INDEX, FILTER, SORTER, ...).
type ProcessorTiming struct {
	Kind     string
	Elapsed  time.Duration
	RowsOut  int64
}

// Outcome is how an AREQ finished.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeError     Outcome = "error"
)

// Record is one executed AREQ: enough to reconstruct its plan shape and
// where time went, without replaying the query itself.
type Record struct {
	CorrelationID uuid.UUID
	Index         string
	Verb          string // SEARCH, AGGREGATE, HYBRID, CURSOR_READ
	PlanSteps     []string
	Timings       []ProcessorTiming
	RowsReturned  int64
	Outcome       Outcome
	ErrorMessage  string
	StartedAt     time.Time
	TotalElapsed  time.Duration
}

// Config is the subset of internal/config's connection settings telemetry
// needs to dial ClickHouse and address its table.
type Config struct {
	DSN            string
	Database       string
	Table          string
	TimeoutSeconds int
}

// Sink appends Records to a ClickHouse table. A nil *Sink is valid and
// every method is then a no-op, so callers can wire telemetry
// unconditionally and simply leave the DSN empty to disable it.
type Sink struct {
	conn    clickhouse.Conn
	table   string
	timeout time.Duration
}

// Open dials ClickHouse per cfg and ensures the execution-stats table
// exists. An empty DSN returns (nil, nil): telemetry is then disabled.
func Open(ctx context.Context, cfg Config) (*Sink, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, nil
	}

	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("telemetry: parse clickhouse dsn: %w", err)
	}
	if cfg.Database != "" {
		opts.Auth.Database = cfg.Database
	} else if opts.Auth.Database == "" {
		opts.Auth.Database = "aggsearch"
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open clickhouse connection: %w", err)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = "areq_stats"
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("telemetry: clickhouse ping: %w", err)
	}

	if err := ensureTable(pingCtx, conn, opts.Auth.Database, table); err != nil {
		return nil, err
	}

	return &Sink{conn: conn, table: table, timeout: timeout}, nil
}

func ensureTable(ctx context.Context, conn clickhouse.Conn, db, table string) error {
	sql := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.%s (
	CorrelationId String,
	IndexName LowCardinality(String),
	Verb LowCardinality(String),
	PlanSteps Array(String),
	ProcessorKinds Array(String),
	ProcessorElapsedMs Array(UInt64),
	ProcessorRowsOut Array(Int64),
	RowsReturned Int64,
	Outcome LowCardinality(String),
	ErrorMessage String,
	StartedAt DateTime64(3),
	TotalElapsedMs UInt64
) ENGINE = MergeTree()
ORDER BY (IndexName, StartedAt)
TTL StartedAt + INTERVAL 30 DAY
SETTINGS index_granularity = 8192
`, db, table)

	if err := conn.Exec(ctx, sql); err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("telemetry: create table %s.%s: %w", db, table, err)
	}
	return nil
}

// Append writes one Record. Nil-safe: a nil Sink or nil conn is a no-op,
// so the caller never has to branch on whether telemetry is enabled.
func (s *Sink) Append(ctx context.Context, r Record) error {
	if s == nil || s.conn == nil {
		return nil
	}

	kinds := make([]string, len(r.Timings))
	elapsed := make([]uint64, len(r.Timings))
	rowsOut := make([]int64, len(r.Timings))
	for i, t := range r.Timings {
		kinds[i] = t.Kind
		elapsed[i] = uint64(t.Elapsed.Milliseconds())
		rowsOut[i] = t.RowsOut
	}

	execCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	batch, err := s.conn.PrepareBatch(execCtx, fmt.Sprintf("INSERT INTO %s", s.table))
	if err != nil {
		return fmt.Errorf("telemetry: prepare batch: %w", err)
	}

	if err := batch.Append(
		r.CorrelationID.String(),
		r.Index,
		r.Verb,
		r.PlanSteps,
		kinds,
		elapsed,
		rowsOut,
		r.RowsReturned,
		string(r.Outcome),
		r.ErrorMessage,
		r.StartedAt,
		uint64(r.TotalElapsed.Milliseconds()),
	); err != nil {
		return fmt.Errorf("telemetry: append row: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("telemetry: send batch: %w", err)
	}
	return nil
}

// Close releases the underlying ClickHouse connection. Nil-safe.
func (s *Sink) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
