// Package schema implements the durable index field-definition catalog
// (SPEC_FULL.md §4.9): name/type/sortable/no-index flags, loaded once per
// index and handed to aggplan at parse time. Backed by Postgres in
// production (grounded on the teacher's pgxpool pooling pattern in
// internal/persistence/databases/pool.go and factory.go), an in-memory
// map in tests.
package schema

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"aggsearch/internal/qerror"
)

// FieldType mirrors the subset of FT.CREATE field types this engine cares
// about for plan validation.
type FieldType int

const (
	FieldText FieldType = iota
	FieldNumeric
	FieldTag
	FieldVector
)

// FieldDef is one index field's durable definition.
type FieldDef struct {
	Name     string
	Type     FieldType
	Sortable bool
	NoIndex  bool
}

// Catalog resolves an index name to its field definitions. Implementations
// back aggplan's bind-time LOAD/SORTBY validation.
type Catalog interface {
	// Borrow returns a read handle on index's schema, valid until
	// Release is called. The registry defers a Drop (see PGCatalog.Drop)
	// until every outstanding borrow on that index is released.
	Borrow(ctx context.Context, index string) (*Handle, error)
}

// Handle is a refcounted read borrow on one index's schema: a pipeline
// holds one for its whole life (spec.md §5), so a concurrent Drop can't
// invalidate fields the pipeline already resolved.
type Handle struct {
	Index  string
	Fields map[string]FieldDef

	release func()
	once    sync.Once
}

// Release drops this borrow's refcount. Safe to call more than once.
func (h *Handle) Release() {
	h.once.Do(func() {
		if h.release != nil {
			h.release()
		}
	})
}

// Field looks up one field definition by name.
func (h *Handle) Field(name string) (FieldDef, bool) {
	f, ok := h.Fields[name]
	return f, ok
}

// refEntry is one index's cached field definitions plus live borrow count.
type refEntry struct {
	fields  map[string]FieldDef
	refs    int
	dropped bool
}

// MemCatalog is an in-memory Catalog for tests and single-process
// deployments, with the same refcounted Borrow/Release/Drop semantics as
// PGCatalog so callers don't special-case it.
type MemCatalog struct {
	mu      sync.Mutex
	indexes map[string]*refEntry
}

// NewMemCatalog returns an empty MemCatalog.
func NewMemCatalog() *MemCatalog {
	return &MemCatalog{indexes: make(map[string]*refEntry)}
}

// Define registers or replaces index's field set (not refcounted itself —
// only Drop is, matching "schema drop is delayed until no pipeline
// references remain").
func (c *MemCatalog) Define(index string, fields []FieldDef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := make(map[string]FieldDef, len(fields))
	for _, f := range fields {
		m[f.Name] = f
	}
	if e, ok := c.indexes[index]; ok {
		e.fields = m
		return
	}
	c.indexes[index] = &refEntry{fields: m}
}

func (c *MemCatalog) Borrow(_ context.Context, index string) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.indexes[index]
	if !ok {
		return nil, qerror.New(qerror.NoIndex, fmt.Sprintf("unknown index %q", index))
	}
	e.refs++
	return &Handle{
		Index:  index,
		Fields: e.fields,
		release: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			e.refs--
			if e.refs <= 0 && e.dropped {
				delete(c.indexes, index)
			}
		},
	}, nil
}

// Drop marks index for removal once its last outstanding Handle releases.
func (c *MemCatalog) Drop(index string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.indexes[index]
	if !ok {
		return
	}
	e.dropped = true
	if e.refs <= 0 {
		delete(c.indexes, index)
	}
}

// PGCatalog is a Postgres-backed Catalog: field definitions persist
// across restarts in a "schema_fields" table, cached in memory per index
// and refreshed on Borrow when the cache is empty.
type PGCatalog struct {
	pool  *pgxpool.Pool
	mu    sync.Mutex
	cache map[string]*refEntry
}

// OpenPool dials Postgres with the same conservative defaults as the
// teacher's newPgPool: a bounded pool, connection lifetime/idle caps, and
// a startup ping so a bad DSN fails fast.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("schema: parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("schema: open pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("schema: ping: %w", err)
	}
	return pool, nil
}

// NewPGCatalog wraps an already-opened pool.
func NewPGCatalog(pool *pgxpool.Pool) *PGCatalog {
	return &PGCatalog{pool: pool, cache: make(map[string]*refEntry)}
}

const schemaFieldsDDL = `
CREATE TABLE IF NOT EXISTS schema_fields (
	index_name TEXT NOT NULL,
	field_name TEXT NOT NULL,
	field_type SMALLINT NOT NULL,
	sortable   BOOLEAN NOT NULL DEFAULT false,
	no_index   BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (index_name, field_name)
)`

// EnsureSchema creates the backing table if it doesn't exist.
func (c *PGCatalog) EnsureSchema(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, schemaFieldsDDL)
	return err
}

// DefineField upserts one field definition for index, persisted
// immediately.
func (c *PGCatalog) DefineField(ctx context.Context, index string, f FieldDef) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO schema_fields (index_name, field_name, field_type, sortable, no_index)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (index_name, field_name) DO UPDATE
		SET field_type = EXCLUDED.field_type, sortable = EXCLUDED.sortable, no_index = EXCLUDED.no_index
	`, index, f.Name, int(f.Type), f.Sortable, f.NoIndex)
	if err != nil {
		return fmt.Errorf("schema: define field %s.%s: %w", index, f.Name, err)
	}
	c.mu.Lock()
	delete(c.cache, index) // force reload on next Borrow
	c.mu.Unlock()
	return nil
}

func (c *PGCatalog) load(ctx context.Context, index string) (map[string]FieldDef, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT field_name, field_type, sortable, no_index
		FROM schema_fields WHERE index_name = $1
	`, index)
	if err != nil {
		return nil, fmt.Errorf("schema: load %s: %w", index, err)
	}
	defer rows.Close()
	out := map[string]FieldDef{}
	for rows.Next() {
		var f FieldDef
		var typ int
		if err := rows.Scan(&f.Name, &typ, &f.Sortable, &f.NoIndex); err != nil {
			return nil, fmt.Errorf("schema: scan %s: %w", index, err)
		}
		f.Type = FieldType(typ)
		out[f.Name] = f
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PGCatalog) Borrow(ctx context.Context, index string) (*Handle, error) {
	c.mu.Lock()
	e, ok := c.cache[index]
	c.mu.Unlock()
	if !ok {
		fields, err := c.load(ctx, index)
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			return nil, qerror.New(qerror.NoIndex, fmt.Sprintf("unknown index %q", index))
		}
		c.mu.Lock()
		e, ok = c.cache[index]
		if !ok {
			e = &refEntry{fields: fields}
			c.cache[index] = e
		}
		c.mu.Unlock()
	}
	c.mu.Lock()
	e.refs++
	c.mu.Unlock()
	return &Handle{
		Index:  index,
		Fields: e.fields,
		release: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			e.refs--
			if e.refs <= 0 && e.dropped {
				delete(c.cache, index)
			}
		},
	}, nil
}

// Drop evicts index's cached schema once its last Handle is released; the
// next Borrow reloads from Postgres.
func (c *PGCatalog) Drop(index string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[index]
	if !ok {
		return
	}
	e.dropped = true
	if e.refs <= 0 {
		delete(c.cache, index)
	}
}

var _ Catalog = (*MemCatalog)(nil)
var _ Catalog = (*PGCatalog)(nil)
