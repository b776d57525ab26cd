package main

import (
	"context"
	"sync"

	"aggsearch/internal/config"
	"aggsearch/internal/cursor"
	"aggsearch/internal/engine"
	"aggsearch/internal/kvstore"
	"aggsearch/internal/lookup"
	"aggsearch/internal/schema"
	"aggsearch/internal/telemetry"
)

// server holds every collaborator an HTTP handler needs to bind, build,
// and execute a command. One instance is shared by all handlers; every
// field is safe for concurrent use.
type server struct {
	cfg      config.Config
	store    kvstore.DocStore
	resolver *engine.RedisIndexResolver
	catalog  schema.Catalog
	vecIndex kvstore.VectorIndex
	cursors  *cursor.Registry
	sink     *telemetry.Sink

	// cursorLookups remembers the Lookup a parked cursor's rows were
	// bound against: cursor.Registry itself only tracks a processor
	// chain and an index name, not the Lookup a reply renderer needs to
	// know which fields a row carries.
	cursorMu      sync.Mutex
	cursorLookups map[uint64]*lookup.Lookup
}

// bindLookup borrows index's schema, the pre-parse step every command
// handler performs before calling into internal/command. It returns only
// the Handle; the handler seeds its Lookup from it (see
// command.NewLookupFromSchema's doc comment).
func (s *server) bindLookup(ctx context.Context, index string) (*schema.Handle, error) {
	return s.catalog.Borrow(ctx, index)
}

func (s *server) rememberCursorLookup(id uint64, lk *lookup.Lookup) {
	s.cursorMu.Lock()
	defer s.cursorMu.Unlock()
	if s.cursorLookups == nil {
		s.cursorLookups = make(map[uint64]*lookup.Lookup)
	}
	s.cursorLookups[id] = lk
}

// cursorLookup returns the Lookup a cursor's rows were bound against, or
// nil once the cursor has been fully drained/deleted (renderRows treats
// a nil Lookup as "no visible fields" rather than panicking).
func (s *server) cursorLookup(id uint64) *lookup.Lookup {
	s.cursorMu.Lock()
	defer s.cursorMu.Unlock()
	return s.cursorLookups[id]
}

func (s *server) forgetCursorLookup(id uint64) {
	s.cursorMu.Lock()
	defer s.cursorMu.Unlock()
	delete(s.cursorLookups, id)
}
