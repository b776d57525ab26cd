package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"aggsearch/internal/aggplan"
	"aggsearch/internal/command"
	"aggsearch/internal/engine"
	"aggsearch/internal/qerror"
	"aggsearch/internal/rp"
	"aggsearch/internal/telemetry"
)

// cmdRequest is the JSON envelope every command endpoint accepts: the
// argv tokens a RESP client would have sent after the command verb
// itself (command.ParseSearch/ParseAggregate/ParseHybrid expect the index
// name as argv[0]; command.ParseCursor expects READ or DEL first, then the
// index name).
type cmdRequest struct {
	Argv []string `json:"argv"`
}

type cmdReply struct {
	Rows     []rowReply `json:"rows"`
	CursorID uint64     `json:"cursorId,omitempty"`
	Error    string     `json:"error,omitempty"`
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.runBound(w, r, "SEARCH")
}

func (s *server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	s.runBound(w, r, "AGGREGATE")
}

func (s *server) runBound(w http.ResponseWriter, r *http.Request, verb string) {
	var body cmdRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Argv) < 2 {
		writeError(w, qerror.New(qerror.ParseArgs, "bad request body"))
		return
	}
	index := body.Argv[0]
	ctx := r.Context()

	handle, err := s.bindLookup(ctx, index)
	if err != nil {
		writeError(w, err)
		return
	}
	defer handle.Release()
	lk := command.NewLookupFromSchema(handle)

	var req *command.Request
	switch verb {
	case "SEARCH":
		req, err = command.ParseSearch(body.Argv, lk)
	case "AGGREGATE":
		req, err = command.ParseAggregate(body.Argv, lk)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	plan, err := req.Builder.Build()
	if err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	execCtx, cancel := withTimeout(ctx, req.TimeoutMS)
	defer cancel()

	tail, cursorStep, err := s.buildChain(execCtx, plan, nil)
	if err != nil {
		s.recordTelemetry(ctx, verb, index, plan, start, nil, err)
		writeError(w, err)
		return
	}

	if cursorStep != nil {
		maxIdle := cursorStep.MaxIdleMS
		if maxIdle <= 0 {
			maxIdle = s.cfg.Cursor.DefaultMaxIdleMS
		}
		id := s.cursors.Register(index, tail, time.Duration(maxIdle)*time.Millisecond)
		s.rememberCursorLookup(id, plan.Lookup)
		rows, liveID, err := s.cursors.Read(execCtx, index, id, cursorStep.Count)
		if liveID == 0 {
			s.forgetCursorLookup(id)
		}
		if err != nil {
			s.recordTelemetry(ctx, verb, index, plan, start, rows, err)
			writeError(w, err)
			return
		}
		s.recordTelemetry(ctx, verb, index, plan, start, rows, nil)
		writeJSON(w, cmdReply{Rows: renderRows(rows, plan.Lookup), CursorID: liveID})
		return
	}

	rows, err := drainAll(execCtx, tail)
	if err != nil {
		s.recordTelemetry(ctx, verb, index, plan, start, rows, err)
		writeError(w, err)
		return
	}
	s.recordTelemetry(ctx, verb, index, plan, start, rows, nil)
	writeJSON(w, cmdReply{Rows: renderRows(rows, plan.Lookup)})
}

func (s *server) handleHybrid(w http.ResponseWriter, r *http.Request) {
	var body cmdRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Argv) < 4 {
		writeError(w, qerror.New(qerror.ParseArgs, "bad request body"))
		return
	}
	ctx := r.Context()
	req, err := command.ParseHybrid(body.Argv)
	if err != nil {
		writeError(w, err)
		return
	}

	handle, err := s.bindLookup(ctx, req.Index)
	if err != nil {
		writeError(w, err)
		return
	}
	defer handle.Release()
	lk := command.NewLookupFromSchema(handle)

	searchB := aggplan.NewBuilder(req.Index, req.SearchQuery, lk)
	if len(req.LoadFields) > 0 {
		searchB.Load(req.LoadFields...)
	}
	k := req.K
	if k <= 0 {
		k = 10
	}
	window := req.Window
	if window <= 0 {
		window = k
	}
	searchB.HybridMerge(req.Mode, k, window, req.RRFConstant, req.Alpha, req.Beta, req.ActiveLimit())
	if req.HasLimit() {
		searchB.Limit(req.LimitOffset, req.LimitCount)
	}
	plan, err := searchB.Build()
	if err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	execCtx, cancel := withTimeout(ctx, req.TimeoutMS)
	defer cancel()

	var extraBranches []rp.Processor
	if s.vecIndex != nil {
		vecBranch, err := engine.BuildVectorBranch(execCtx, s.vecIndex, req.VectorField, []byte(req.VectorBlob), k)
		if err != nil {
			s.recordTelemetry(ctx, "HYBRID", req.Index, plan, start, nil, err)
			writeError(w, err)
			return
		}
		extraBranches = append(extraBranches, vecBranch)
	}

	tail, _, err := s.buildChain(execCtx, plan, extraBranches)
	if err != nil {
		s.recordTelemetry(ctx, "HYBRID", req.Index, plan, start, nil, err)
		writeError(w, err)
		return
	}
	rows, err := drainAll(execCtx, tail)
	if err != nil {
		s.recordTelemetry(ctx, "HYBRID", req.Index, plan, start, rows, err)
		writeError(w, err)
		return
	}
	s.recordTelemetry(ctx, "HYBRID", req.Index, plan, start, rows, nil)
	writeJSON(w, cmdReply{Rows: renderRows(rows, plan.Lookup)})
}

func (s *server) handleCursor(w http.ResponseWriter, r *http.Request) {
	var body cmdRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Argv) < 3 {
		writeError(w, qerror.New(qerror.ParseArgs, "bad request body"))
		return
	}
	req, err := command.ParseCursor(body.Argv)
	if err != nil {
		writeError(w, err)
		return
	}
	if !req.Read {
		if err := s.cursors.Del(req.Index, req.ID); err != nil {
			writeError(w, err)
			return
		}
		s.forgetCursorLookup(req.ID)
		writeJSON(w, cmdReply{})
		return
	}
	lk := s.cursorLookup(req.ID)
	rows, id, err := s.cursors.Read(r.Context(), req.Index, req.ID, req.Count)
	if id == 0 {
		s.forgetCursorLookup(req.ID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, cmdReply{Rows: renderRows(rows, lk), CursorID: id})
}

// withTimeout applies an AREQ's TIMEOUT clause, <= 0 meaning no deadline.
func withTimeout(ctx context.Context, ms int) (context.Context, context.CancelFunc) {
	if ms <= 0 {
		return context.WithCancel(ctx)
	}
	deadline := rp.NewDeadline(time.Duration(ms)*time.Millisecond, rp.TimeoutReturn)
	ctx, cancel := context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
	return rp.WithDeadline(ctx, deadline), cancel
}

func drainAll(ctx context.Context, tail rp.Processor) ([]rp.SearchResult, error) {
	var out []rp.SearchResult
	for {
		var sr rp.SearchResult
		status, err := tail.Next(ctx, &sr)
		switch status {
		case rp.StatusOk:
			out = append(out, sr)
		case rp.StatusEof:
			return out, nil
		case rp.StatusTimeout:
			return out, qerror.New(qerror.Timeout, "query exceeded its TIMEOUT")
		default:
			return out, err
		}
	}
}

func (s *server) recordTelemetry(ctx context.Context, verb, index string, plan *aggplan.Plan, start time.Time, rows []rp.SearchResult, err error) {
	if s.sink == nil {
		return
	}
	outcome := telemetry.OutcomeOK
	errMsg := ""
	if err != nil {
		outcome = telemetry.OutcomeError
		if qe, ok := qerror.As(err); ok && qe.Kind == qerror.Timeout {
			outcome = telemetry.OutcomeTimeout
		}
		errMsg = err.Error()
	}
	steps := make([]string, len(plan.Steps))
	for i, st := range plan.Steps {
		steps[i] = st.Kind().String()
	}
	rec := telemetry.Record{
		CorrelationID: uuid.New(),
		Index:         index,
		Verb:          verb,
		PlanSteps:     steps,
		RowsReturned:  int64(len(rows)),
		Outcome:       outcome,
		ErrorMessage:  errMsg,
		StartedAt:     start,
		TotalElapsed:  time.Since(start),
	}
	if err := s.sink.Append(ctx, rec); err != nil {
		log.Debug().Err(err).Msg("telemetry append failed")
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if qe, ok := qerror.As(err); ok {
		switch qe.Kind {
		case qerror.ParseArgs, qerror.Syntax, qerror.BadValue, qerror.BadType:
			status = http.StatusBadRequest
		case qerror.NoIndex, qerror.NoField, qerror.NoFunction, qerror.NoCursor:
			status = http.StatusNotFound
		case qerror.Timeout:
			status = http.StatusGatewayTimeout
		case qerror.Limit:
			status = http.StatusTooManyRequests
		}
		log.Debug().Str("kind", qe.Kind.String()).Msg(qe.Obfuscated())
	} else {
		log.Error().Err(err).Msg("internal error")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(cmdReply{Error: err.Error()})
}
