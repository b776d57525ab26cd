// Package command implements the argv command surface from SPEC_FULL.md
// §6: parsing SEARCH/AGGREGATE/HYBRID/CURSOR READ/CURSOR DEL argv into
// aggplan.Builder calls, and rendering the serialized distributed subplan
// envelope shards receive.
package command

import (
	"fmt"
	"strconv"
	"strings"

	"aggsearch/internal/aggplan"
	"aggsearch/internal/lookup"
	"aggsearch/internal/qerror"
	"aggsearch/internal/schema"
)

// NewLookupFromSchema seeds a fresh Lookup with every field from a
// borrowed schema Handle, registered as loadable document fields — the
// pre-binding step a real command handler performs before parsing an
// AGGREGATE/SEARCH body, so GROUPBY/SORTBY/APPLY can reference a schema
// field that was never explicitly LOADed first.
func NewLookupFromSchema(h *schema.Handle) *lookup.Lookup {
	lk := lookup.New()
	for name := range h.Fields {
		lk.GetOrAdd(name, lookup.Flags{Source: lookup.SourceDocument, Loadable: true})
	}
	return lk
}

// stripAt removes a leading "@" from a raw field-name token (LOAD,
// GROUPBY keys/reducer args, SORTBY field, RETURN field — everywhere a
// field is named directly rather than inside an expr string, which the
// expression lexer already unwraps itself), matching the bare names
// internal/lookup and internal/expr both key on.
func stripAt(s string) string { return strings.TrimPrefix(s, "@") }

func stripAtAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = stripAt(s)
	}
	return out
}

// argvCursor walks a command's tokens with small lookahead helpers, the
// same hand-rolled style the teacher uses for its own flag parsers rather
// than pulling in a flag-parsing library for a fixed argv grammar.
type argvCursor struct {
	tok []string
	pos int
}

func (c *argvCursor) done() bool { return c.pos >= len(c.tok) }

func (c *argvCursor) peek() (string, bool) {
	if c.done() {
		return "", false
	}
	return c.tok[c.pos], true
}

func (c *argvCursor) next() (string, error) {
	if c.done() {
		return "", qerror.New(qerror.ParseArgs, "unexpected end of arguments")
	}
	t := c.tok[c.pos]
	c.pos++
	return t, nil
}

func (c *argvCursor) nextInt() (int, error) {
	t, err := c.next()
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(t)
	if err != nil {
		return 0, qerror.New(qerror.ParseArgs, fmt.Sprintf("expected integer, got %q", t))
	}
	return n, nil
}

func (c *argvCursor) nextFloat() (float64, error) {
	t, err := c.next()
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, qerror.New(qerror.ParseArgs, fmt.Sprintf("expected float, got %q", t))
	}
	return f, nil
}

// nextN consumes count and then exactly count more tokens.
func (c *argvCursor) nextN() ([]string, error) {
	n, err := c.nextInt()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, qerror.New(qerror.ParseArgs, "negative count")
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i], err = c.next()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// acceptKeyword consumes the next token if it case-insensitively matches
// kw, reporting whether it did.
func (c *argvCursor) acceptKeyword(kw string) bool {
	t, ok := c.peek()
	if !ok || !strings.EqualFold(t, kw) {
		return false
	}
	c.pos++
	return true
}

// Request is a parsed, not-yet-bound command: the plan builder plus any
// cursor/timeout modifiers the command layer (not aggplan) owns.
type Request struct {
	Builder   *aggplan.Builder
	TimeoutMS int
	Cursor    bool
	CursorN   int
	MaxIdleMS int
}

// ParseSearch parses `SEARCH <index> <query> [NOCONTENT] [LIMIT off cnt]
// [SORTBY field [ASC|DESC]] [RETURN n field*] [WITHSCORES] [WITHPAYLOADS]
// [TIMEOUT ms] [DIALECT n]` into a Request. SUMMARIZE/HIGHLIGHT/PARAMS are
// accepted and skipped: they govern reply rendering or query-string
// substitution, not plan shape, and have no aggplan step of their own.
func ParseSearch(argv []string, lk *lookup.Lookup) (*Request, error) {
	c := &argvCursor{tok: argv}
	index, err := c.next()
	if err != nil {
		return nil, err
	}
	query, err := c.next()
	if err != nil {
		return nil, err
	}
	b := aggplan.NewBuilder(index, query, lk)
	req := &Request{Builder: b}

	var returnFields []string
	for !c.done() {
		switch {
		case c.acceptKeyword("NOCONTENT"):
			// no LOAD step; row carries score/docId only.
		case c.acceptKeyword("LIMIT"):
			off, err := c.nextInt()
			if err != nil {
				return nil, err
			}
			cnt, err := c.nextInt()
			if err != nil {
				return nil, err
			}
			b.Limit(off, cnt)
		case c.acceptKeyword("SORTBY"):
			field, err := c.next()
			if err != nil {
				return nil, err
			}
			asc := true
			if t, ok := c.peek(); ok {
				if strings.EqualFold(t, "ASC") {
					c.pos++
				} else if strings.EqualFold(t, "DESC") {
					asc = false
					c.pos++
				}
			}
			b.SortBy([]aggplan.SortKey{{Field: stripAt(field), Asc: asc}}, 0)
		case c.acceptKeyword("RETURN"):
			fields, err := c.nextN()
			if err != nil {
				return nil, err
			}
			returnFields = stripAtAll(fields)
		case c.acceptKeyword("WITHSCORES"):
		case c.acceptKeyword("WITHPAYLOADS"):
		case c.acceptKeyword("SUMMARIZE"):
			skipOptionalFieldsClause(c)
		case c.acceptKeyword("HIGHLIGHT"):
			skipOptionalFieldsClause(c)
		case c.acceptKeyword("TIMEOUT"):
			ms, err := c.nextInt()
			if err != nil {
				return nil, err
			}
			req.TimeoutMS = ms
		case c.acceptKeyword("PARAMS"):
			if _, err := c.nextKVPairs(); err != nil {
				return nil, err
			}
		case c.acceptKeyword("DIALECT"):
			if _, err := c.nextInt(); err != nil {
				return nil, err
			}
		default:
			t, _ := c.next()
			return nil, qerror.New(qerror.Syntax, fmt.Sprintf("unexpected token %q in SEARCH", t))
		}
	}
	if returnFields != nil {
		b.Load(returnFields...)
	}
	return req, nil
}

// ParseAggregate parses `AGGREGATE <index> <query> [LOAD n field*]
// [GROUPBY n key* (REDUCE fn argc arg* [AS alias])*]* [APPLY expr AS
// alias]* [FILTER expr]* [SORTBY 2k (key ASC|DESC)* [MAX m]] [LIMIT off
// cnt] [WITHCURSOR [COUNT n] [MAXIDLE ms]] [TIMEOUT ms] [DIALECT n]`.
func ParseAggregate(argv []string, lk *lookup.Lookup) (*Request, error) {
	c := &argvCursor{tok: argv}
	index, err := c.next()
	if err != nil {
		return nil, err
	}
	query, err := c.next()
	if err != nil {
		return nil, err
	}
	b := aggplan.NewBuilder(index, query, lk)
	req := &Request{Builder: b}

	for !c.done() {
		switch {
		case c.acceptKeyword("LOAD"):
			fields, err := c.nextN()
			if err != nil {
				return nil, err
			}
			b.Load(stripAtAll(fields)...)
		case c.acceptKeyword("GROUPBY"):
			keys, err := c.nextN()
			if err != nil {
				return nil, err
			}
			keys = stripAtAll(keys)
			var reducers []aggplan.Reducer
			for c.acceptKeyword("REDUCE") {
				fn, err := c.next()
				if err != nil {
					return nil, err
				}
				args, err := c.nextN()
				if err != nil {
					return nil, err
				}
				alias := ""
				if c.acceptKeyword("AS") {
					alias, err = c.next()
					if err != nil {
						return nil, err
					}
				}
				reducers = append(reducers, aggplan.Reducer{Func: fn, Args: stripAtAll(args), Alias: alias})
			}
			b.GroupBy(keys, reducers)
		case c.acceptKeyword("APPLY"):
			exprSrc, err := c.next()
			if err != nil {
				return nil, err
			}
			if !c.acceptKeyword("AS") {
				return nil, qerror.New(qerror.Syntax, "APPLY requires AS alias")
			}
			alias, err := c.next()
			if err != nil {
				return nil, err
			}
			b.Apply(exprSrc, alias)
		case c.acceptKeyword("FILTER"):
			exprSrc, err := c.next()
			if err != nil {
				return nil, err
			}
			b.Filter(exprSrc)
		case c.acceptKeyword("SORTBY"):
			keys, err := parseSortKeys(c)
			if err != nil {
				return nil, err
			}
			max := 0
			if c.acceptKeyword("MAX") {
				max, err = c.nextInt()
				if err != nil {
					return nil, err
				}
			}
			b.SortBy(keys, max)
		case c.acceptKeyword("LIMIT"):
			off, err := c.nextInt()
			if err != nil {
				return nil, err
			}
			cnt, err := c.nextInt()
			if err != nil {
				return nil, err
			}
			b.Limit(off, cnt)
		case c.acceptKeyword("WITHCURSOR"):
			req.Cursor = true
			if c.acceptKeyword("COUNT") {
				n, err := c.nextInt()
				if err != nil {
					return nil, err
				}
				req.CursorN = n
			}
			if c.acceptKeyword("MAXIDLE") {
				ms, err := c.nextInt()
				if err != nil {
					return nil, err
				}
				req.MaxIdleMS = ms
			}
		case c.acceptKeyword("TIMEOUT"):
			ms, err := c.nextInt()
			if err != nil {
				return nil, err
			}
			req.TimeoutMS = ms
		case c.acceptKeyword("PARAMS"):
			if _, err := c.nextKVPairs(); err != nil {
				return nil, err
			}
		case c.acceptKeyword("DIALECT"):
			if _, err := c.nextInt(); err != nil {
				return nil, err
			}
		default:
			t, _ := c.next()
			return nil, qerror.New(qerror.Syntax, fmt.Sprintf("unexpected token %q in AGGREGATE", t))
		}
	}
	if req.Cursor {
		b.WithCursor(req.CursorN, req.MaxIdleMS)
	}
	return req, nil
}

// HybridRequest is the parsed form of a HYBRID command: two independent
// branch queries plus the fusion parameters aggplan.Builder.HybridMerge
// expects. The command layer is responsible for building each branch's
// own sub-Plan (a SEARCH-shaped lexical branch, a VSIM KNN branch) and
// handing their Processors to rp.NewHybridMergerProcessor; this package
// only parses the envelope.
type HybridRequest struct {
	Index         string
	SearchQuery   string
	VectorField   string
	VectorBlob    string
	VSIMFilters   []string
	Mode          aggplan.FusionMode
	K, Window     int
	RRFConstant   float64
	Alpha, Beta   float64
	LimitOffset   int
	LimitCount    int
	LoadFields    []string
	TimeoutMS     int
	hasLimit      bool
}

// ParseHybrid parses `HYBRID <index> SEARCH <q> VSIM <@field> <blob>
// [FILTER expr]* [KNN argc K k …] [COMBINE (RRF argc …|LINEAR argc ALPHA
// α BETA β)] [LIMIT off cnt] [LOAD …] [TIMEOUT ms]`.
func ParseHybrid(argv []string) (*HybridRequest, error) {
	c := &argvCursor{tok: argv}
	index, err := c.next()
	if err != nil {
		return nil, err
	}
	if !c.acceptKeyword("SEARCH") {
		return nil, qerror.New(qerror.Syntax, "HYBRID requires SEARCH <query>")
	}
	query, err := c.next()
	if err != nil {
		return nil, err
	}
	if !c.acceptKeyword("VSIM") {
		return nil, qerror.New(qerror.Syntax, "HYBRID requires VSIM @field blob")
	}
	field, err := c.next()
	if err != nil {
		return nil, err
	}
	blob, err := c.next()
	if err != nil {
		return nil, err
	}

	req := &HybridRequest{
		Index: index, SearchQuery: query,
		VectorField: strings.TrimPrefix(field, "@"), VectorBlob: blob,
	}

	for !c.done() {
		switch {
		case c.acceptKeyword("FILTER"):
			f, err := c.next()
			if err != nil {
				return nil, err
			}
			req.VSIMFilters = append(req.VSIMFilters, f)
		case c.acceptKeyword("KNN"):
			args, err := c.nextN()
			if err != nil {
				return nil, err
			}
			for i := 0; i+1 < len(args); i += 2 {
				if strings.EqualFold(args[i], "K") {
					k, err := strconv.Atoi(args[i+1])
					if err != nil {
						return nil, qerror.New(qerror.ParseArgs, "KNN K must be an integer")
					}
					req.K = k
				}
			}
		case c.acceptKeyword("COMBINE"):
			mode, err := c.next()
			if err != nil {
				return nil, err
			}
			args, err := c.nextN()
			if err != nil {
				return nil, err
			}
			sub := &argvCursor{tok: args}
			switch strings.ToUpper(mode) {
			case "RRF":
				req.Mode = aggplan.FusionRRF
				for !sub.done() {
					switch {
					case sub.acceptKeyword("WINDOW"):
						w, err := sub.nextInt()
						if err != nil {
							return nil, err
						}
						req.Window = w
					case sub.acceptKeyword("CONSTANT"):
						k, err := sub.nextFloat()
						if err != nil {
							return nil, err
						}
						req.RRFConstant = k
					default:
						t, _ := sub.next()
						return nil, qerror.New(qerror.Syntax, fmt.Sprintf("unexpected token %q in COMBINE RRF", t))
					}
				}
			case "LINEAR":
				req.Mode = aggplan.FusionLinear
				for !sub.done() {
					switch {
					case sub.acceptKeyword("ALPHA"):
						a, err := sub.nextFloat()
						if err != nil {
							return nil, err
						}
						req.Alpha = a
					case sub.acceptKeyword("BETA"):
						b, err := sub.nextFloat()
						if err != nil {
							return nil, err
						}
						req.Beta = b
					default:
						t, _ := sub.next()
						return nil, qerror.New(qerror.Syntax, fmt.Sprintf("unexpected token %q in COMBINE LINEAR", t))
					}
				}
			default:
				return nil, qerror.New(qerror.Syntax, fmt.Sprintf("unknown COMBINE mode %q", mode))
			}
		case c.acceptKeyword("LIMIT"):
			off, err := c.nextInt()
			if err != nil {
				return nil, err
			}
			cnt, err := c.nextInt()
			if err != nil {
				return nil, err
			}
			req.LimitOffset, req.LimitCount, req.hasLimit = off, cnt, true
		case c.acceptKeyword("LOAD"):
			fields, err := c.nextN()
			if err != nil {
				return nil, err
			}
			req.LoadFields = stripAtAll(fields)
		case c.acceptKeyword("TIMEOUT"):
			ms, err := c.nextInt()
			if err != nil {
				return nil, err
			}
			req.TimeoutMS = ms
		case c.acceptKeyword("PARAMS"):
			if _, err := c.nextKVPairs(); err != nil {
				return nil, err
			}
		default:
			t, _ := c.next()
			return nil, qerror.New(qerror.Syntax, fmt.Sprintf("unexpected token %q in HYBRID", t))
		}
	}
	return req, nil
}

// HasLimit reports whether a LIMIT clause was present in the command, so
// a caller building a plan from this request knows whether to call
// Builder.Limit at all.
func (r *HybridRequest) HasLimit() bool { return r.hasLimit }

// ActiveLimit returns the LIMIT count for K/WINDOW defaulting purposes
// (aggplan.Builder.HybridMerge's activeLimit parameter), or 0 if none was
// given.
func (r *HybridRequest) ActiveLimit() int {
	if !r.hasLimit {
		return 0
	}
	return r.LimitCount
}

// CursorRequest is a parsed `CURSOR READ <index> <id> [COUNT n]` or
// `CURSOR DEL <index> <id>`.
type CursorRequest struct {
	Read  bool
	Index string
	ID    uint64
	Count int
}

// ParseCursor parses `CURSOR (READ|DEL) <index> <id> [COUNT n]`.
func ParseCursor(argv []string) (*CursorRequest, error) {
	c := &argvCursor{tok: argv}
	verb, err := c.next()
	if err != nil {
		return nil, err
	}
	req := &CursorRequest{}
	switch strings.ToUpper(verb) {
	case "READ":
		req.Read = true
	case "DEL":
		req.Read = false
	default:
		return nil, qerror.New(qerror.Syntax, fmt.Sprintf("unknown CURSOR verb %q", verb))
	}
	req.Index, err = c.next()
	if err != nil {
		return nil, err
	}
	idTok, err := c.next()
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseUint(idTok, 10, 64)
	if err != nil {
		return nil, qerror.New(qerror.ParseArgs, fmt.Sprintf("bad cursor id %q", idTok))
	}
	req.ID = id
	if req.Read && c.acceptKeyword("COUNT") {
		n, err := c.nextInt()
		if err != nil {
			return nil, err
		}
		req.Count = n
	}
	return req, nil
}

// skipOptionalFieldsClause consumes a `[FIELDS n field*]`-shaped
// trailing clause if present, as SUMMARIZE/HIGHLIGHT both allow; these
// govern reply rendering, not plan shape, so the tokens are discarded.
func skipOptionalFieldsClause(c *argvCursor) {
	if !c.acceptKeyword("FIELDS") {
		return
	}
	n, err := c.nextInt()
	if err != nil {
		return
	}
	for i := 0; i < n && !c.done(); i++ {
		c.pos++
	}
}

// nextKVPairs consumes `n k v …` and returns the n key/value pairs.
func (c *argvCursor) nextKVPairs() ([][2]string, error) {
	n, err := c.nextInt()
	if err != nil {
		return nil, err
	}
	out := make([][2]string, n)
	for i := 0; i < n; i++ {
		k, err := c.next()
		if err != nil {
			return nil, err
		}
		v, err := c.next()
		if err != nil {
			return nil, err
		}
		out[i] = [2]string{k, v}
	}
	return out, nil
}

// parseSortKeys consumes `2k (field ASC|DESC)*`, aggplan.ArrangeStep's
// doubled-count convention.
func parseSortKeys(c *argvCursor) ([]aggplan.SortKey, error) {
	twoK, err := c.nextInt()
	if err != nil {
		return nil, err
	}
	if twoK%2 != 0 {
		return nil, qerror.New(qerror.ParseArgs, "SORTBY count must be even (field, direction pairs)")
	}
	k := twoK / 2
	out := make([]aggplan.SortKey, 0, k)
	for i := 0; i < k; i++ {
		field, err := c.next()
		if err != nil {
			return nil, err
		}
		asc := true
		if c.acceptKeyword("DESC") {
			asc = false
		} else {
			c.acceptKeyword("ASC")
		}
		out = append(out, aggplan.SortKey{Field: stripAt(field), Asc: asc})
	}
	return out, nil
}
