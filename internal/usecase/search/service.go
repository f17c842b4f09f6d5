package search

import (
	"context"
	"time"

	"github.com/blevesearch/bleve/v2/numeric"
	bsearch "github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/collector"
	bquery "github.com/blevesearch/bleve/v2/search/query"
	bsearcher "github.com/blevesearch/bleve/v2/search/searcher"
	index "github.com/blevesearch/bleve_index_api"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vortikal/vxsearch/internal/db"
	"github.com/vortikal/vxsearch/internal/db/docset"
	"github.com/vortikal/vxsearch/internal/domain"
	"github.com/vortikal/vxsearch/internal/domain/search/request"
	"github.com/vortikal/vxsearch/internal/domain/search/result"
	"github.com/vortikal/vxsearch/internal/metrics"
)

// Defaults applied by New to zero Config fields.
const (
	DefaultMaxHits       = 60000
	DefaultWarnThreshold = 15 * time.Second
)

const (
	opExecute = "execute"
	opIterate = "iterate_matching"

	strategyField = "field"
	strategyDocID = "docid"
)

// Config is fixed at construction.
type Config struct {
	// MaxHits caps how many ranked hits a single Execute collects.
	MaxHits int
	// WarnThreshold is the call duration above which a slow-query warning
	// is logged.
	WarnThreshold time.Duration
	// AnonymousMaxStaleness is how stale a view anonymous callers accept.
	// Zero requires a fresh view for everyone.
	AnonymousMaxStaleness time.Duration
}

// Service executes ranked searches and match iterations against the index.
type Service struct {
	access  IndexAccess
	builder QueryBuilder
	mapper  DocumentMapper
	cfg     Config
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// New creates a search service.
func New(access IndexAccess, builder QueryBuilder, mapper DocumentMapper, cfg Config, logger *zap.Logger) *Service {
	if cfg.MaxHits <= 0 {
		cfg.MaxHits = DefaultMaxHits
	}
	if cfg.WarnThreshold <= 0 {
		cfg.WarnThreshold = DefaultWarnThreshold
	}
	if cfg.AnonymousMaxStaleness < 0 {
		cfg.AnonymousMaxStaleness = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		access:  access,
		builder: builder,
		mapper:  mapper,
		cfg:     cfg,
		logger:  logger,
		tracer:  otel.Tracer("vxsearch-search"),
		now:     time.Now,
	}
}

// Config returns the configuration in effect.
func (s *Service) Config() Config { return s.cfg }

// Execute runs a ranked search and returns the requested window of hits.
// The page total is the full match count even when the window is cut short
// by MaxHits.
func (s *Service) Execute(ctx context.Context, token string, req request.Request) (page result.Page, err error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "search.execute",
		trace.WithAttributes(
			attribute.Int("search.cursor", req.Cursor()),
			attribute.Int("search.limit", req.Limit()),
			attribute.Bool("search.anonymous", token == ""),
		),
	)
	defer func() { s.finish(span, opExecute, start, err) }()

	h, err := s.acquire(ctx, token)
	if err != nil {
		return result.Page{}, err
	}
	defer func() { err = s.release(h, err) }()

	q, err := s.builder.Compile(req.Query())
	if err != nil {
		return result.Page{}, domain.QueryExecution("compile query", err)
	}
	auth, err := s.builder.BuildAuthFilter(ctx, token, req)
	if err != nil {
		return result.Page{}, domain.QueryExecution("build auth filter", err)
	}
	order, err := s.builder.BuildSort(req.Sorting())
	if err != nil {
		return result.Page{}, domain.QueryExecution("build sort", err)
	}
	if order == nil {
		order = bsearch.SortOrder{&bsearch.SortScore{Desc: true}}
	}

	need := req.End()
	searchLimit := need
	if searchLimit > s.cfg.MaxHits {
		searchLimit = s.cfg.MaxHits
	}
	if req.Limit() == 0 {
		searchLimit = 0
	}

	hits, total, err := s.collect(ctx, h, q, auth, order, searchLimit)
	if err != nil {
		return result.Page{}, domain.QueryExecution("search", err)
	}
	span.SetAttributes(attribute.Int64("search.total_hits", int64(total)))

	end := need
	if end > len(hits) {
		end = len(hits)
	}
	if req.Cursor() >= end {
		return result.NewPage(nil, int(total)), nil
	}

	fs := s.mapper.FieldSelector(req.Select())
	reader := h.Reader()
	items := make([]result.PropertySet, 0, end-req.Cursor())
	for _, hit := range hits[req.Cursor():end] {
		doc, err := reader.Document(hit.ID)
		if err != nil {
			return result.Page{}, domain.QueryExecution("load document", err)
		}
		if doc == nil {
			continue
		}
		items = append(items, s.mapper.ToPropertySet(doc, fs))
	}
	return result.NewPage(items, int(total)), nil
}

// collect runs q and keeps the top size hits. The auth filter only gates
// which documents are collected; it never contributes to their scores.
func (s *Service) collect(
	ctx context.Context, h db.Handle, q, auth bquery.Query, order bsearch.SortOrder, size int,
) (bsearch.DocumentMatchCollection, uint64, error) {
	var allowed *docset.Set
	if auth != nil {
		var err error
		if allowed, err = docset.FromQuery(ctx, h, auth); err != nil {
			return nil, 0, err
		}
	}

	reader := h.Reader()
	searcher, err := q.Searcher(ctx, reader, h.Mapping(), bsearch.SearcherOptions{})
	if err != nil {
		return nil, 0, err
	}
	if allowed != nil {
		searcher = bsearcher.NewFilteringSearcher(ctx, searcher,
			func(_ *bsearch.SearchContext, d *bsearch.DocumentMatch) bool {
				return allowed.Contains(d.IndexInternalID)
			})
	}
	defer func() {
		if cerr := searcher.Close(); cerr != nil {
			s.logger.Warn("Failed to close searcher", zap.Error(cerr))
		}
	}()

	coll := collector.NewTopNCollector(size, 0, order)
	if err := coll.Collect(ctx, searcher, reader); err != nil {
		return nil, 0, err
	}
	return coll.Results(), coll.Total(), nil
}

// IterateMatching streams every match to fn, in ascending order of the one
// sort field when given and in internal document order otherwise. Only a
// single ascending sort field is supported.
func (s *Service) IterateMatching(ctx context.Context, token string, req request.Request, fn MatchFunc) (err error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "search.iterate_matching",
		trace.WithAttributes(
			attribute.Int("search.cursor", req.Cursor()),
			attribute.Int("search.limit", req.Limit()),
			attribute.Bool("search.anonymous", token == ""),
		),
	)
	defer func() { s.finish(span, opIterate, start, err) }()

	h, err := s.acquire(ctx, token)
	if err != nil {
		return err
	}
	defer func() { err = s.release(h, err) }()

	sortField, err := s.builder.BuildIterationSort(req.Sorting())
	if err != nil {
		return domain.QueryExecution("build sort", err)
	}
	if req.Limit() <= 0 {
		return nil
	}

	filter, err := s.builder.BuildIterationFilter(ctx, token, req)
	if err != nil {
		return domain.QueryExecution("build iteration filter", err)
	}
	var allowed *docset.Set
	if filter != nil {
		if allowed, err = docset.FromQuery(ctx, h, filter); err != nil {
			return domain.QueryExecution("evaluate filter", err)
		}
	}

	it := &iteration{
		ctx:     ctx,
		reader:  h.Reader(),
		mapper:  s.mapper,
		fs:      s.mapper.FieldSelector(req.Select()),
		allowed: allowed,
		skip:    req.Cursor(),
		limit:   req.Limit(),
		fn:      fn,
	}
	if sortField != nil {
		it.strategy = strategyField
		err = it.byField(sortField.Field, sortField.Type == bsearch.SortFieldAsNumber)
	} else {
		it.strategy = strategyDocID
		err = it.byDocID()
	}
	span.SetAttributes(
		attribute.String("search.strategy", it.strategy),
		attribute.Int("search.emitted", it.emitted),
	)

	var cbErr *callbackError
	if errors.As(err, &cbErr) {
		return cbErr.err
	}
	return domain.QueryExecution("iterate", err)
}

func (s *Service) acquire(ctx context.Context, token string) (db.Handle, error) {
	var staleness time.Duration
	if token == "" && s.cfg.AnonymousMaxStaleness > 0 {
		staleness = s.cfg.AnonymousMaxStaleness
	}
	h, err := s.access.Acquire(ctx, staleness)
	if err != nil {
		return nil, domain.QueryExecution("acquire searcher", err)
	}
	return h, nil
}

// release returns h and folds a release failure into err as a secondary
// error. It never replaces the primary outcome.
func (s *Service) release(h db.Handle, err error) error {
	rerr := s.access.Release(h)
	if rerr == nil {
		return err
	}
	s.logger.Warn("Failed to release searcher", zap.Error(rerr))
	return domain.WithSecondary(err, rerr)
}

func (s *Service) finish(span trace.Span, op string, start time.Time, err error) {
	defer span.End()

	elapsed := s.now().Sub(start)
	metrics.SearchDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	if elapsed > s.cfg.WarnThreshold {
		metrics.SearchSlowTotal.WithLabelValues(op).Inc()
		s.logger.Warn("Slow search",
			zap.String("op", op),
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", s.cfg.WarnThreshold),
		)
	}

	status := "ok"
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case domain.KindOf(err) == 0:
		status = "callback_error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "match callback failed")
	default:
		status = statusLabel(domain.KindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if domain.KindOf(err) == domain.KindQueryExecution {
			s.logger.Warn("Search failed", zap.String("op", op), zap.Error(err))
		}
	}
	metrics.SearchRequestsTotal.WithLabelValues(op, status).Inc()
	s.logger.Debug("Search finished",
		zap.String("op", op),
		zap.String("status", status),
		zap.Duration("elapsed", elapsed),
	)
}

func statusLabel(k domain.ErrorKind) string {
	switch k {
	case domain.KindQueryExecution:
		return "query_error"
	case domain.KindUnsupportedSort:
		return "unsupported_sort"
	case domain.KindUnauthorized:
		return "unauthorized"
	case domain.KindInvalidQuery:
		return "invalid_query"
	default:
		return "error"
	}
}

// callbackError marks failures raised by a MatchFunc so they are returned
// without classification.
type callbackError struct {
	err error
}

func (e *callbackError) Error() string { return e.err.Error() }
func (e *callbackError) Unwrap() error { return e.err }

// iteration holds the cursor/limit state shared by both traversal orders.
type iteration struct {
	ctx      context.Context
	reader   index.IndexReader
	mapper   DocumentMapper
	fs       db.FieldSelector
	allowed  *docset.Set
	skip     int
	limit    int
	fn       MatchFunc
	strategy string

	skipped int
	emitted int
}

// byField walks the term dictionary of field in lexicographic order and each
// term's postings in document order. Numeric fields only contribute their
// full-precision terms.
func (it *iteration) byField(field string, numericField bool) error {
	dict, err := it.reader.FieldDict(field)
	if err != nil {
		return err
	}
	defer dict.Close()

	for {
		if err := it.ctx.Err(); err != nil {
			return err
		}
		entry, err := dict.Next()
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		if numericField {
			if ok, shift := numeric.ValidPrefixCodedTerm(entry.Term); !ok || shift != 0 {
				continue
			}
		}

		done, err := it.postings(field, entry.Term)
		if err != nil || done {
			return err
		}
	}
}

func (it *iteration) postings(field, term string) (bool, error) {
	tfr, err := it.reader.TermFieldReader(it.ctx, []byte(term), field, false, false, false)
	if err != nil {
		return false, err
	}
	defer tfr.Close()

	for {
		tfd, err := tfr.Next(nil)
		if err != nil {
			return false, err
		}
		if tfd == nil {
			return false, nil
		}
		done, err := it.visit(tfd.ID)
		if err != nil || done {
			return done, err
		}
	}
}

// byDocID walks live documents by ascending internal ID.
func (it *iteration) byDocID() error {
	dr, err := it.reader.DocIDReaderAll()
	if err != nil {
		return err
	}
	defer dr.Close()

	for {
		if err := it.ctx.Err(); err != nil {
			return err
		}
		id, err := dr.Next()
		if err != nil {
			return err
		}
		if id == nil {
			return nil
		}
		done, err := it.visit(id)
		if err != nil || done {
			return err
		}
	}
}

// visit applies filter, cursor and limit to one document. It reports true
// once iteration must stop.
func (it *iteration) visit(id index.IndexInternalID) (bool, error) {
	if it.allowed != nil && !it.allowed.Contains(id) {
		return false, nil
	}
	if it.skipped < it.skip {
		it.skipped++
		return false, nil
	}

	ext, err := it.reader.ExternalID(id)
	if err != nil {
		return false, err
	}
	doc, err := it.reader.Document(ext)
	if err != nil {
		return false, err
	}
	if doc == nil {
		return false, nil
	}

	it.emitted++
	metrics.IterationEmittedTotal.WithLabelValues(it.strategy).Inc()
	more, err := it.fn(it.mapper.ToPropertySet(doc, it.fs))
	if err != nil {
		return true, &callbackError{err: err}
	}
	return !more || it.emitted >= it.limit, nil
}
