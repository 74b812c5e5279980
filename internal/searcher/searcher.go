package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/noteseek/noteseek/internal/cache"
	"github.com/noteseek/noteseek/internal/chunker"
	"github.com/noteseek/noteseek/internal/engine"
	"github.com/noteseek/noteseek/pkg/types"
)

// SearchMode defines how search is performed
type SearchMode string

const (
	SearchModeHybrid   SearchMode = "hybrid"   // Lexical + semantic with best-score fusion
	SearchModeLexical  SearchMode = "lexical"  // Fuzzy field matching only
	SearchModeSemantic SearchMode = "semantic" // Vector similarity only
)

// Scoring and gating defaults. Scores are distance-like throughout: lower
// is better, with 0 a perfect match.
const (
	DefaultLexicalThreshold = 0.3
	DefaultSemanticFloor    = 0.5
	DefaultSemanticCap      = 10

	MinLexicalQueryLength  = 2
	MinSemanticQueryLength = 3

	DefaultLimit    = 10
	MaxLimit        = 100
	DefaultCacheTTL = 1 * time.Hour

	responseCacheSize = 1000
)

// Common errors
var (
	ErrEmptyQuery      = errors.New("query cannot be empty")
	ErrUnsupportedMode = errors.New("unsupported search mode")
)

// DocumentSource supplies the current document set to search over. The
// engine never owns documents; the caller's store does.
type DocumentSource interface {
	Documents(ctx context.Context) ([]*types.Document, error)
}

// StaticSource is a DocumentSource over a fixed slice, used by the CLI
// after loading documents from disk and by tests.
type StaticSource []*types.Document

func (s StaticSource) Documents(ctx context.Context) ([]*types.Document, error) {
	return s, nil
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query    string
	Mode     SearchMode
	Limit    int
	UseCache bool
	CacheTTL time.Duration
}

// SearchResponse contains ranked results and metadata
type SearchResponse struct {
	Results         []*types.SearchResult
	TotalResults    int
	SearchMode      SearchMode
	Duration        time.Duration
	CacheHit        bool
	LexicalMatches  int
	SemanticMatches int
}

// cacheEntry is a cached response with its expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Config tunes scoring thresholds. Zero values fall back to defaults.
type Config struct {
	LexicalThreshold float64
	SemanticFloor    float64
	SemanticCap      int
	DebounceInterval time.Duration
}

// Searcher ranks documents by lexical and semantic relevance. Semantic
// scoring reads chunk vectors from the durable cache; lexical scoring runs
// inline against document fields.
type Searcher struct {
	source  DocumentSource
	engine  *engine.Engine
	cache   cache.EmbeddingCache
	chunker *chunker.Chunker
	logger  *slog.Logger
	config  Config

	respCache *lru.Cache[[32]byte, *cacheEntry]
	cacheMu   sync.RWMutex

	debouncer *Debouncer
}

// Option configures a Searcher
type Option func(*Searcher)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithConfig overrides scoring thresholds
func WithConfig(cfg Config) Option {
	return func(s *Searcher) {
		if cfg.LexicalThreshold > 0 {
			s.config.LexicalThreshold = cfg.LexicalThreshold
		}
		if cfg.SemanticFloor > 0 {
			s.config.SemanticFloor = cfg.SemanticFloor
		}
		if cfg.SemanticCap > 0 {
			s.config.SemanticCap = cfg.SemanticCap
		}
		if cfg.DebounceInterval > 0 {
			s.config.DebounceInterval = cfg.DebounceInterval
		}
	}
}

// New creates a Searcher over the given document source. The engine supplies
// query vectors; the cache supplies stored chunk vectors.
func New(source DocumentSource, eng *engine.Engine, c cache.EmbeddingCache, opts ...Option) (*Searcher, error) {
	if source == nil {
		return nil, errors.New("document source is required")
	}
	if eng == nil {
		return nil, errors.New("engine is required")
	}
	if c == nil {
		return nil, errors.New("cache is required")
	}

	respCache, err := lru.New[[32]byte, *cacheEntry](responseCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}

	s := &Searcher{
		source:    source,
		engine:    eng,
		cache:     c,
		chunker:   chunker.New(chunker.DefaultConfig()),
		logger:    slog.Default(),
		respCache: respCache,
		config: Config{
			LexicalThreshold: DefaultLexicalThreshold,
			SemanticFloor:    DefaultSemanticFloor,
			SemanticCap:      DefaultSemanticCap,
			DebounceInterval: DefaultDebounceInterval,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.debouncer = NewDebouncer(s.config.DebounceInterval)

	return s, nil
}

// Close stops the debouncer. Engine and cache are owned by the caller.
func (s *Searcher) Close() error {
	s.debouncer.Stop()
	return nil
}

// Search executes a search immediately, without debouncing
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	start := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(start)
			return cached, nil
		}
	}

	docs, err := s.source.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}

	var response *SearchResponse
	switch req.Mode {
	case SearchModeHybrid:
		response, err = s.hybridSearch(ctx, req, docs)
	case SearchModeLexical:
		results := s.lexicalSearch(req.Query, docs)
		response = &SearchResponse{Results: results, LexicalMatches: len(results)}
	case SearchModeSemantic:
		results, serr := s.semanticSearch(ctx, req.Query, docs)
		if serr != nil {
			return nil, serr
		}
		response = &SearchResponse{Results: results, SemanticMatches: len(results)}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMode, req.Mode)
	}
	if err != nil {
		return nil, err
	}

	sortResults(response.Results)
	if len(response.Results) > req.Limit {
		response.Results = response.Results[:req.Limit]
	}
	response.TotalResults = len(response.Results)
	response.SearchMode = req.Mode
	response.Duration = time.Since(start)

	if req.UseCache && len(response.Results) > 0 {
		s.storeInCache(req, response)
	}

	return response, nil
}

// SearchDebounced schedules a search after the quiet period. A newer call
// supersedes this one: its timer is stopped or its in-flight context is
// cancelled, and deliver is never invoked for a stale query.
func (s *Searcher) SearchDebounced(ctx context.Context, req SearchRequest, deliver func(*SearchResponse, error)) {
	s.debouncer.Trigger(ctx, func(runCtx context.Context) {
		resp, err := s.Search(runCtx, req)
		if runCtx.Err() != nil {
			return
		}
		deliver(resp, err)
	})
}

// branchResult carries one scorer's output across the fan-out channel
type branchResult struct {
	results []*types.SearchResult
	err     error
}

// hybridSearch runs both scorers concurrently and fuses their results
func (s *Searcher) hybridSearch(ctx context.Context, req SearchRequest, docs []*types.Document) (*SearchResponse, error) {
	lexChan := make(chan branchResult, 1)
	semChan := make(chan branchResult, 1)

	go func() {
		var res branchResult
		res.results = s.lexicalSearch(req.Query, docs)
		select {
		case lexChan <- res:
		case <-ctx.Done():
		}
	}()

	go func() {
		var res branchResult
		res.results, res.err = s.semanticSearch(ctx, req.Query, docs)
		select {
		case semChan <- res:
		case <-ctx.Done():
		}
	}()

	var lexRes, semRes branchResult
	var lexDone, semDone bool
	for !lexDone || !semDone {
		select {
		case lexRes = <-lexChan:
			lexDone = true
		case semRes = <-semChan:
			semDone = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// One branch may fail without failing the search.
	if semRes.err != nil {
		s.logger.Warn("semantic branch failed, returning lexical results only", "error", semRes.err)
	}

	fused := fuseResults(lexRes.results, semRes.results)

	return &SearchResponse{
		Results:         fused,
		LexicalMatches:  len(lexRes.results),
		SemanticMatches: len(semRes.results),
	}, nil
}

// fuseResults unions two result sets by document id. A document matched by
// both scorers keeps the numerically better (lower) score and is marked
// Both; on an exact tie the lexical score is kept. No document appears
// twice in the output.
func fuseResults(lexical, semantic []*types.SearchResult) []*types.SearchResult {
	byID := make(map[string]*types.SearchResult, len(lexical)+len(semantic))
	order := make([]string, 0, len(lexical)+len(semantic))

	for _, r := range lexical {
		byID[r.Document.ID] = r
		order = append(order, r.Document.ID)
	}

	for _, r := range semantic {
		existing, ok := byID[r.Document.ID]
		if !ok {
			byID[r.Document.ID] = r
			order = append(order, r.Document.ID)
			continue
		}
		if r.Score < existing.Score {
			existing.Score = r.Score
		}
		existing.Kind = types.MatchBoth
		if existing.MatchedChunk == nil {
			existing.MatchedChunk = r.MatchedChunk
		}
	}

	fused := make([]*types.SearchResult, 0, len(order))
	for _, id := range order {
		fused = append(fused, byID[id])
	}
	return fused
}

// sortResults orders ascending by score. Ties put Both matches first, then
// more recent document versions, then document id for stability.
func sortResults(results []*types.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		aBoth := a.Kind == types.MatchBoth
		bBoth := b.Kind == types.MatchBoth
		if aBoth != bBoth {
			return aBoth
		}
		if a.Document.Version != b.Document.Version {
			return a.Document.Version > b.Document.Version
		}
		return a.Document.ID < b.Document.ID
	})
}

func (s *Searcher) validateRequest(req *SearchRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return ErrEmptyQuery
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	if req.Mode == "" {
		req.Mode = SearchModeHybrid
	}
	if req.CacheTTL == 0 {
		req.CacheTTL = DefaultCacheTTL
	}
	return nil
}

func (s *Searcher) checkCache(req SearchRequest) *SearchResponse {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.respCache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}
	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()
		s.cacheMu.Lock()
		s.respCache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}
	response := copyResponse(entry.response)
	s.cacheMu.RUnlock()

	return response
}

func (s *Searcher) storeInCache(req SearchRequest, response *SearchResponse) {
	entry := &cacheEntry{
		response:  copyResponse(response),
		expiresAt: time.Now().Add(req.CacheTTL),
	}

	s.cacheMu.Lock()
	s.respCache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// InvalidateCache drops all cached responses. Called after re-indexing.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.respCache.Purge()
	s.cacheMu.Unlock()
}

// copyResponse deep-copies a response so cached entries are never mutated
// by callers
func copyResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}
	dst := &SearchResponse{
		TotalResults:    src.TotalResults,
		SearchMode:      src.SearchMode,
		Duration:        src.Duration,
		CacheHit:        src.CacheHit,
		LexicalMatches:  src.LexicalMatches,
		SemanticMatches: src.SemanticMatches,
		Results:         make([]*types.SearchResult, len(src.Results)),
	}
	for i, r := range src.Results {
		resultCopy := *r
		dst.Results[i] = &resultCopy
	}
	return dst
}

func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(engine.NormalizeQuery(req.Query))
	data.WriteString("|")
	data.WriteString(string(req.Mode))
	data.WriteString("|")
	data.WriteString(fmt.Sprintf("%d", req.Limit))
	return sha256.Sum256([]byte(data.String()))
}
