package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// errRemoteUnavailable carries the root package's REMOTE_UNAVAILABLE
// sentinel text so clawmem.ErrorCode maps it without this package
// importing the root.
var errRemoteUnavailable = errors.New("clawmem: remote backend unavailable")

// queryEmbedTemplate and docEmbedTemplate are the two formatting
// templates embed() applies depending on is_query, matched to the
// embedder's expected input shape.
const (
	queryEmbedTemplate   = "task: search result | query: %s"
	docEmbedTemplate     = "title: %s | text: %s"
	docEmbedNoTitle      = "none"
	docEmbedMaxRunes     = 1100
	rerankDocMaxRunes    = 400
	defaultIdleTimeout   = 2 * time.Minute
	cacheSweepProbabilty = 0.01
	cacheCapEntries      = 1000
)

// RerankResult is one scored candidate from rerank().
type RerankResult struct {
	File  string
	Score float64
}

// ExpansionKind identifies the shape of one expand_query output line.
type ExpansionKind string

const (
	ExpansionLexical  ExpansionKind = "lex"
	ExpansionVector   ExpansionKind = "vec"
	ExpansionHyDE     ExpansionKind = "hyde"
)

// QueryExpansion is one generated variant from expand_query.
type QueryExpansion struct {
	Type ExpansionKind
	Text string
}

// cacheStore is the subset of the document store the Gateway needs
// for llm_cache persistence, kept narrow so this package doesn't
// import store directly.
type cacheStore interface {
	GetLLMCache(ctx context.Context, key string) (string, bool, error)
	PutLLMCache(ctx context.Context, key, operation, value string) error
	SweepLLMCache(ctx context.Context, keepMax int) error
}

// localFallback is the interface a locally loaded model exposes to
// the Gateway once remote dispatch is unavailable.
type localFallback interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
	Rerank(ctx context.Context, query string, docs []string) ([]float64, error)
	ExpandQuery(ctx context.Context, query string) ([]QueryExpansion, error)
	Dispose(ctx context.Context) error
}

// localLoader lazily constructs a localFallback for a given model key.
type localLoader func(ctx context.Context, key string) (localFallback, error)

// Gateway is the single facade over embed/generate/rerank/expand_query,
// dispatching to a remote Provider first and falling back to a
// lazily-loaded local model. Concurrent loads of the same model key
// share one in-flight load rather than racing.
type Gateway struct {
	remote Provider
	load   localLoader
	cache  cacheStore

	idleTimeout time.Duration

	mu       sync.Mutex
	loaded   map[string]localFallback
	inFlight map[string]*sync.WaitGroup
	idleTimers map[string]*time.Timer
}

// NewGateway wires a remote provider (may be nil to force local-only
// operation), a local-model loader, and the cache store backing
// llm_cache.
func NewGateway(remote Provider, load localLoader, cache cacheStore) *Gateway {
	return &Gateway{
		remote:      remote,
		load:        load,
		cache:       cache,
		idleTimeout: defaultIdleTimeout,
		loaded:      make(map[string]localFallback),
		inFlight:    make(map[string]*sync.WaitGroup),
		idleTimers:  make(map[string]*time.Timer),
	}
}

// SetIdleTimeout overrides the default idle-unload duration; 0 disables
// idle unloading entirely.
func (g *Gateway) SetIdleTimeout(d time.Duration) { g.idleTimeout = d }

// EmbedResult is the outcome of a single embed() call.
type EmbedResult struct {
	Vector []float32
	Model  string
}

// Embed formats text per the query/document template and truncates
// document-side input to the embedder's safe context before calling
// the remote provider.
func (g *Gateway) Embed(ctx context.Context, text string, isQuery bool, title string) (EmbedResult, error) {
	vecs, model, err := g.embedBatch(ctx, []string{text}, isQuery, []string{title})
	if err != nil {
		return EmbedResult{}, err
	}
	return EmbedResult{Vector: vecs[0], Model: model}, nil
}

// EmbedBatch is the batch variant of Embed.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string, isQuery bool, titles []string) ([]EmbedResult, error) {
	vecs, model, err := g.embedBatch(ctx, texts, isQuery, titles)
	if err != nil {
		return nil, err
	}
	out := make([]EmbedResult, len(vecs))
	for i, v := range vecs {
		out[i] = EmbedResult{Vector: v, Model: model}
	}
	return out, nil
}

func (g *Gateway) embedBatch(ctx context.Context, texts []string, isQuery bool, titles []string) ([][]float32, string, error) {
	if g.remote == nil {
		return nil, "", fmt.Errorf("llm: embed requires a remote provider, no local embedder fallback is defined: %w", errRemoteUnavailable)
	}

	formatted := make([]string, len(texts))
	for i, t := range texts {
		if isQuery {
			formatted[i] = fmt.Sprintf(queryEmbedTemplate, truncateRunes(t, docEmbedMaxRunes))
			continue
		}
		title := docEmbedNoTitle
		if i < len(titles) && titles[i] != "" {
			title = titles[i]
		}
		formatted[i] = fmt.Sprintf(docEmbedTemplate, title, truncateRunes(t, docEmbedMaxRunes))
	}

	vecs, err := g.remote.Embed(ctx, formatted)
	if err != nil {
		return nil, "", fmt.Errorf("embedding: %w", err)
	}
	return vecs, "", nil
}

// Generate is remote-first with local fallback, honoring ctx
// cancellation and a caller-supplied timeout.
func (g *Gateway) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	if g.remote != nil {
		resp, err := g.remote.Chat(ctx, ChatRequest{
			Messages:    []Message{{Role: "user", Content: prompt}},
			MaxTokens:   maxTokens,
			Temperature: temperature,
		})
		if err == nil {
			return resp.Content, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	local, err := g.acquireLocal(ctx, "generate")
	if err != nil {
		return "", fmt.Errorf("llm: remote failed and no local fallback available: %w", err)
	}
	return local.Generate(ctx, prompt, maxTokens, temperature)
}

// Rerank scores docs against query, remote-first with local fallback,
// truncating remote document text to the reranker's safe context, and
// caching results keyed by (operation, query, doc set).
func (g *Gateway) Rerank(ctx context.Context, query string, docs []string) ([]RerankResult, error) {
	key := g.cacheKey("rerank", query, strings.Join(docs, "\x1f"))
	if g.cache != nil {
		if raw, ok, err := g.cache.GetLLMCache(ctx, key); err == nil && ok {
			return decodeRerankCache(raw), nil
		}
	}

	scores, err := g.rerankScores(ctx, query, docs)
	if err != nil {
		return nil, err
	}

	results := make([]RerankResult, len(docs))
	for i, d := range docs {
		results[i] = RerankResult{File: d, Score: scores[i]}
	}
	sortRerankDescending(results)

	if g.cache != nil {
		_ = g.cache.PutLLMCache(ctx, key, "rerank", encodeRerankCache(results))
		g.maybeSweepCache(ctx)
	}
	return results, nil
}

func (g *Gateway) rerankScores(ctx context.Context, query string, docs []string) ([]float64, error) {
	if g.remote != nil {
		truncated := make([]string, len(docs))
		for i, d := range docs {
			truncated[i] = truncateRunes(d, rerankDocMaxRunes)
		}
		scores, err := g.remoteRerank(ctx, query, truncated)
		if err == nil {
			return scores, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	local, err := g.acquireLocal(ctx, "rerank")
	if err != nil {
		return nil, fmt.Errorf("llm: remote rerank failed and no local fallback available: %w", err)
	}
	return local.Rerank(ctx, query, docs)
}

// remoteRerank has no standard OpenAI-compatible endpoint; it asks the
// chat model to emit scores and parses a line-prefixed response, the
// same tolerant-parsing idiom used by ExpandQuery's remote path.
func (g *Gateway) remoteRerank(ctx context.Context, query string, docs []string) ([]float64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Score each document's relevance to the query on a 0-1 scale, one score per line, same order as given.\nQuery: %s\n", query)
	for i, d := range docs {
		fmt.Fprintf(&b, "[%d] %s\n", i, d)
	}
	resp, err := g.remote.Chat(ctx, ChatRequest{Messages: []Message{{Role: "user", Content: b.String()}}})
	if err != nil {
		return nil, err
	}
	return parseScoreLines(resp.Content, len(docs)), nil
}

// ExpandQuery generates lexical/semantic/HyDE variants, remote-first
// with local fallback, cached by (operation, query, context).
func (g *Gateway) ExpandQuery(ctx context.Context, query string, includeLexical bool, queryContext string) ([]QueryExpansion, error) {
	key := g.cacheKey("expand_query", query, fmt.Sprintf("%t|%s", includeLexical, queryContext))
	if g.cache != nil {
		if raw, ok, err := g.cache.GetLLMCache(ctx, key); err == nil && ok {
			return decodeExpansionCache(raw), nil
		}
	}

	expansions, err := g.expandQuery(ctx, query, includeLexical, queryContext)
	if err != nil {
		return nil, err
	}

	if g.cache != nil {
		_ = g.cache.PutLLMCache(ctx, key, "expand_query", encodeExpansionCache(expansions))
		g.maybeSweepCache(ctx)
	}
	return expansions, nil
}

func (g *Gateway) expandQuery(ctx context.Context, query string, includeLexical bool, queryContext string) ([]QueryExpansion, error) {
	if g.remote != nil {
		exp, err := g.remoteExpandQuery(ctx, query, includeLexical, queryContext)
		if err == nil {
			return exp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	local, err := g.acquireLocal(ctx, "expand_query")
	if err != nil {
		return nil, fmt.Errorf("llm: remote expand_query failed and no local fallback available: %w", err)
	}
	return local.ExpandQuery(ctx, query)
}

func (g *Gateway) remoteExpandQuery(ctx context.Context, query string, includeLexical bool, queryContext string) ([]QueryExpansion, error) {
	var prompt strings.Builder
	prompt.WriteString("Given the query, produce expansion lines, one per line, each prefixed by its type:\n")
	if includeLexical {
		prompt.WriteString("- 2-3 lines prefixed 'lex: ' with keyword variants\n")
	}
	prompt.WriteString("- 1-3 lines prefixed 'vec: ' with semantic rewrites\n")
	prompt.WriteString("- at most one line prefixed 'hyde: ' with a hypothetical passage answering the query\n")
	fmt.Fprintf(&prompt, "Query: %s\n", query)
	if queryContext != "" {
		fmt.Fprintf(&prompt, "Context: %s\n", queryContext)
	}

	resp, err := g.remote.Chat(ctx, ChatRequest{Messages: []Message{{Role: "user", Content: prompt.String()}}})
	if err != nil {
		return nil, err
	}
	return parseExpansionLines(resp.Content), nil
}

// acquireLocal returns the local fallback for key, loading it if
// necessary. Concurrent callers for the same key block on one shared
// load rather than racing separate loads, and each successful load
// (re)arms the idle-unload timer.
func (g *Gateway) acquireLocal(ctx context.Context, key string) (localFallback, error) {
	if g.load == nil {
		return nil, fmt.Errorf("llm: no local loader configured: %w", errRemoteUnavailable)
	}
	g.mu.Lock()
	if lf, ok := g.loaded[key]; ok {
		g.armIdleTimer(key)
		g.mu.Unlock()
		return lf, nil
	}
	if wg, ok := g.inFlight[key]; ok {
		g.mu.Unlock()
		wg.Wait()
		g.mu.Lock()
		lf, ok := g.loaded[key]
		g.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("llm: load of %q failed in another goroutine", key)
		}
		return lf, nil
	}

	wg := &sync.WaitGroup{}
	wg.Add(1)
	g.inFlight[key] = wg
	g.mu.Unlock()

	lf, err := g.load(ctx, key)

	g.mu.Lock()
	delete(g.inFlight, key)
	if err == nil {
		g.loaded[key] = lf
		g.armIdleTimer(key)
	}
	g.mu.Unlock()
	wg.Done()

	return lf, err
}

// armIdleTimer must be called with g.mu held.
func (g *Gateway) armIdleTimer(key string) {
	if g.idleTimeout <= 0 {
		return
	}
	if t, ok := g.idleTimers[key]; ok {
		t.Stop()
	}
	g.idleTimers[key] = time.AfterFunc(g.idleTimeout, func() { g.unload(key) })
}

func (g *Gateway) unload(key string) {
	g.mu.Lock()
	lf, ok := g.loaded[key]
	if ok {
		delete(g.loaded, key)
		delete(g.idleTimers, key)
	}
	g.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = lf.Dispose(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Dispose unloads every currently loaded local model. Idempotent and
// bounded so shutdown never hangs on a misbehaving model.
func (g *Gateway) Dispose() {
	g.mu.Lock()
	keys := make([]string, 0, len(g.loaded))
	for k := range g.loaded {
		keys = append(keys, k)
	}
	for _, t := range g.idleTimers {
		t.Stop()
	}
	g.idleTimers = make(map[string]*time.Timer)
	g.mu.Unlock()

	for _, k := range keys {
		g.unload(k)
	}
}

func (g *Gateway) cacheKey(operation, query, extra string) string {
	h := sha256.Sum256([]byte(operation + "\x1f" + query + "\x1f" + extra))
	return hex.EncodeToString(h[:])
}

// maybeSweepCache trims llm_cache back down to cacheCapEntries with
// ~1% probability per write, avoiding an unbounded table without
// paying a cleanup cost on every call.
func (g *Gateway) maybeSweepCache(ctx context.Context) {
	if rand.Float64() < cacheSweepProbabilty {
		_ = g.cache.SweepLLMCache(ctx, cacheCapEntries)
	}
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
