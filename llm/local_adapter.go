package llm

import (
	"context"
	"strconv"
)

// localProviderAdapter adapts any Provider (typically ollama or
// lmstudio pointed at localhost) into the Gateway's localFallback
// interface. The pack carries no in-process model binding, so the
// fallback path here is "a locally-running OpenAI-compatible server"
// rather than an embedded model loaded into this process; dispose is
// a no-op since there is no process-local state to release.
type localProviderAdapter struct {
	provider Provider
}

// NewLocalProviderLoader returns a localLoader that always resolves to
// the same already-constructed local Provider, wrapped to satisfy the
// Gateway's in-flight-load guard even though there is nothing
// expensive to load.
func NewLocalProviderLoader(provider Provider) localLoader {
	adapter := &localProviderAdapter{provider: provider}
	return func(ctx context.Context, key string) (localFallback, error) {
		return adapter, nil
	}
}

func (a *localProviderAdapter) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	resp, err := a.provider.Chat(ctx, ChatRequest{
		Messages:    []Message{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (a *localProviderAdapter) Rerank(ctx context.Context, query string, docs []string) ([]float64, error) {
	var prompt string
	prompt = "Score each document's relevance to the query on a 0-1 scale, one score per line, same order as given.\nQuery: " + query + "\n"
	for i, d := range docs {
		prompt += indexedLine(i, d)
	}
	resp, err := a.provider.Chat(ctx, ChatRequest{Messages: []Message{{Role: "user", Content: prompt}}})
	if err != nil {
		return nil, err
	}
	return parseScoreLines(resp.Content, len(docs)), nil
}

func (a *localProviderAdapter) ExpandQuery(ctx context.Context, query string) ([]QueryExpansion, error) {
	prompt := "Given the query, produce expansion lines, one per line, each prefixed by its type:\n" +
		"- 2-3 lines prefixed 'lex: ' with keyword variants\n" +
		"- 1-3 lines prefixed 'vec: ' with semantic rewrites\n" +
		"- at most one line prefixed 'hyde: ' with a hypothetical passage answering the query\n" +
		"Query: " + query + "\n"
	resp, err := a.provider.Chat(ctx, ChatRequest{Messages: []Message{{Role: "user", Content: prompt}}})
	if err != nil {
		return nil, err
	}
	return parseExpansionLines(resp.Content), nil
}

func (a *localProviderAdapter) Dispose(ctx context.Context) error {
	return nil
}

func indexedLine(i int, text string) string {
	return "[" + strconv.Itoa(i) + "] " + text + "\n"
}
