// Package embedder generates vector embeddings for chunks and queries using
// pluggable providers.
//
// Three providers are supported: a local Ollama daemon (POST /api/embed), an
// OpenAI-compatible remote API (bearer-authenticated POST /embeddings), and
// a deterministic offline provider used when no model is reachable. All
// providers share batching, in-memory LRU memoization by content hash, and
// exponential-backoff retry.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider: embedder.ProviderOllama,
//	    Model:    "nomic-embed-text",
//	    MemoSize: 10000,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	res, err := emb.Embed(ctx, embedder.Request{Text: chunk.Text})
//
// # Provider Selection
//
// NewFromEnv selects a provider from environment variables:
//
//  1. If NOTESEEK_EMBEDDING_PROVIDER is set, use the named provider
//  2. Else if OPENAI_API_KEY is set, use the OpenAI-compatible API
//  3. Else target the local Ollama daemon
package embedder
