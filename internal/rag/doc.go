// Package rag composes semantic retrieval with LLM answer generation.
// Retrieval and generation fail independently: sources are always returned
// even when the provider is down.
package rag
