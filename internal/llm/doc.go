// Package llm abstracts text generation backends behind a single Provider
// interface. The Ollama backend streams newline-delimited JSON from a local
// daemon; the OpenAI-compatible backend streams SSE data frames from a
// remote API. Initialize-time failures wrap ErrProviderUnavailable so the
// caller can tell an unreachable backend from a failed request.
package llm
