package core

import "context"

// EmbeddingProvider turns texts into embedding vectors, one vector per input
// text. A failure applies to the whole batch. The knowledge subsystem's
// ingestion pipeline and retriever both consume this interface.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider generates a completion for the chat endpoint from a system
// prompt and a user prompt carrying the retrieved document context.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}
