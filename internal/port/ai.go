package port

import "context"

// AIProvider abstracts the remote model backend for embeddings and text
// generation. Implementations can target Gemini, Ollama, or any compatible API.
type AIProvider interface {
	// ModelName returns the identifier of the generation model being used.
	ModelName() string

	// EmbedDocuments generates one embedding vector per input text, in
	// document-indexing mode, positionally aligned with the input.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a search query. Backends that
	// distinguish document vs. query embeddings must use the query mode here;
	// mixing the two degrades retrieval quality.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Generate produces a text completion for the given prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}
