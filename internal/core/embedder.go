package core

import "context"

// Embedder maps text to fixed-dimension vectors. The backing model is
// loaded once and shared; implementations must be safe for concurrent use
// and deterministic for identical input, since retrieval depends on
// embeddings being stable between ingestion and query time. Backend
// failures wrap ErrModelUnavailable.
type Embedder interface {
	// EmbedText embeds a single text (typically a query).
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts embeds a batch, returning one vector per input in order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
