package core

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"lexhub.io/policy-agent/internal/store"
	"lexhub.io/policy-agent/internal/utils"
)

// DefaultTopK bounds how many chunks feed the generation context.
const DefaultTopK = 3

// ChunkSource is the read side of the chunk store, scoped by conversation.
type ChunkSource interface {
	GetChunksByConversationID(conversationID string) ([]store.Chunk, error)
}

// Retriever ranks a conversation's stored chunks against a query vector.
type Retriever struct {
	chunks ChunkSource
}

func NewRetriever(chunks ChunkSource) *Retriever {
	return &Retriever{chunks: chunks}
}

type scoredChunk struct {
	chunk      store.Chunk
	similarity float32
}

// RetrieveContext returns the content of the topK most similar chunks,
// joined as a single context string, highest similarity first. Chunks with
// missing or dimension-mismatched embeddings are skipped, not fatal. An
// empty string means no stored chunks matched.
func (r *Retriever) RetrieveContext(conversationID string, queryEmbedding []float32, topK int) (string, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	chunks, err := r.chunks.GetChunksByConversationID(conversationID)
	if err != nil {
		return "", fmt.Errorf("%w: loading chunks: %v", ErrStorageFailure, err)
	}
	if len(chunks) == 0 {
		return "", nil
	}

	scored := make([]scoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			log.Printf("Skipping chunk %s due to missing embedding.", chunk.ID)
			continue
		}
		similarity, err := utils.CosineSimilarity(queryEmbedding, chunk.Embedding)
		if err != nil {
			log.Printf("Error scoring chunk %s against query: %v. Skipping.", chunk.ID, err)
			continue
		}
		scored = append(scored, scoredChunk{chunk: chunk, similarity: similarity})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].similarity > scored[j].similarity
	})

	var contextBuilder strings.Builder
	for i := 0; i < len(scored) && i < topK; i++ {
		contextBuilder.WriteString(scored[i].chunk.Content)
		contextBuilder.WriteString("\n\n") // Separate chunks clearly
	}

	return strings.TrimSpace(contextBuilder.String()), nil
}
