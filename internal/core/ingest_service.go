package core

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"lexhub.io/policy-agent/internal/store"
)

// IngestStore is what document ingestion needs from persistence.
type IngestStore interface {
	GetConversationByID(conversationID string, userID int64) (*store.Conversation, error)
	CreateChunk(chunk *store.Chunk) error
}

// IngestResult reports what happened to an ingested document.
type IngestResult struct {
	ChunksConsidered int             `json:"chunks_considered"`
	ChunksStored     int             `json:"chunks_stored"`
	Chunks           []SelectedChunk `json:"chunks"`
}

// IngestService runs the chunk → embed → select → store pipeline for
// extracted document text. Text extraction itself happens upstream.
type IngestService struct {
	store          IngestStore
	embedder       Embedder
	chunkMaxLength int
	maxChunks      int
	simThreshold   float32
}

func NewIngestService(st IngestStore, embedder Embedder, chunkMaxLength, maxChunks int, simThreshold float32) *IngestService {
	if chunkMaxLength <= 0 {
		chunkMaxLength = DefaultChunkMaxLength
	}
	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}
	if simThreshold <= 0 {
		simThreshold = DefaultSimThreshold
	}
	return &IngestService{
		store:          st,
		embedder:       embedder,
		chunkMaxLength: chunkMaxLength,
		maxChunks:      maxChunks,
		simThreshold:   simThreshold,
	}
}

// IngestDocument chunks the extracted text, embeds every chunk, discards
// noise and near-duplicates, and stores the survivors scoped to the
// conversation. Nothing is committed when embedding fails, and a storage
// failure reports zero chunks stored rather than a silently-partial
// success.
func (s *IngestService) IngestDocument(ctx context.Context, conversationID string, userID int64, text, source string) (*IngestResult, error) {
	if _, err := uuid.Parse(conversationID); err != nil {
		return nil, fmt.Errorf("%w: conversation id %q", ErrMalformedID, conversationID)
	}

	conversation, err := s.store.GetConversationByID(conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: verifying conversation: %v", ErrStorageFailure, err)
	}
	if conversation == nil {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
	}

	rawChunks := ChunkText(text, s.chunkMaxLength)
	if len(rawChunks) == 0 {
		return nil, fmt.Errorf("%w: document produced no chunks", ErrEmptyInput)
	}

	embeddings, err := s.embedder.EmbedTexts(ctx, rawChunks)
	if err != nil {
		return nil, fmt.Errorf("failed to embed document chunks: %w", err)
	}

	selected := SelectChunks(rawChunks, embeddings, s.maxChunks, s.simThreshold)
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no chunks survived selection", ErrEmptyInput)
	}

	for _, chunk := range selected {
		record := store.Chunk{
			ConversationID: conversationID,
			Content:        chunk.Content,
			Embedding:      chunk.Embedding,
			Source:         source,
		}
		if err := s.store.CreateChunk(&record); err != nil {
			return nil, fmt.Errorf("%w: storing chunk: %v", ErrStorageFailure, err)
		}
	}

	log.Printf("Ingested document for conversation %s: %d chunks considered, %d stored.", conversationID, len(rawChunks), len(selected))

	return &IngestResult{
		ChunksConsidered: len(rawChunks),
		ChunksStored:     len(selected),
		Chunks:           selected,
	}, nil
}
