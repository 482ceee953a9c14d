package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"lexhub.io/policy-agent/internal/store"
)

// stubEmbedder implements Embedder deterministically for testing. Explicit
// vectors can be pinned per text; anything else embeds to a unit vector.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (e *stubEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.calls++
	if vec, ok := e.vectors[text]; ok {
		return vec, nil
	}
	return []float32{1, 0, 0}, nil
}

func (e *stubEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// stubIngestStore implements IngestStore for testing.
type stubIngestStore struct {
	conversation *store.Conversation
	getErr       error
	createErr    error
	created      []store.Chunk
}

func (s *stubIngestStore) GetConversationByID(conversationID string, userID int64) (*store.Conversation, error) {
	return s.conversation, s.getErr
}

func (s *stubIngestStore) CreateChunk(chunk *store.Chunk) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, *chunk)
	return nil
}

func testConversation(userID int64) *store.Conversation {
	return &store.Conversation{ID: uuid.NewString(), UserID: userID}
}

func TestIngestDocumentMalformedID(t *testing.T) {
	st := &stubIngestStore{conversation: testConversation(1)}
	svc := NewIngestService(st, &stubEmbedder{}, 2000, 10, 0.85)

	_, err := svc.IngestDocument(context.Background(), "not-a-uuid", 1, "some text", "doc.pdf")
	if !errors.Is(err, ErrMalformedID) {
		t.Errorf("error = %v, want ErrMalformedID", err)
	}
	if len(st.created) != 0 {
		t.Errorf("no chunks should be stored for a malformed id")
	}
}

func TestIngestDocumentConversationNotFound(t *testing.T) {
	st := &stubIngestStore{conversation: nil}
	svc := NewIngestService(st, &stubEmbedder{}, 2000, 10, 0.85)

	_, err := svc.IngestDocument(context.Background(), uuid.NewString(), 1, "some text", "doc.pdf")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestIngestDocumentEmptyText(t *testing.T) {
	conv := testConversation(1)
	st := &stubIngestStore{conversation: conv}
	svc := NewIngestService(st, &stubEmbedder{}, 2000, 10, 0.85)

	_, err := svc.IngestDocument(context.Background(), conv.ID, 1, "  \n\n ", "doc.pdf")
	if !errors.Is(err, ErrEmptyInput) {
		t.Errorf("error = %v, want ErrEmptyInput", err)
	}
}

func TestIngestDocumentAllChunksBelowNoiseFloor(t *testing.T) {
	conv := testConversation(1)
	st := &stubIngestStore{conversation: conv}
	svc := NewIngestService(st, &stubEmbedder{}, 2000, 10, 0.85)

	_, err := svc.IngestDocument(context.Background(), conv.ID, 1, "tiny\nalso tiny", "doc.pdf")
	if !errors.Is(err, ErrEmptyInput) {
		t.Errorf("error = %v, want ErrEmptyInput when everything is noise", err)
	}
	if len(st.created) != 0 {
		t.Errorf("nothing should be stored when all chunks are noise")
	}
}

func TestIngestDocumentEmbeddingFailureCommitsNothing(t *testing.T) {
	conv := testConversation(1)
	st := &stubIngestStore{conversation: conv}
	embedder := &stubEmbedder{err: ErrModelUnavailable}
	svc := NewIngestService(st, embedder, 2000, 10, 0.85)

	text := strings.Repeat("a meaningful paragraph about contract clauses ", 3)
	_, err := svc.IngestDocument(context.Background(), conv.ID, 1, text, "doc.pdf")
	if !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("error = %v, want ErrModelUnavailable", err)
	}
	if len(st.created) != 0 {
		t.Errorf("no chunks may be committed when embedding fails")
	}
}

func TestIngestDocumentStoresSelection(t *testing.T) {
	conv := testConversation(1)
	st := &stubIngestStore{conversation: conv}

	para1 := strings.Repeat("first paragraph on indemnification terms ", 3)
	para2 := strings.Repeat("second paragraph on termination clauses ", 3)
	embedder := &stubEmbedder{vectors: map[string][]float32{
		strings.TrimSpace(para1): {1, 0},
		strings.TrimSpace(para2): {0, 1},
	}}
	svc := NewIngestService(st, embedder, 150, 10, 0.85)

	result, err := svc.IngestDocument(context.Background(), conv.ID, 1, para1+"\n"+para2, "terms.pdf")
	if err != nil {
		t.Fatalf("IngestDocument returned error: %v", err)
	}

	if result.ChunksConsidered != 2 {
		t.Errorf("ChunksConsidered = %d, want 2", result.ChunksConsidered)
	}
	if result.ChunksStored != 2 {
		t.Errorf("ChunksStored = %d, want 2", result.ChunksStored)
	}
	if len(st.created) != 2 {
		t.Fatalf("store received %d chunks, want 2", len(st.created))
	}
	for _, chunk := range st.created {
		if chunk.ConversationID != conv.ID {
			t.Errorf("chunk conversation id = %s, want %s", chunk.ConversationID, conv.ID)
		}
		if chunk.Source != "terms.pdf" {
			t.Errorf("chunk source = %s, want terms.pdf", chunk.Source)
		}
		if len(chunk.Embedding) == 0 {
			t.Error("stored chunk is missing its embedding")
		}
	}
}

func TestIngestDocumentDeduplicates(t *testing.T) {
	conv := testConversation(1)
	st := &stubIngestStore{conversation: conv}

	longer := strings.Repeat("duplicated clause about liability caps and more ", 3)
	shorter := strings.Repeat("duplicated clause about liability caps ", 2)
	embedder := &stubEmbedder{vectors: map[string][]float32{
		strings.TrimSpace(longer):  {1, 0},
		strings.TrimSpace(shorter): {1, 0}, // Identical direction, similarity 1.0
	}}
	svc := NewIngestService(st, embedder, 200, 10, 0.85)

	result, err := svc.IngestDocument(context.Background(), conv.ID, 1, longer+"\n"+shorter, "doc.pdf")
	if err != nil {
		t.Fatalf("IngestDocument returned error: %v", err)
	}
	if result.ChunksConsidered != 2 || result.ChunksStored != 1 {
		t.Errorf("considered/stored = %d/%d, want 2/1", result.ChunksConsidered, result.ChunksStored)
	}
}

func TestIngestDocumentStorageFailure(t *testing.T) {
	conv := testConversation(1)
	st := &stubIngestStore{conversation: conv, createErr: errors.New("disk full")}
	svc := NewIngestService(st, &stubEmbedder{}, 2000, 10, 0.85)

	text := strings.Repeat("a paragraph long enough to clear the noise floor ", 3)
	result, err := svc.IngestDocument(context.Background(), conv.ID, 1, text, "doc.pdf")
	if !errors.Is(err, ErrStorageFailure) {
		t.Errorf("error = %v, want ErrStorageFailure", err)
	}
	if result != nil {
		t.Errorf("result must be nil on storage failure, got %+v", result)
	}
}
