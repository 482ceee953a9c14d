package core

import (
	"strings"
	"testing"
)

func paragraphsOf(text string) []string {
	var paragraphs []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			paragraphs = append(paragraphs, line)
		}
	}
	return paragraphs
}

func TestChunkTextEmptyInput(t *testing.T) {
	if got := ChunkText("", 2000); len(got) != 0 {
		t.Errorf("ChunkText(\"\") = %v, want empty", got)
	}
	if got := ChunkText("\n\n  \n", 2000); len(got) != 0 {
		t.Errorf("ChunkText(whitespace) = %v, want empty", got)
	}
}

func TestChunkTextSingleParagraph(t *testing.T) {
	chunks := ChunkText("just one paragraph", 2000)
	if len(chunks) != 1 || chunks[0] != "just one paragraph" {
		t.Errorf("ChunkText = %v, want single trimmed paragraph", chunks)
	}
}

func TestChunkTextRespectsMaxLength(t *testing.T) {
	var paragraphs []string
	for i := 0; i < 20; i++ {
		paragraphs = append(paragraphs, strings.Repeat("x", 80))
	}
	text := strings.Join(paragraphs, "\n")

	maxLength := 200
	chunks := ChunkText(text, maxLength)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) >= maxLength {
			t.Errorf("chunk %d has length %d, want < %d", i, len(chunk), maxLength)
		}
	}
}

func TestChunkTextPreservesParagraphSequence(t *testing.T) {
	text := "alpha\n\nbeta gamma\ndelta\n\n\nepsilon zeta eta\ntheta"
	want := paragraphsOf(text)

	chunks := ChunkText(text, 25)

	var got []string
	for _, chunk := range chunks {
		got = append(got, paragraphsOf(chunk)...)
	}

	if len(got) != len(want) {
		t.Fatalf("paragraph count = %d, want %d (chunks: %v)", len(got), len(want), chunks)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("paragraph %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestChunkTextOverlongParagraph(t *testing.T) {
	long := strings.Repeat("y", 500)
	chunks := ChunkText("short one\n"+long+"\nshort two", 100)

	found := false
	for _, chunk := range chunks {
		if chunk == long {
			found = true
		}
	}
	if !found {
		t.Errorf("over-long paragraph should be emitted whole, got chunks of lengths %v", chunkLengths(chunks))
	}
}

func TestChunkTextCountsCharactersNotBytes(t *testing.T) {
	// Two 40-character accented paragraphs are 80 bytes each; a byte-based
	// bound would split them, a character bound keeps them in one chunk.
	paragraph := strings.Repeat("é", 40)
	chunks := ChunkText(paragraph+"\n"+paragraph, 100)
	if len(chunks) != 1 {
		t.Errorf("got %d chunks for 81 characters under a 100-character bound, want 1", len(chunks))
	}
}

func TestChunkTextDefaultsMaxLength(t *testing.T) {
	chunks := ChunkText("hello\nworld", 0)
	if len(chunks) != 1 {
		t.Errorf("expected one chunk with default max length, got %d", len(chunks))
	}
}

func chunkLengths(chunks []string) []int {
	lengths := make([]int, len(chunks))
	for i, c := range chunks {
		lengths[i] = len(c)
	}
	return lengths
}
