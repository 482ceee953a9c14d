package core

import (
	"sort"
	"strings"
	"unicode/utf8"

	"lexhub.io/policy-agent/internal/utils"
)

const (
	// MinChunkLength is the noise floor: chunks at or below this trimmed
	// length in characters carry too little signal to be worth storing.
	MinChunkLength = 50

	DefaultMaxChunks    = 10
	DefaultSimThreshold = float32(0.85)
)

// SelectedChunk pairs a surviving chunk with its embedding.
type SelectedChunk struct {
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
}

// SelectChunks decides which chunks are worth persisting. Candidates are
// ranked by descending character length (a proxy for information density,
// ties kept in original order) and accepted greedily; a candidate is rejected when
// its cosine similarity to any already-accepted chunk exceeds simThreshold.
// The walk stops after maxChunks acceptances. Greedy and order-dependent,
// so not globally optimal; the goal is bounded redundancy, not exactness.
func SelectChunks(chunks []string, embeddings [][]float32, maxChunks int, simThreshold float32) []SelectedChunk {
	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}
	if simThreshold <= 0 {
		simThreshold = DefaultSimThreshold
	}

	n := len(chunks)
	if len(embeddings) < n {
		n = len(embeddings)
	}

	chunkLens := make([]int, n) // In characters
	candidates := make([]int, 0, n)
	for i := 0; i < n; i++ {
		chunkLens[i] = utf8.RuneCountInString(chunks[i])
		if utf8.RuneCountInString(strings.TrimSpace(chunks[i])) > MinChunkLength {
			candidates = append(candidates, i)
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return chunkLens[candidates[a]] > chunkLens[candidates[b]]
	})

	var selected []SelectedChunk
	for _, idx := range candidates {
		if len(selected) >= maxChunks {
			break
		}

		duplicate := false
		for _, accepted := range selected {
			sim, err := utils.CosineSimilarity(embeddings[idx], accepted.Embedding)
			if err != nil {
				continue
			}
			if sim > simThreshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}

		selected = append(selected, SelectedChunk{
			Content:   chunks[idx],
			Embedding: embeddings[idx],
		})
	}
	return selected
}
