package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeEmbedding normalizes a stored embedding column into a numeric
// vector. Embeddings have historically been written either as a JSON array
// of numbers or as a JSON-encoded string containing such an array; both
// forms decode here so callers never see the encoding difference. An empty
// column decodes to nil without error; anything else malformed is an error
// so callers can skip the chunk.
func DecodeEmbedding(raw string) ([]float32, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}

	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err == nil {
		return vec, nil
	}

	// Double-encoded form: a JSON string wrapping the array.
	var inner string
	if err := json.Unmarshal([]byte(raw), &inner); err == nil {
		if err := json.Unmarshal([]byte(inner), &vec); err == nil {
			return vec, nil
		}
	}

	return nil, fmt.Errorf("malformed embedding: %.40s", raw)
}

// EncodeEmbedding serializes a vector for the embedding column.
func EncodeEmbedding(vec []float32) (string, error) {
	data, err := json.Marshal(vec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal embedding: %w", err)
	}
	return string(data), nil
}
