package core

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkMaxLength bounds chunk size when no override is configured.
const DefaultChunkMaxLength = 2000

// ChunkText splits document text into bounded-length retrievable units.
// Lengths count characters, not bytes, so multi-byte text chunks the same
// as ASCII. Paragraphs (newline-delimited) are accumulated greedily; when
// appending the next paragraph would push the buffer to maxLength or
// beyond, the buffer is emitted and a fresh one starts with the overflowing
// paragraph. A single paragraph longer than maxLength is emitted as its own
// over-long chunk rather than split mid-paragraph.
func ChunkText(text string, maxLength int) []string {
	if maxLength <= 0 {
		maxLength = DefaultChunkMaxLength
	}

	var chunks []string
	var buf strings.Builder
	bufLen := 0 // In characters

	for _, paragraph := range strings.Split(text, "\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		paragraphLen := utf8.RuneCountInString(paragraph)

		if bufLen > 0 && bufLen+1+paragraphLen >= maxLength {
			chunks = append(chunks, strings.TrimSpace(buf.String()))
			buf.Reset()
			bufLen = 0
		}

		if bufLen > 0 {
			buf.WriteString("\n")
			bufLen++
		}
		buf.WriteString(paragraph)
		bufLen += paragraphLen
	}

	if buf.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(buf.String()))
	}
	return chunks
}
