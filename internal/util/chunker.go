package util

import (
	"fmt"
	"strings"
)

const defaultChunkRunes = 1200

// TextChunk is one contiguous span of a split document. Its id hashes the
// document key, the chunk position and the span content, so re-splitting
// the same document yields the same ids and downstream upserts replace
// rather than duplicate.
type TextChunk struct {
	ID    string
	Index int
	Text  string
}

// ChunkText splits text into overlapping rune windows keyed by docKey.
// Successive windows cover the text without gaps, so index order
// reconstructs the original; windows that sanitize down to nothing are
// dropped and do not consume an index.
func ChunkText(docKey, text string, chunkSize, overlap int) []TextChunk {
	if chunkSize <= 0 {
		chunkSize = defaultChunkRunes
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	step := chunkSize - overlap

	runes := []rune(text)
	chunks := []TextChunk{}
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		span := SanitizeText(strings.TrimSpace(string(runes[start:end])))
		if span != "" {
			idx := len(chunks)
			chunks = append(chunks, TextChunk{
				ID:    chunkID(docKey, idx, span),
				Index: idx,
				Text:  span,
			})
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func chunkID(docKey string, index int, span string) string {
	return SHA256Hex([]byte(fmt.Sprintf("%s:%d:%s", docKey, index, SHA256Hex([]byte(span)))))
}
