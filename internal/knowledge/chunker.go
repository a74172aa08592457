package knowledge

import (
	"errors"
	"strings"
)

const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the context shared between neighboring chunks.
	DefaultChunkOverlap = 200

	// maxSplitDepth bounds the recursive splitter; pathological input that
	// exceeds it is handed to the windowed fallback instead.
	maxSplitDepth = 64
)

var errSplitTooDeep = errors.New("recursive split exceeded depth limit")

// splitSeparators are tried in order: paragraph, line, word, hard cut.
var splitSeparators = []string{"\n\n", "\n", " ", ""}

// SplitText splits text into overlapping chunks of roughly targetSize
// characters. The primary algorithm is boundary-aware recursive splitting;
// if it fails the simpler windowed scan takes over. Empty or whitespace-only
// input yields no chunks, not an error.
func SplitText(text string, targetSize, overlap int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if targetSize <= 0 {
		targetSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= targetSize {
		overlap = targetSize / 5
	}

	chunks, err := recursiveSplit(text, targetSize, overlap)
	if err != nil {
		return windowSplit(text, targetSize, overlap)
	}
	return chunks
}

// recursiveSplit breaks text at the coarsest separator that occurs in it,
// recursing into oversized pieces with the next finer separator, then merges
// adjacent pieces back into chunks of at most targetSize with overlap.
func recursiveSplit(text string, targetSize, overlap int) ([]string, error) {
	pieces, err := splitPieces(text, targetSize, splitSeparators, 0)
	if err != nil {
		return nil, err
	}
	return mergePieces(pieces, targetSize, overlap), nil
}

func splitPieces(text string, targetSize int, separators []string, depth int) ([]string, error) {
	if depth > maxSplitDepth {
		return nil, errSplitTooDeep
	}
	runes := []rune(text)
	if len(runes) <= targetSize {
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}
		return []string{text}, nil
	}

	// Pick the first separator that actually occurs; the empty separator is
	// the terminal hard cut.
	sep := separators[len(separators)-1]
	rest := separators
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	if sep == "" {
		var out []string
		for start := 0; start < len(runes); start += targetSize {
			end := start + targetSize
			if end > len(runes) {
				end = len(runes)
			}
			out = append(out, string(runes[start:end]))
		}
		return out, nil
	}

	var out []string
	for _, part := range strings.Split(text, sep) {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if len([]rune(part)) <= targetSize {
			out = append(out, part)
			continue
		}
		sub, err := splitPieces(part, targetSize, rest, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// mergePieces greedily packs pieces into chunks of at most targetSize
// characters, seeding each chunk with the trailing pieces of its predecessor
// up to the overlap budget.
func mergePieces(pieces []string, targetSize, overlap int) []string {
	var (
		chunks []string
		buf    []string
		size   int
	)

	flush := func() {
		if size == 0 {
			return
		}
		chunk := strings.TrimSpace(strings.Join(buf, "\n"))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		var keep []string
		kept := 0
		for i := len(buf) - 1; i >= 0; i-- {
			n := len([]rune(buf[i]))
			if kept+n > overlap {
				break
			}
			keep = append([]string{buf[i]}, keep...)
			kept += n
		}
		buf = keep
		size = kept
	}

	for _, p := range pieces {
		n := len([]rune(p))
		if size > 0 && size+n > targetSize {
			flush()
		}
		buf = append(buf, p)
		size += n
	}
	if len(buf) > 0 {
		chunk := strings.TrimSpace(strings.Join(buf, "\n"))
		if chunk != "" && (len(chunks) == 0 || chunks[len(chunks)-1] != chunk) {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// windowSplit is the fallback: walk the text in targetSize windows, but
// before cutting, search backward up to overlap characters for a paragraph
// break or a sentence terminator followed by whitespace and cut there
// instead. The window start advances by targetSize-overlap, clamped so it
// always moves forward even when no boundary is found.
func windowSplit(text string, targetSize, overlap int) []string {
	runes := []rune(text)
	var chunks []string

	start := 0
	for start < len(runes) {
		end := start + targetSize
		if end > len(runes) {
			end = len(runes)
		} else {
			limit := end - overlap
			if limit < start+1 {
				limit = start + 1
			}
			for i := end; i > limit; i-- {
				c := runes[i-1]
				if c == '\n' {
					end = i
					break
				}
				if (c == '.' || c == '!' || c == '?') && (i == len(runes) || isSpaceRune(runes[i])) {
					end = i
					break
				}
			}
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

func isSpaceRune(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
