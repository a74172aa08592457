package knowledge

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultTopK bounds the result set when callers pass no limit.
const DefaultTopK = 5

// attachmentBoost is the flat additive score boost applied to attachment
// matches of an attachment-focused query, capped at 1.0.
const attachmentBoost = 0.2

// attachmentKeywords trigger the attachment-focused query heuristic.
var attachmentKeywords = []string{"attachment", "附件"}

// SearchResult is one ranked retrieval hit.
type SearchResult struct {
	Score         float64 `json:"score"`
	Text          string  `json:"text"`
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	PageNumber    int     `json:"page_number,omitempty"`
	IsAttachment  bool    `json:"is_attachment"`
	DocType       string  `json:"doc_type"`
}

// Retriever embeds user queries, runs similarity search against the vector
// store and re-ranks the matches.
type Retriever struct {
	index    VectorIndex
	embedder Embedder
}

// NewRetriever wires the ranker to the vector store and embedding provider.
func NewRetriever(index VectorIndex, embedder Embedder) *Retriever {
	return &Retriever{index: index, embedder: embedder}
}

// Search embeds the query and returns up to topK ranked results. A blank
// query returns nothing without contacting the embedding provider or the
// vector database. Attachment-focused queries widen the candidate pool to
// 2×topK, boost attachment matches and sort them first. Embedding or query
// failures propagate wrapped in ErrSearchFailed; they are never flattened
// into an empty result.
func (r *Retriever) Search(ctx context.Context, query string, topK int, namespace string, filter map[string]any) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	attachmentFocused := isAttachmentQuery(query)
	fetchK := topK
	if attachmentFocused {
		fetchK = 2 * topK
	}

	vecs, err := r.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrSearchFailed, err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("%w: embedding provider returned no vector", ErrSearchFailed)
	}

	matches, err := r.index.Query(ctx, vecs[0], fetchK, namespace, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	results := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		res := SearchResult{
			Score:         m.Score,
			Text:          metaString(m.Metadata, "text"),
			DocumentID:    metaString(m.Metadata, "document_id"),
			DocumentTitle: metaString(m.Metadata, "document_title"),
			PageNumber:    metaInt(m.Metadata, "page_number"),
		}
		res.IsAttachment = classifyAttachment(m.Metadata, res.DocumentTitle, res.Text)
		res.DocType = docTypeFromTitle(res.DocumentTitle)

		if attachmentFocused && res.IsAttachment {
			res.Score += attachmentBoost
			if res.Score > 1.0 {
				res.Score = 1.0
			}
		}
		results = append(results, res)
	}

	if attachmentFocused {
		sort.SliceStable(results, func(i, j int) bool {
			if results[i].IsAttachment != results[j].IsAttachment {
				return results[i].IsAttachment
			}
			return results[i].Score > results[j].Score
		})
	}

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// isAttachmentQuery detects an attachment-focused query by a fixed keyword
// heuristic on the raw query string.
func isAttachmentQuery(query string) bool {
	q := strings.ToLower(query)
	for _, kw := range attachmentKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// isAttachmentTitle applies the same keyword heuristic to a document title.
func isAttachmentTitle(title string) bool {
	return isAttachmentQuery(title)
}

// classifyAttachment prefers the stored metadata flag, falling back to the
// text heuristic on title and chunk text.
func classifyAttachment(meta map[string]any, title, text string) bool {
	if v, ok := meta["is_attachment"]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return isAttachmentTitle(title) || isAttachmentQuery(text)
}

func docTypeFromTitle(title string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(title)), ".")
	if ext == "" {
		return "document"
	}
	return ext
}

func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// metaInt tolerates the float64 that JSON decoding produces for numbers.
func metaInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
