package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSearchBlankQuery(t *testing.T) {
	idx := &fakeIndex{configured: true}
	emb := &fakeEmbedder{}
	r := NewRetriever(idx, emb)

	for _, query := range []string{"", "   ", "\n\t"} {
		results, err := r.Search(context.Background(), query, 5, "", nil)
		require.NoError(t, err)
		require.Nil(t, results)
	}
	// Neither the embedding provider nor the index was contacted.
	require.Empty(t, emb.calls)
	require.Zero(t, idx.queries)
}

func TestSearchAttachmentBoostAndOrdering(t *testing.T) {
	idx := &fakeIndex{configured: true, matches: []Match{
		{ID: "m1", Score: 0.9, Metadata: map[string]any{
			"text": "body text", "document_id": "d1", "document_title": "report.pdf",
			"is_attachment": false,
		}},
		{ID: "m2", Score: 0.6, Metadata: map[string]any{
			"text": "annex text", "document_id": "d2", "document_title": "附件.pdf",
			"is_attachment": true,
		}},
	}}
	r := NewRetriever(idx, &fakeEmbedder{})

	results, err := r.Search(context.Background(), "show me the attachment", 5, "", nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Attachment query widens the candidate pool.
	require.Equal(t, 10, idx.lastTopK)

	// The attachment hit is boosted 0.6 -> 0.8 and sorted first even though
	// the plain hit still scores higher.
	require.Equal(t, "d2", results[0].DocumentID)
	require.True(t, results[0].IsAttachment)
	require.InDelta(t, 0.8, results[0].Score, 1e-9)
	require.Equal(t, "d1", results[1].DocumentID)
	require.InDelta(t, 0.9, results[1].Score, 1e-9)
}

func TestSearchBoostCappedAtOne(t *testing.T) {
	idx := &fakeIndex{configured: true, matches: []Match{
		{ID: "m1", Score: 0.95, Metadata: map[string]any{
			"document_title": "附件.pdf", "is_attachment": true,
		}},
	}}
	r := NewRetriever(idx, &fakeEmbedder{})

	results, err := r.Search(context.Background(), "请给我附件", 3, "", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestSearchPlainQueryNoBoost(t *testing.T) {
	idx := &fakeIndex{configured: true, matches: []Match{
		{ID: "m1", Score: 0.9, Metadata: map[string]any{"document_title": "report.pdf"}},
		{ID: "m2", Score: 0.6, Metadata: map[string]any{"document_title": "附件.pdf", "is_attachment": true}},
	}}
	r := NewRetriever(idx, &fakeEmbedder{})

	results, err := r.Search(context.Background(), "quarterly revenue", 5, "", nil)
	require.NoError(t, err)
	require.Equal(t, 5, idx.lastTopK)
	require.Len(t, results, 2)
	require.InDelta(t, 0.9, results[0].Score, 1e-9)
	require.InDelta(t, 0.6, results[1].Score, 1e-9)
}

func TestSearchTruncatesToTopK(t *testing.T) {
	idx := &fakeIndex{configured: true, matches: []Match{
		{ID: "m1", Score: 0.9}, {ID: "m2", Score: 0.8}, {ID: "m3", Score: 0.7},
	}}
	r := NewRetriever(idx, &fakeEmbedder{})

	results, err := r.Search(context.Background(), "anything", 2, "", nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestSearchEmbedErrorWrapped(t *testing.T) {
	idx := &fakeIndex{configured: true}
	emb := &fakeEmbedder{err: func([]string) error { return errors.New("provider down") }}
	r := NewRetriever(idx, emb)

	_, err := r.Search(context.Background(), "anything", 5, "", nil)
	require.ErrorIs(t, err, ErrSearchFailed)
	require.Zero(t, idx.queries)
}

func TestSearchQueryErrorWrapped(t *testing.T) {
	idx := &fakeIndex{configured: true, queryErr: errors.New("index unavailable")}
	r := NewRetriever(idx, &fakeEmbedder{})

	_, err := r.Search(context.Background(), "anything", 5, "", nil)
	require.ErrorIs(t, err, ErrSearchFailed)
	require.ErrorContains(t, err, "index unavailable")
}

func TestSearchMetadataMapping(t *testing.T) {
	idx := &fakeIndex{configured: true, matches: []Match{
		{ID: "m1", Score: 0.8, Metadata: map[string]any{
			"text":           "board minutes excerpt",
			"document_id":    "d9",
			"document_title": "minutes.docx",
			"page_number":    float64(3), // JSON decoding yields float64
		}},
	}}
	r := NewRetriever(idx, &fakeEmbedder{})

	results, err := r.Search(context.Background(), "board minutes", 5, "", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "board minutes excerpt", results[0].Text)
	require.Equal(t, "d9", results[0].DocumentID)
	require.Equal(t, "minutes.docx", results[0].DocumentTitle)
	require.Equal(t, 3, results[0].PageNumber)
	require.Equal(t, "docx", results[0].DocType)
	require.False(t, results[0].IsAttachment)
}
