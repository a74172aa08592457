package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns one distinct vector per text unless err rejects the
// batch or mismatch drops a vector.
type fakeEmbedder struct {
	calls    [][]string
	err      func(batch []string) error
	mismatch bool
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		if err := f.err(texts); err != nil {
			return nil, err
		}
	}
	n := len(texts)
	if f.mismatch && n > 0 {
		n--
	}
	vecs := make([][]float32, n)
	for i := range vecs {
		vecs[i] = []float32{float32(i), 1}
	}
	return vecs, nil
}

type fakeIndex struct {
	configured bool
	upserts    [][]VectorRecord
	upsertErr  func(records []VectorRecord) error

	matches  []Match
	queryErr error
	queries  int
	lastTopK int
}

func (f *fakeIndex) Configured() bool { return f.configured }

func (f *fakeIndex) Upsert(_ context.Context, records []VectorRecord, _ string) error {
	if f.upsertErr != nil {
		if err := f.upsertErr(records); err != nil {
			return err
		}
	}
	f.upserts = append(f.upserts, records)
	return nil
}

func (f *fakeIndex) Query(_ context.Context, _ []float32, topK int, _ string, _ map[string]any) ([]Match, error) {
	f.queries++
	f.lastTopK = topK
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.matches, nil
}

// smallCfg chunks "alpha beta gamma delta" into exactly two chunks and runs
// one chunk pair per batch.
func smallCfg() Config {
	return Config{ChunkSize: 10, ChunkOverlap: 1, BatchSize: 1}
}

func TestVectorIDDeterministic(t *testing.T) {
	require.Equal(t, "doc_abc_chunk_3", VectorID("abc", 3))
	require.Equal(t, VectorID("abc", 3), VectorID("abc", 3))
	require.NotEqual(t, VectorID("abc", 3), VectorID("abc", 4))
	require.NotEqual(t, VectorID("abc", 3), VectorID("abd", 3))
}

func TestProcessUnconfiguredIndex(t *testing.T) {
	idx := &fakeIndex{configured: false}
	emb := &fakeEmbedder{}
	p := NewProcessor(idx, emb, smallCfg())

	res, err := p.Process(context.Background(), "d1", "report.pdf", "some text", "")
	require.NoError(t, err)
	require.Equal(t, StatusAPIKeyMissing, res.Status)
	require.Empty(t, emb.calls)
	require.Empty(t, idx.upserts)
}

func TestProcessNoChunks(t *testing.T) {
	idx := &fakeIndex{configured: true}
	p := NewProcessor(idx, &fakeEmbedder{}, smallCfg())

	res, err := p.Process(context.Background(), "d1", "report.pdf", "   \n\t ", "")
	require.NoError(t, err)
	require.Equal(t, StatusNoChunks, res.Status)
	require.Empty(t, res.VectorIDs)
}

func TestProcessCompleted(t *testing.T) {
	idx := &fakeIndex{configured: true}
	emb := &fakeEmbedder{}
	p := NewProcessor(idx, emb, smallCfg())

	res, err := p.Process(context.Background(), "d1", "report.pdf", "alpha beta gamma delta", "")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)
	require.Equal(t, []string{"doc_d1_chunk_0", "doc_d1_chunk_1"}, res.VectorIDs)
	require.Empty(t, res.FailedChunks)
	require.Len(t, idx.upserts, 2)

	first := idx.upserts[0][0]
	require.Equal(t, "d1", first.Metadata["document_id"])
	require.Equal(t, "report.pdf", first.Metadata["document_title"])
	require.Equal(t, 0, first.Metadata["chunk_index"])
	require.NotEmpty(t, first.Metadata["text"])
}

func TestProcessBatchFailureIsolated(t *testing.T) {
	idx := &fakeIndex{configured: true}
	emb := &fakeEmbedder{err: func(batch []string) error {
		for _, text := range batch {
			if strings.Contains(text, "gamma") {
				return errors.New("provider overloaded")
			}
		}
		return nil
	}}
	p := NewProcessor(idx, emb, smallCfg())

	res, err := p.Process(context.Background(), "d1", "report.pdf", "alpha beta gamma delta", "")
	require.NoError(t, err)
	require.Equal(t, StatusPartial, res.Status)
	require.Equal(t, []string{"doc_d1_chunk_0"}, res.VectorIDs)
	require.Len(t, res.FailedChunks, 1)
	require.Contains(t, res.FailedChunks[0], "gamma")

	// Every attempted chunk is accounted for exactly once.
	require.Equal(t, 2, len(res.VectorIDs)+len(res.FailedChunks))
	require.Equal(t, "1/2 chunks indexed", res.Ratio())
}

func TestProcessAllBatchesFail(t *testing.T) {
	idx := &fakeIndex{configured: true}
	emb := &fakeEmbedder{err: func([]string) error { return errors.New("quota exceeded") }}
	p := NewProcessor(idx, emb, smallCfg())

	res, err := p.Process(context.Background(), "d1", "report.pdf", "alpha beta gamma delta", "")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, res.Status)
	require.Empty(t, res.VectorIDs)
	require.Len(t, res.FailedChunks, 2)
	require.Empty(t, idx.upserts)
}

func TestProcessUpsertFailureIsolated(t *testing.T) {
	idx := &fakeIndex{configured: true}
	failed := false
	idx.upsertErr = func([]VectorRecord) error {
		if !failed {
			failed = true
			return errors.New("write timeout")
		}
		return nil
	}
	p := NewProcessor(idx, &fakeEmbedder{}, smallCfg())

	res, err := p.Process(context.Background(), "d1", "report.pdf", "alpha beta gamma delta", "")
	require.NoError(t, err)
	require.Equal(t, StatusPartial, res.Status)
	require.Equal(t, []string{"doc_d1_chunk_1"}, res.VectorIDs)
	require.Len(t, res.FailedChunks, 1)
}

func TestProcessEmbeddingCountMismatch(t *testing.T) {
	idx := &fakeIndex{configured: true}
	p := NewProcessor(idx, &fakeEmbedder{mismatch: true}, smallCfg())

	res, err := p.Process(context.Background(), "d1", "report.pdf", "alpha beta gamma delta", "")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, res.Status)
	require.Empty(t, idx.upserts)
}

func TestProcessCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	idx := &fakeIndex{configured: true}
	p := NewProcessor(idx, &fakeEmbedder{}, smallCfg())

	res, err := p.Process(ctx, "d1", "report.pdf", "alpha beta gamma delta", "")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StatusFailed, res.Status)
	require.Len(t, res.FailedChunks, 2)
}

func TestProcessAttachmentTitleMetadata(t *testing.T) {
	idx := &fakeIndex{configured: true}
	p := NewProcessor(idx, &fakeEmbedder{}, Config{ChunkSize: 100, ChunkOverlap: 10, BatchSize: 10})

	_, err := p.Process(context.Background(), "d1", "合同附件.pdf", "short contract text", "")
	require.NoError(t, err)
	require.Len(t, idx.upserts, 1)
	require.Equal(t, true, idx.upserts[0][0].Metadata["is_attachment"])
}

func TestProcessRecoversPageNumbers(t *testing.T) {
	idx := &fakeIndex{configured: true}
	p := NewProcessor(idx, &fakeEmbedder{}, Config{ChunkSize: 25, ChunkOverlap: 2, BatchSize: 10})

	text := "[Page 1]\nalpha alpha\n\n[Page 2]\nbeta beta"
	_, err := p.Process(context.Background(), "d1", "scan.pdf", text, "")
	require.NoError(t, err)
	require.Len(t, idx.upserts, 1)

	records := idx.upserts[0]
	require.Len(t, records, 2)
	require.Equal(t, 1, records[0].Metadata["page_number"])
	require.Equal(t, 2, records[1].Metadata["page_number"])
}
