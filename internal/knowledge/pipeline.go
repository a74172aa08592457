package knowledge

import (
	"context"
	"fmt"
	"log"
	"strconv"
)

// defaultBatchSize bounds the number of chunk texts sent to the embedding
// provider in one call.
const defaultBatchSize = 100

// ProcessStatus is the overall outcome of one ingestion run.
type ProcessStatus string

const (
	StatusCompleted     ProcessStatus = "completed"
	StatusPartial       ProcessStatus = "partial"
	StatusFailed        ProcessStatus = "failed"
	StatusNoChunks      ProcessStatus = "no_chunks"
	StatusAPIKeyMissing ProcessStatus = "api_key_missing"
)

// ProcessResult reports per-chunk success and failure for one document.
// VectorIDs holds the IDs successfully written, in chunk order; FailedChunks
// holds the text of every chunk whose batch failed.
type ProcessResult struct {
	VectorIDs    []string
	FailedChunks []string
	Status       ProcessStatus
}

// Ratio renders the succeeded/attempted counts for a partial outcome.
func (r *ProcessResult) Ratio() string {
	total := len(r.VectorIDs) + len(r.FailedChunks)
	return fmt.Sprintf("%d/%d chunks indexed", len(r.VectorIDs), total)
}

// Embedder turns a batch of texts into embedding vectors. Failures apply to
// the whole batch; there are no partial results.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is the slice of the Store that the pipeline and retriever
// consume. Defined on the consumer side so tests can substitute fakes.
type VectorIndex interface {
	Configured() bool
	Upsert(ctx context.Context, records []VectorRecord, namespace string) error
	Query(ctx context.Context, embedding []float32, topK int, namespace string, filter map[string]any) ([]Match, error)
}

// Processor is the ingestion pipeline: chunk, embed in batches, upsert,
// with per-batch failure isolation.
type Processor struct {
	index    VectorIndex
	embedder Embedder
	cfg      Config
}

// NewProcessor wires the pipeline to the vector index and embedding
// provider. The cfg chunking and batching knobs fall back to defaults.
func NewProcessor(index VectorIndex, embedder Embedder, cfg Config) *Processor {
	return &Processor{index: index, embedder: embedder, cfg: cfg.withDefaults()}
}

// VectorID derives the deterministic vector ID for a chunk. It is injective
// for a fixed document, which makes re-ingestion an idempotent overwrite and
// enables targeted deletion by document.
func VectorID(documentID string, chunkIndex int) string {
	return "doc_" + documentID + "_chunk_" + strconv.Itoa(chunkIndex)
}

// Process chunks the extracted text, embeds the chunks in batches of at most
// cfg.BatchSize and upserts them. A failure in one batch marks every chunk
// of that batch failed and never aborts the remaining batches. Batches run
// sequentially to bound load on the embedding provider and vector database.
func (p *Processor) Process(ctx context.Context, documentID, title, text, namespace string) (*ProcessResult, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	res := &ProcessResult{}

	if !p.index.Configured() {
		res.Status = StatusAPIKeyMissing
		return res, nil
	}

	chunks := SplitText(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		res.Status = StatusNoChunks
		return res, nil
	}

	pages := chunkPages(chunks)
	isAttachment := isAttachmentTitle(title)

	for start := 0; start < len(chunks); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		if err := ctx.Err(); err != nil {
			res.FailedChunks = append(res.FailedChunks, batch...)
			res.FailedChunks = append(res.FailedChunks, chunks[end:]...)
			res.Status = aggregateStatus(res)
			return res, err
		}

		vecs, err := p.embedder.EmbedTexts(ctx, batch)
		if err == nil && len(vecs) != len(batch) {
			err = fmt.Errorf("embedding count mismatch: got %d, want %d", len(vecs), len(batch))
		}
		if err != nil {
			log.Printf("knowledge: embedding failed for document %s chunks %d-%d: %v", documentID, start, end-1, err)
			res.FailedChunks = append(res.FailedChunks, batch...)
			continue
		}

		records := make([]VectorRecord, len(batch))
		ids := make([]string, len(batch))
		for i, chunkText := range batch {
			idx := start + i
			ids[i] = VectorID(documentID, idx)
			meta := map[string]any{
				"document_id":    documentID,
				"document_title": title,
				"chunk_index":    idx,
				"is_attachment":  isAttachment,
				"text":           chunkText,
			}
			if pages[idx] > 0 {
				meta["page_number"] = pages[idx]
			}
			records[i] = VectorRecord{ID: ids[i], Embedding: vecs[i], Metadata: meta}
		}

		if err := p.index.Upsert(ctx, records, namespace); err != nil {
			log.Printf("knowledge: upsert failed for document %s chunks %d-%d: %v", documentID, start, end-1, err)
			res.FailedChunks = append(res.FailedChunks, batch...)
			continue
		}
		res.VectorIDs = append(res.VectorIDs, ids...)
	}

	res.Status = aggregateStatus(res)
	return res, nil
}

func aggregateStatus(res *ProcessResult) ProcessStatus {
	switch {
	case len(res.FailedChunks) == 0:
		return StatusCompleted
	case len(res.VectorIDs) == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// chunkPages recovers the page number for each chunk from the page markers
// the PDF extractor left in the text. A chunk starting with a marker belongs
// to that marker's page; otherwise it belongs to the last page seen. Zero
// means no page information.
func chunkPages(chunks []string) []int {
	pages := make([]int, len(chunks))
	current := 0
	for i, chunk := range chunks {
		locs := pageMarkerRe.FindAllStringSubmatchIndex(chunk, -1)
		if len(locs) > 0 && locs[0][0] == 0 {
			if n, err := strconv.Atoi(chunk[locs[0][2]:locs[0][3]]); err == nil {
				current = n
			}
		}
		pages[i] = current
		if len(locs) > 0 {
			last := locs[len(locs)-1]
			if n, err := strconv.Atoi(chunk[last[2]:last[3]]); err == nil {
				current = n
			}
		}
	}
	return pages
}
