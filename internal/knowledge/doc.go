// Package knowledge implements the document indexing and retrieval subsystem.
//
// It turns uploaded documents into embedded, searchable chunks and answers
// similarity queries over them. The package manages:
//
//   - Text extraction from uploaded files (plain text, PDF, office, HTML, CSV)
//   - Boundary-aware chunking with overlap
//   - A resilient client for the vector database (Postgres + pgvector),
//     with retry, index lifecycle management and a degraded stand-in handle
//   - The ingestion pipeline with per-batch failure isolation
//   - Retrieval with attachment-aware re-ranking
//
// # Architecture
//
//	Extract -> SplitText -> Processor (batch embed + upsert)
//	                            |
//	                            v
//	                      Store (IndexHandle: live or degraded)
//	                            ^
//	                            |
//	                       Retriever (query embed + rank)
//
// The Store's cached VectorStoreStatus is the only long-lived shared mutable
// state; it is guarded by a mutex inside StatusCache. Callers that receive
// empty search results must consult the status before treating the absence of
// matches as authoritative, because an unreachable vector database degrades
// to a no-op handle instead of failing the surrounding chat feature.
package knowledge
