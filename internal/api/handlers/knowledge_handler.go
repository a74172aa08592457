package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vchaoxi/execteam/internal/knowledge"
)

// KnowledgeHandler exposes administrative operations on the knowledge index.
type KnowledgeHandler struct {
	store     *knowledge.Store
	retriever *knowledge.Retriever
}

func NewKnowledgeHandler(store *knowledge.Store, retriever *knowledge.Retriever) *KnowledgeHandler {
	return &KnowledgeHandler{store: store, retriever: retriever}
}

// Status returns the cached vector store health descriptor.
func (h *KnowledgeHandler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.store.Status(r.Context())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}

// Reset drops and recreates the vector index. Destructive; every document
// must be re-ingested afterwards.
func (h *KnowledgeHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Reset(r.Context()); err != nil {
		http.Error(w, fmt.Sprintf("reset failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "reset"})
}

type knowledgeSearchRequest struct {
	Query  string         `json:"query"`
	TopK   int            `json:"top_k"`
	Filter map[string]any `json:"filter"`
}

// Search runs raw retrieval without LLM generation, for debugging ranking.
func (h *KnowledgeHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req knowledgeSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	results, err := h.retriever.Search(r.Context(), req.Query, req.TopK, "", req.Filter)
	if err != nil {
		http.Error(w, fmt.Sprintf("search failed: %v", err), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"results": results})
}
