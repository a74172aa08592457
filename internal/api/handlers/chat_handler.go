package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	middleware "github.com/vchaoxi/execteam/internal/api/middlewares"
	"github.com/vchaoxi/execteam/internal/core"
	"github.com/vchaoxi/execteam/internal/knowledge"
)

type ChatHandler struct {
	retriever *knowledge.Retriever
	store     *knowledge.Store
	llm       core.LLMProvider
}

func NewChatHandler(retriever *knowledge.Retriever, store *knowledge.Store, llm core.LLMProvider) *ChatHandler {
	return &ChatHandler{retriever: retriever, store: store, llm: llm}
}

type ChatRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type ChatResponse struct {
	Answer string `json:"answer"`
	// Sources lists the retrieval hits the answer was grounded on.
	Sources []knowledge.SearchResult `json:"sources"`
	// SearchDegraded is set when the knowledge index could not be searched,
	// so the answer was generated without document context.
	SearchDegraded bool `json:"search_degraded"`
}

const chatSystemPrompt = "You are an intelligent assistant answering based only on the given document content. If unsure, say 'I cannot find this in the document.'"

// Query runs retrieval-augmented generation: embed the question, search the
// knowledge index, build a cited context prompt and generate the answer. A
// failed search degrades to a context-free answer with the flag set; it never
// pretends the index returned nothing.
func (h *ChatHandler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := middleware.UserIDFromContext(ctx); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", 400)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query required", 400)
		return
	}

	resp := ChatResponse{}

	results, err := h.retriever.Search(ctx, req.Query, req.TopK, "", nil)
	if err != nil {
		log.Printf("chat: knowledge search degraded: %v", err)
		resp.SearchDegraded = true
	} else {
		resp.Sources = results
		st := h.store.Status(ctx)
		resp.SearchDegraded = st.State == knowledge.StateError || st.State == knowledge.StateUnavailable
	}

	userPrompt := req.Query
	if len(resp.Sources) > 0 {
		userPrompt = fmt.Sprintf("Context:\n%s\n\nQuestion: %s", formatCitations(resp.Sources), req.Query)
	}

	answer, err := h.llm.Generate(ctx, chatSystemPrompt, userPrompt)
	if err != nil {
		http.Error(w, fmt.Sprintf("LLM failed: %v", err), 500)
		return
	}
	resp.Answer = answer

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// formatCitations renders each hit under a source heading so the model can
// attribute its answer.
func formatCitations(results []knowledge.SearchResult) string {
	var sb strings.Builder
	for _, res := range results {
		sb.WriteString(fmt.Sprintf("### 引用自: %s", res.DocumentTitle))
		if res.PageNumber > 0 {
			sb.WriteString(fmt.Sprintf(" (第%d页)", res.PageNumber))
		}
		sb.WriteString("\n")
		sb.WriteString(res.Text)
		sb.WriteString("\n---\n")
	}
	return sb.String()
}
