package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/vchaoxi/execteam/internal/api/handlers"
	appMiddleware "github.com/vchaoxi/execteam/internal/api/middlewares"
	"github.com/vchaoxi/execteam/internal/config"
	"github.com/vchaoxi/execteam/internal/core"
	"github.com/vchaoxi/execteam/internal/knowledge"
	"github.com/vchaoxi/execteam/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, users *services.UserService, docs *services.DocumentService,
	retriever *knowledge.Retriever, store *knowledge.Store, llm core.LLMProvider) *Server {

	authHandler := handlers.NewAuthHandler(users, cfg.JWTSecret)
	docHandler := handlers.NewDocumentHandler(docs)
	chatHandler := handlers.NewChatHandler(retriever, store, llm)
	knowledgeHandler := handlers.NewKnowledgeHandler(store, retriever)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTAuth(cfg.JWTSecret))

			protected.Post("/documents/upload", docHandler.UploadDocument)
			protected.Get("/documents", docHandler.GetDocuments)
			protected.Get("/documents/{id}", docHandler.GetDocument)
			protected.Delete("/documents/{id}", docHandler.DeleteDocument)
			protected.Post("/documents/{id}/retry", docHandler.RetryDocument)

			protected.Post("/chat/query", chatHandler.Query)

			protected.Get("/knowledge/status", knowledgeHandler.Status)
			protected.Post("/knowledge/reset", knowledgeHandler.Reset)
			protected.Post("/knowledge/search", knowledgeHandler.Search)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
