// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/medtrainlab/casesim/internal/api"
	"github.com/medtrainlab/casesim/internal/chains"
	"github.com/medtrainlab/casesim/internal/config"
	"github.com/medtrainlab/casesim/internal/llm"
	_ "github.com/medtrainlab/casesim/internal/llm/providers/google"
	_ "github.com/medtrainlab/casesim/internal/llm/providers/openai"
	"github.com/medtrainlab/casesim/internal/pipeline"
	"github.com/medtrainlab/casesim/internal/rubric"
	"github.com/medtrainlab/casesim/internal/scenario"
	"github.com/medtrainlab/casesim/internal/semantic"
	"github.com/medtrainlab/casesim/internal/session"
	"github.com/medtrainlab/casesim/internal/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err == nil {
		log.Println("✅ loaded configuration from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	provider, err := llm.DefaultRegistry.GetProvider(cfg.LLMProvider, cfg.LLMConfig)
	if err != nil {
		return fmt.Errorf("init LLM provider %q: %w", cfg.LLMProvider, err)
	}
	log.Printf("✅ LLM provider ready: %s", provider.GetName())

	embedder := semantic.NewGeminiEmbedder(cfg.GeminiAPIKey, cfg.EmbedDimension)
	index, err := semantic.NewIndex(cfg.SemanticIndexPath, embedder)
	if err != nil {
		return fmt.Errorf("open semantic index: %w", err)
	}
	defer index.Close()
	log.Printf("✅ semantic index ready: %s", cfg.SemanticIndexPath)

	var (
		loader scenario.Loader
		store  storage.StateStore
		turns  storage.TurnLogger
	)
	if cfg.MongoURI != "" {
		db, err := storage.ConnectMongo(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		defer db.Close()

		mongoStore := storage.NewMongoStore(db.Database)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			log.Printf("⚠️ mongo index creation failed: %v", err)
		}
		cancel()

		loader = scenario.NewMongoLoader(db.Database)
		store = mongoStore
		turns = mongoStore
		log.Printf("✅ mongo ready: %s", cfg.MongoDB)
	} else {
		memStore := storage.NewMemoryStore()
		loader = scenario.NewFileLoader(cfg.DataDir)
		store = memStore
		turns = memStore
		log.Printf("⚠️ MONGODB_URI not set, using file loader and in-memory state (dir: %s)", cfg.DataDir)
	}

	deps := pipeline.Deps{
		Scene:     &chains.SceneChain{Provider: provider, Searcher: index},
		Personas:  &chains.PersonaChain{Provider: provider, Searcher: index},
		Responder: &chains.ResponderChain{Provider: provider},
		Evaluator: rubric.NewEvaluator(rubric.NewLLMJudge(provider)),
		Searcher:  index,
	}

	sessions := session.NewManager(loader, deps, pipeline.Options{}, store, turns)
	handler := api.NewHandler(sessions, index)
	router := api.SetupRouter(handler, cfg.DebugMode)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🚀 casesim server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Printf("👋 received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Println("✅ server stopped cleanly")
	return nil
}
