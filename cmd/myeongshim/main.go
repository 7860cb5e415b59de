package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/minseokoh/myeongshim/internal/brain"
	"github.com/minseokoh/myeongshim/internal/compactor"
	"github.com/minseokoh/myeongshim/internal/config"
	"github.com/minseokoh/myeongshim/internal/consult"
	"github.com/minseokoh/myeongshim/internal/engine"
	"github.com/minseokoh/myeongshim/internal/gate"
	"github.com/minseokoh/myeongshim/internal/httpapi"
	"github.com/minseokoh/myeongshim/internal/index"
	"github.com/minseokoh/myeongshim/internal/ledger"
	"github.com/minseokoh/myeongshim/internal/observability"
	"github.com/minseokoh/myeongshim/internal/store"
)

func main() {
	// Local development reads .env; in production the variables are real.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf(".env not loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	st, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	defer st.Close()

	model, err := brain.NewAdapter(brain.Config{
		Mode:    cfg.ModelAdapterMode,
		HTTPURL: cfg.ModelHTTPURL,
	})
	if err != nil {
		log.Fatalf("model adapter init failed: %v", err)
	}

	var idx index.Index
	switch {
	case cfg.DatabaseURL != "" && cfg.EmbedHTTPURL != "":
		pgIdx, err := index.NewPostgresIndex(ctx, cfg.DatabaseURL, index.NewHTTPEmbedder(cfg.EmbedHTTPURL))
		if err != nil {
			log.Fatalf("knowledge index init failed: %v", err)
		}
		idx = pgIdx
		log.Printf("knowledge index: postgres")
	case cfg.EmbedHTTPURL == "" && cfg.DatabaseURL != "":
		log.Printf("knowledge index: disabled (EMBED_HTTP_URL not set)")
	default:
		idx = index.NewInMemoryIndex()
		log.Printf("knowledge index: in-memory")
	}

	eng := engine.New(model, idx)
	svc := consult.New(
		st,
		gate.New(st),
		ledger.New(st),
		compactor.New(st, model),
		eng,
		metrics,
	)

	api := httpapi.New(cfg, svc, eng, st, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
