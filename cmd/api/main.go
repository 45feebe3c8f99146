package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nlin-dev/chatrelay/internal/config"
	"github.com/nlin-dev/chatrelay/internal/handler"
	"github.com/nlin-dev/chatrelay/internal/service/auth"
	"github.com/nlin-dev/chatrelay/internal/service/history"
	"github.com/nlin-dev/chatrelay/internal/service/llm"
	"github.com/nlin-dev/chatrelay/internal/service/relay"
	"github.com/nlin-dev/chatrelay/internal/service/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if !cfg.LLM.Enabled() {
		log.Fatal("HF_API_KEY and LLM_MODEL must be configured")
	}

	completer, err := llm.NewClient(cfg.LLM)
	if err != nil {
		log.Fatalf("failed to initialize provider client: %v", err)
	}

	authSvc := auth.NewService(cfg.Auth)
	seedUsers(authSvc)

	store := history.NewMemoryStore(cfg.History.MaxTurns)
	streamRelay := relay.New(completer, cfg.LLM.Timeout)
	controller := session.NewController(store, streamRelay, cfg.History.SystemPrompt)

	router := handler.NewRouter(authSvc, controller)

	startServer(ctx, cfg.Server, router)
}

// seedUsers provisions the development account so the service is usable
// before a registration flow has run.
func seedUsers(authSvc *auth.Service) {
	if _, _, err := authSvc.Register("Test User", "test@example.com", "password"); err != nil {
		log.Printf("warning: failed to seed test user: %v", err)
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("chat relay listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
