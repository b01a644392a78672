package main

import (
	"chat-relay/api"
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/search"
	"chat-relay/sink"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Chat relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and owns their lifecycle, so that deferred
// cleanups run before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	// A missing .env file is fine, the environment alone is enough
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}
	backend, err := config.Backend()
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Storage (BadgerDB only when a component needs it)
	var db *badger.DB
	if config.NeedsBadger() {
		db, err = badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING))
		if err != nil {
			return exitRuntime, fmt.Errorf("database opening failed: %w", err)
		}
		defer func() {
			logger.Info("Closing BadgerDB...")
			_ = db.Close()
		}()
	}

	var identityStore contract.IdentityStore
	switch backend {
	case internal.IdentityBadger:
		identityStore = repositories.NewBadgerIdentityStore(db)
	default:
		identityStore = repositories.NewFileIdentityStore(config.UsersFile, logger)
	}

	// 4. Coordinator
	registry := runtime.NewRegistry()
	orchestrator := runtime.NewOrchestrator(logger, identityStore, registry, runtime.OrchestratorConfig{
		HistoryLimit:      config.HistoryLimit,
		RoomHistoryLimit:  config.RoomHistoryLimit,
		TypingQuietPeriod: config.TypingQuietPeriod,
		CommandBufferSize: config.CommandBufferSize,
	})
	if err := orchestrator.Load(ctx); err != nil {
		return exitRuntime, fmt.Errorf("identity store loading failed: %w", err)
	}

	if config.CensoredWords != "" {
		moderator, err := buildModerator(config.CensoredWords, charReplacement, logger)
		if err != nil {
			return exitConfig, err
		}
		orchestrator.WithModerator(moderator)
	}

	authLimiter := api.NewLimiterStore(logger, config.AuthRateLimitRPM, config.AuthRateBurst, time.Minute)
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(
		orchestrator,
		workers.NewTypingSweeper(logger, orchestrator, config.TypingSweepInterval),
		authLimiter,
	)

	// 5. Optional archive (badger + bluge)
	var archive *api.Archive
	if config.ArchiveEnabled {
		blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
		if err != nil {
			return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
		}
		defer func() {
			logger.Info("Closing Bluge...")
			_ = blugeWriter.Close()
		}()

		archiveRepository := repositories.NewArchiveRepository(db, logger)
		lastID, err := archiveRepository.LastID()
		if err != nil {
			return exitRuntime, fmt.Errorf("failed to read the archive: %w", err)
		}
		// Archive keys are message ids, so ids continue after the previous run
		orchestrator.ResumeAfter(lastID)
		logger.Info("Message ids resume after archive", "last_id", lastID)
		index := search.NewIndex(blugeWriter, logger)
		archiveChan := make(chan event.DomainEvent, config.ArchiveBufferSize)
		orchestrator.WithArchive(archiveChan)
		sup.Add(workers.NewEventFanout(logger, archiveChan, config.SinkTimeout,
			sink.NewArchiveSink(archiveRepository, index, logger)))
		archive = &api.Archive{Index: index, Repository: archiveRepository}
	}

	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		sup.Run(ctx)
	}()

	// 6. HTTP & WebSocket server
	ws := api.NewWebsocketHandler(ctx, logger, orchestrator, authLimiter, api.WebsocketConfig{
		ConnectionBufferSize: config.ConnectionBufferSize,
		EventsPerSecond:      config.EventsPerSecond,
		EventBurst:           config.EventBurst,
		MaxContentLength:     config.MaxContentLength,
		AllowedOrigin:        config.ClientOrigin,
	})
	health := observability.NewHealthHandler(logger, orchestrator).WithRestarts(sup)
	server := &http.Server{
		Addr:              config.Address(),
		Handler:           api.NewRouter(logger, orchestrator, archive, health, ws, api.RouterConfig{TrustProxy: config.TrustProxy}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "address", server.Addr, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	code, runErr := exitOK, error(nil)
	select {
	case <-ctx.Done():
		logger.Info("Shutting down gracefully...")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", "err", err)
	}
	stop()
	sup.Stop()
	<-supervisorDone
	logger.Info("Program stopped cleanly")
	return code, runErr
}

func buildModerator(dir string, replacement rune, logger *slog.Logger) (*moderation.Moderator, error) {
	list, err := moderation.LoadWords(os.DirFS(dir), ".")
	if err != nil {
		return nil, fmt.Errorf("censored words loading failed: %w", err)
	}
	logger.Info("Moderation enabled", "words", len(list.Words), "languages", list.Languages)
	return moderation.NewModerator(list.Words, replacement, logger)
}
