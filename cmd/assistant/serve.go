package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-voice-assistant/internal/artifact"
	"github.com/tbourn/go-voice-assistant/internal/config"
	httpapi "github.com/tbourn/go-voice-assistant/internal/http"
	"github.com/tbourn/go-voice-assistant/internal/llm"
	"github.com/tbourn/go-voice-assistant/internal/observability"
	"github.com/tbourn/go-voice-assistant/internal/queue"
	"github.com/tbourn/go-voice-assistant/internal/repo"
	"github.com/tbourn/go-voice-assistant/internal/services"
	"github.com/tbourn/go-voice-assistant/internal/stt"
	"github.com/tbourn/go-voice-assistant/internal/tts"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the merge workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(log.Logger.WithContext(ctx), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg config.Config) error {
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := openLedger(cfg.DB)
	if err != nil {
		return err
	}
	defer closeDB(db)

	store, err := artifact.New(cfg.AudioDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.ImageDir, 0o755); err != nil {
		return err
	}

	chat := llm.NewClient(cfg.LLM)
	if model, err := chat.EnsureModel(ctx); err != nil {
		log.Warn().Err(err).Str("model", model).Msg("llm model check failed")
	} else {
		log.Info().Str("model", model).Msg("llm model ready")
	}

	q, err := queue.Open(ctx, cfg.Merge)
	if err != nil {
		return err
	}
	worker := &services.MergeWorker{
		DB:          db,
		Store:       store,
		Queue:       q,
		Concurrency: cfg.Merge.Workers,
		MaxAttempts: cfg.Merge.MaxAttempts,
		RetryDelay:  cfg.Merge.RetryDelay,
	}
	worker.Start(ctx)
	if n, err := worker.Reconcile(ctx); err != nil {
		log.Warn().Err(err).Int("scheduled", n).Msg("merge reconcile incomplete")
	} else if n > 0 {
		log.Info().Int("scheduled", n).Msg("re-queued unmerged messages")
	}

	session := &services.Session{}
	if err := session.Load(ctx, db); err != nil {
		return err
	}

	orch := &services.Orchestrator{
		DB:               db,
		Store:            store,
		Responder:        llm.NewResponder(chat, cfg.LLM.MaxHistory),
		TTS:              tts.New(cfg.TTS, cfg.SampleRate),
		Merges:           worker,
		Session:          session,
		MaxSegmentLength: cfg.SegmentMaxLength,
		Speaker:          cfg.DefaultSpeaker,
	}
	deps := httpapi.Deps{
		Chat: &services.Processor{
			Orchestrator: orch,
			STT:          stt.New(cfg.STT),
			Images:       services.PlaceholderAnalyzer{},
			ImageDir:     cfg.ImageDir,
		},
		Audio:    &services.AudioService{DB: db, Store: store},
		Sessions: &services.SessionService{DB: db, Store: store, Session: session},
		Ready: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, deps, cfg)

	// Request contexts keep the logger but not the signal cancellation, so
	// in-flight streams drain on shutdown.
	srv := &http.Server{
		Addr:              ":" + strings.TrimPrefix(cfg.Port, ":"),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	case serveErr = <-errc:
		if serveErr != nil {
			log.Error().Err(serveErr).Msg("http server failed")
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if err := worker.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("merge worker shutdown")
	}
	log.Info().Msg("stopped")
	return serveErr
}

// openLedger opens the configured database, creating the SQLite parent
// directory when needed, and migrates the schema.
func openLedger(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.Driver == "" || cfg.Driver == "sqlite" {
		if !strings.HasPrefix(cfg.Path, "file:") {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, err
			}
		}
	}
	db, err := repo.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := repo.AutoMigrate(db); err != nil {
		closeDB(db)
		return nil, err
	}
	return db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
