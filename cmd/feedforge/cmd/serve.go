package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/feedforge/feedforge/internal/adapters/model"
	"github.com/feedforge/feedforge/internal/adapters/search"
	"github.com/feedforge/feedforge/internal/adapters/social"
	"github.com/feedforge/feedforge/internal/adapters/state"
	"github.com/feedforge/feedforge/internal/api"
	"github.com/feedforge/feedforge/internal/config"
	"github.com/feedforge/feedforge/internal/logging"
	"github.com/feedforge/feedforge/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the workflow engine",
	Long: `Start the workflow engine: the HTTP API, the in-process scheduler,
the stuck-run reaper and the config watcher.

Examples:
  # Start with defaults (:8420)
  feedforge serve

  # Start on a custom address
  feedforge serve --addr :3000`,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"listen address (overrides server.addr)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(_ *cobra.Command, _ []string) error {
	logger := logging.New(logging.Config{
		Level:  logLevel,
		Format: logFormat,
		Output: os.Stdout,
	})

	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	watcher := config.NewWatcher(loader, cfg, logger)

	store, err := state.NewStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn("closing state store", "error", closeErr)
		}
	}()

	modelClient := model.NewClient(model.Config{
		BaseURL:     cfg.Model.BaseURL,
		APIKey:      cfg.Model.APIKey,
		Model:       cfg.Model.Model,
		MaxTokens:   cfg.Model.MaxTokens,
		Temperature: cfg.Model.Temperature,
		Timeout:     cfg.Model.Timeout,
	})
	searchClient := search.NewClient(search.Config{
		BaseURL: cfg.Search.BaseURL,
		APIKey:  cfg.Search.APIKey,
		Timeout: cfg.Search.Timeout,
	})
	socialClient := social.NewClient(social.Config{
		BaseURL:      cfg.Social.BaseURL,
		TokenURL:     cfg.Social.TokenURL,
		ClientID:     cfg.Social.ClientID,
		ClientSecret: cfg.Social.ClientSecret,
		Timeout:      cfg.Social.Timeout,
	}, store)

	credits := service.NewCreditService(store, cfg.Credits, logger)
	orch := service.NewOrchestrator(watcher, store, store, store,
		modelClient, searchClient, socialClient, credits, logger)
	reaper := service.NewReaper(store, cfg.Workflow.StuckThreshold, cfg.Workflow.ReaperInterval, logger)
	scheduler := service.NewScheduler(store, orch, cfg.Scheduler.TickInterval, logger)

	server := api.NewServer(orch, reaper, scheduler, watcher, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return scheduler.Run(ctx) })
	g.Go(func() error { return reaper.Run(ctx) })
	g.Go(func() error { return watcher.Watch(ctx) })

	err = g.Wait()
	orch.Close(15 * time.Second)
	logger.Info("shutdown complete")
	return err
}
