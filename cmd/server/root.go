package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"hls2mp4/internal/application/conversion"
	"hls2mp4/internal/config"
	"hls2mp4/internal/infrastructure/ffmpeg"
	"hls2mp4/internal/infrastructure/filesystem"
	"hls2mp4/internal/infrastructure/realtime"
	"hls2mp4/internal/logging"
	httptransport "hls2mp4/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

func newRootCommand() *cobra.Command {
	var configFlag string
	var addrFlag string

	rootCmd := &cobra.Command{
		Use:           "hls2mp4",
		Short:         "Convert HLS playlists into downloadable MP4 files",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFlag)
			if err != nil {
				return err
			}
			if addrFlag != "" {
				cfg.ServerAddr = addrFlag
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	rootCmd.Flags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (TOML)")
	rootCmd.Flags().StringVar(&addrFlag, "addr", "", "Listen address, overrides config")

	return rootCmd
}

func serve(ctx context.Context, cfg config.Config) error {
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	store := filesystem.NewStore(cfg.ArtifactDir)
	if err := store.EnsureDir(); err != nil {
		return fmt.Errorf("storage init failed: %w", err)
	}

	publisher := newPublisher(cfg, logger)
	conversions := conversion.NewService(store, ffmpeg.NewConverter(), publisher, logger)

	sweeper := conversion.NewSweeper(store, conversion.DefaultSweepInterval, conversion.DefaultRetention, logger)
	sweeper.Start(ctx)

	handler := httptransport.NewHandler(conversions, httptransport.PageSettings{
		PusherKey:     cfg.PusherKey,
		PusherCluster: cfg.PusherCluster,
	}, logger)
	router := httptransport.NewRouter(handler, httptransport.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
	})

	server := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", "addr", cfg.ServerAddr, "artifact_dir", cfg.ArtifactDir)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newPublisher(cfg config.Config, logger *slog.Logger) conversion.Publisher {
	if !cfg.PusherEnabled() {
		logger.Warn("pusher credentials missing, progress events will not be delivered")
		return realtime.Noop{Logger: logger}
	}
	return realtime.NewPublisher(realtime.Credentials{
		AppID:   cfg.PusherAppID,
		Key:     cfg.PusherKey,
		Secret:  cfg.PusherSecret,
		Cluster: cfg.PusherCluster,
	}, logger)
}
