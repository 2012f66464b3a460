package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/parley/pkg/agent"
	"github.com/go-go-golems/parley/pkg/config"
	"github.com/go-go-golems/parley/pkg/webchat"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "parley",
		Short: "Chat gateway in front of a remote agent service",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(newServeCmd(), newAskCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func setupLogging(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	logger = logger.Level(level).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat gateway HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := setupLogging(cfg)

			router, err := webchat.NewRouter(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = router.Close() }()

			ctx, cancel := signalContext()
			defer cancel()

			server := router.BuildHTTPServer(cfg.Addr)
			group, groupCtx := errgroup.WithContext(ctx)
			group.Go(func() error {
				logger.Info().Str("addr", cfg.Addr).Msg("listening")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			group.Go(func() error {
				<-groupCtx.Done()
				logger.Info().Msg("shutting down")
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()
				return server.Shutdown(shutdownCtx)
			})
			return group.Wait()
		},
	}
}

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Send a one-shot question to the agent service and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := setupLogging(cfg)

			client, err := agent.NewClient(agent.Config{
				BaseURL: cfg.AgentBaseURL,
				Agent:   cfg.AgentName,
				Token:   cfg.AgentSecret,
			}, logger)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			answer, err := client.Invoke(ctx, strings.Join(args, " "), nil)
			if err != nil {
				return err
			}
			fmt.Println(answer)
			return nil
		},
	}
}
