package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/harukado/kura/internal/config"
	"github.com/harukado/kura/internal/server"
)

var (
	configFile string
	port       int
	address    string
	dataDir    string
	accessKey  string
	secretKey  string
	logLevel   string
)

// NewServerCmd creates the server command.
func NewServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the S3-compatible server",
		Long:  "Start the Kura server that provides S3-compatible API endpoints.",
		RunE:  runServer,
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "server port (default 9100)")
	cmd.Flags().StringVar(&address, "address", "", "listen address")
	cmd.Flags().StringVarP(&dataDir, "data-dir", "d", "", "data directory")
	cmd.Flags().StringVar(&accessKey, "access-key", "", "access key")
	cmd.Flags().StringVar(&secretKey, "secret-key", "", "secret key")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	return cmd
}

func runServer(cmd *cobra.Command, args []string) error {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Command line flags win over file and environment.
	if port != 0 {
		cfg.Server.Port = port
	}
	if address != "" {
		cfg.Server.Address = address
	}
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	if accessKey != "" {
		cfg.Auth.AccessKey = accessKey
	}
	if secretKey != "" {
		cfg.Auth.SecretKey = secretKey
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	setupLogging(cfg.Logging)

	log.Info().
		Int("port", cfg.Server.Port).
		Str("data_dir", cfg.Storage.DataDir).
		Msg("Starting Kura server")

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		return srv.Shutdown()
	}
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
