package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/patchguard/internal/server"
)

var (
	servePort     int
	serveNoReload bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 50051, "gRPC listen port")
	serveCmd.Flags().BoolVar(&serveNoReload, "no-reload", false, "Disable hot-reload of config and catalog files")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start gRPC validation server",
	Long:  "Runs patchguard as a central validation server over gRPC\n(patchguard.v1.Validator). Supports hot-reload of the config,\nwhitelist and pattern files.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	srv, err := server.New(server.Config{Port: servePort, ConfigPath: configPath}, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !serveNoReload {
		reloader, err := server.NewReloader(srv, srv.WatchPaths())
		if err != nil {
			logger.Warn("hot-reload disabled", zap.Error(err))
		} else {
			go reloader.Run(ctx)
			logger.Info("hot-reload enabled", zap.Strings("paths", reloader.Paths()))
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down validation server...")
		cancel()
		srv.GracefulStop()
	}()

	fmt.Fprintf(os.Stderr, "patchguard validation server listening on :%d\n", servePort)
	fmt.Fprintf(os.Stderr, "Config hash: %s\n\n", srv.ConfigHash())

	return srv.Serve()
}
