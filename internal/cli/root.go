package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/patchguard/internal/config"
	"github.com/ppiankov/patchguard/internal/logging"
	"github.com/ppiankov/patchguard/internal/validator"
)

var (
	configPath string
	logLevel   string
	logJSON    bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config YAML (default ~/.patchguard/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error), overrides config")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs as JSON")
}

var rootCmd = &cobra.Command{
	Use:           "patchguard",
	Short:         "Security validation and deterministic sandboxing for code patches",
	Long:          "Decomposes a proposed patch into atomic operations, detects dangerous\nconstructs, scores the risk, and simulates accepted patches in a\ndeterministic sandbox. Rejections come with an explanation and a fix.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError ends the process with a status code once the command has
// returned and its deferred cleanup has run. Its message is not printed.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// errRejected reports that at least one patch or case did not pass.
var errRejected = &exitError{code: 1}

// Execute runs the root command.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var exit *exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

// loadConfig reads the configuration selected by --config.
func loadConfig() (*config.Config, string, error) {
	cfg, hash, err := config.LoadConfigWithHash(configPath)
	if err != nil {
		return nil, "", err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logJSON {
		cfg.Log.JSON = true
	}
	return cfg, hash, nil
}

// newLogger builds the process logger from the loaded configuration.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return logger, nil
}

// openValidator loads the configuration and builds a validator with its
// audit log and alerts.
func openValidator() (*validator.Validator, *zap.Logger, error) {
	cfg, hash, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	v, err := validator.Open(cfg, hash, logger)
	if err != nil {
		return nil, nil, err
	}
	return v, logger, nil
}
