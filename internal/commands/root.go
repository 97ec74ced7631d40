// Package commands implements the llmsdk command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gaborage/llmsdk/config"
	"github.com/gaborage/llmsdk/llm"
	"github.com/gaborage/llmsdk/logger"
	"github.com/gaborage/llmsdk/observability"
)

// RootOptions holds the persistent flags shared by every API command
type RootOptions struct {
	ConfigFile string
	EnvFile    string
}

// session is what an API command needs once configuration has been loaded.
type session struct {
	cfg      *config.Config
	log      logger.Logger
	sdk      *llm.SDK
	provider observability.Provider
}

func (s *session) close() {
	if s == nil || s.provider == nil {
		return
	}
	if err := observability.Shutdown(s.provider, observability.DefaultShutdownTimeout); err != nil {
		s.log.Warn().Err(err).Msg("Observability shutdown failed")
	}
}

// model returns the configured default for key, or fallback.
func (s *session) model(key, fallback string) string {
	return s.cfg.GetString("models."+key, fallback)
}

// NewRootCommand builds the command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{}

	root := &cobra.Command{
		Use:   "llmsdk",
		Short: "Call OpenAI-compatible APIs from the command line",
		Long: `Command line client for OpenAI-compatible APIs.

Configuration is read from config.yaml (or --config), then LLMSDK_* environment
variables. OPENAI_API_KEY is used as the token when api.token is not set.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", config.DefaultFile, "Configuration file")
	root.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "Dotenv file loaded before configuration")

	root.AddCommand(
		NewChatCommand(opts),
		NewImageCommand(opts),
		NewSpeechCommand(opts),
		NewTranscribeCommand(opts),
		NewTranslateCommand(opts),
		NewEmbedCommand(opts),
		NewVersionCommand(version),
	)
	return root
}

// Execute runs the command tree and reports the error, if any, on stderr.
func Execute(root *cobra.Command) int {
	if err := root.Execute(); err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "Error: %s\n", llm.ErrorSummary(err))
		return 1
	}
	return 0
}

func newSession(opts *RootOptions) (*session, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	cfg, err := config.LoadFile(opts.ConfigFile)
	if err != nil {
		return nil, err
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	provider, err := observability.NewProvider(&cfg.Observability, log)
	if err != nil {
		return nil, err
	}

	sdk, err := llm.NewFromConfig(cfg, log, llm.WithObservability(provider))
	if err != nil {
		_ = observability.Shutdown(provider, observability.DefaultShutdownTimeout)
		return nil, err
	}

	return &session{cfg: cfg, log: log, sdk: sdk, provider: provider}, nil
}

// loadEnvFile applies path to the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// withSession wraps an API command body with session setup and teardown.
func withSession(opts *RootOptions, run func(ctx context.Context, cmd *cobra.Command, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := newSession(opts)
		if err != nil {
			return err
		}
		defer s.close()
		return run(cmd.Context(), cmd, s, args)
	}
}
