// Package main is the entry point for the arxindle CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"arxindle/internal/config"
	"arxindle/internal/logger"
	"arxindle/internal/types"
)

// version is set at build time via ldflags.
var version = "dev"

// manager holds the configuration loaded before any subcommand runs.
var manager *config.ConfigManager

var rootCmd = &cobra.Command{
	Use:   "arxindle",
	Short: "Reflow arXiv LaTeX sources for e-reader screens",
	Long: `arxindle rewrites an unpacked LaTeX source tree for a small page, compiles it
with automatic recovery from common failures, and optionally rotates the
result for landscape reading.

Settings are read from ~/.config/arxindle/config.yaml (or --config), then
ARXINDLE_* environment variables, then command-line flags.`,
	Version:           version,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) { _ = logger.Close() },
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default ~/.config/arxindle/config.yaml)")
	pf.BoolP("verbose", "v", false, "debug logging to stderr")
	pf.String("log-file", "", "write logs to this file")
	pf.String("compiler", "", "LaTeX engine: pdflatex, xelatex or lualatex")
	pf.String("rotate-tool", "", "landscape rotation tool: pdftk or pdfcpu")
	pf.Int("max-attempts", 0, "compile attempts before giving up")
	pf.Bool("strict-class", false, "fail on document classes that do not reflow")
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"compiler":     "compiler",
	"rotate-tool":  "rotate_tool",
	"max-attempts": "max_attempts",
	"strict-class": "strict_class",
	"log-file":     "log_file",
	"width":        "width",
	"height":       "height",
	"margin":       "margin",
	"landscape":    "landscape",
	"concurrency":  "concurrency",
}

func setup(cmd *cobra.Command, _ []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	path, _ := cmd.Flags().GetString("config")

	if err := initLogger(verbose, ""); err != nil {
		return err
	}

	m, err := config.NewConfigManager(path)
	if err != nil {
		return err
	}
	if err := m.Load(); err != nil {
		return err
	}
	if err := bindFlags(m, cmd.Flags()); err != nil {
		return err
	}
	if err := m.Refresh(); err != nil {
		return err
	}
	cfg := m.GetConfig()
	if err := initLogger(verbose, cfg.LogFile); err != nil {
		return err
	}
	if cfg.LogLevel != "" && !verbose {
		level, err := logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			return types.NewAppError(types.ErrConfig, "invalid log_level", err)
		}
		logger.GetLogger().SetLevel(level)
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	manager = m
	return nil
}

func bindFlags(m *config.ConfigManager, flags *pflag.FlagSet) error {
	v := m.Viper()
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = types.NewAppError(types.ErrConfig, "failed to bind flag --"+f.Name, err)
		}
	})
	return bindErr
}

// initLogger logs warnings to stderr by default and everything when verbose.
func initLogger(verbose bool, logFile string) error {
	cfg := logger.DefaultConfig()
	cfg.LogFilePath = logFile
	cfg.Level = logger.LevelWarn
	if verbose {
		cfg.Level = logger.LevelDebug
		cfg.StackTraces = true
	}
	if err := logger.Init(cfg); err != nil {
		return types.NewAppError(types.ErrConfig, "failed to initialize logger", err)
	}
	return nil
}

// printError writes err with its hint and log excerpt.
func printError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", err)
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return
	}
	if appErr.LogTail != "" {
		fmt.Fprintln(w, "\nLast compiler output:")
		fmt.Fprintln(w, appErr.LogTail)
	}
	if hint := appErr.Hint(); hint != "" {
		fmt.Fprintln(w, "\nHint:", hint)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}
