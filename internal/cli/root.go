// Package cli is the annotator command line.
package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"map-annotator/internal/app"
	"map-annotator/internal/config"
	"map-annotator/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "annotator [pose-store]",
	Short: "Name robot poses on a map and navigate back to them",
	Long: `The annotator keeps a set of named poses, one draggable marker each,
and sends the robot to any of them on request. Poses are stored in a YAML or
TOML file or a Badger directory and are saved again on exit.`,
	Args:              cobra.MaximumNArgs(1),
	PersistentPreRunE: initConfig,
	RunE:              runAnnotator,
	SilenceUsage:      true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default .annotator.yaml)")

	rootCmd.Flags().String("http-addr", "127.0.0.1:8088", "listen address of the HTTP API")
	rootCmd.Flags().Bool("no-console", false, "run without the interactive console")
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	_ = viper.BindPFlag("http.addr", rootCmd.Flags().Lookup("http-addr"))
	_ = viper.BindPFlag("log.level", rootCmd.Flags().Lookup("log-level"))
}

func initConfig(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	return config.Init(cfgFile)
}

// loadConfig resolves the configuration; a positional pose-store argument
// overrides store.path.
func loadConfig(args []string) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if len(args) > 0 {
		cfg.Store.Path = args[0]
		cfg.Store.Format = ""
	}
	return cfg, cfg.Validate()
}

func runAnnotator(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if noConsole, _ := cmd.Flags().GetBool("no-console"); noConsole {
		cfg.Console.Enabled = false
	}

	log, closeLog, err := logger.Init(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("could not initialize logger: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, app.Options{Config: cfg, Logger: log})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Poses: %s\n", cfg.Store.Path)
	if cfg.HTTP.Enabled {
		fmt.Fprintf(out, "HTTP API: http://%s/v1\n", cfg.HTTP.Addr)
	}
	if !cfg.Console.Enabled {
		fmt.Fprintln(out, "Console disabled; press Ctrl+C to stop.")
	}

	if err := a.Run(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Goodbye!")
	return nil
}
