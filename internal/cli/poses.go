package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"map-annotator/internal/display"
	"map-annotator/internal/logger"
	"map-annotator/internal/registry"
	"map-annotator/internal/store"
)

var posesCmd = &cobra.Command{
	Use:   "poses [pose-store]",
	Short: "Print the stored poses without starting the annotator",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPoses,
}

func init() {
	rootCmd.AddCommand(posesCmd)
}

func runPoses(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	s, closeStore, err := store.Open(cfg.Store.Path, store.Format(cfg.Store.Format), logger.New(io.Discard, slog.LevelWarn))
	if err != nil {
		return err
	}
	defer closeStore()

	reg := registry.New()
	err = reg.LoadFrom(context.Background(), s)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintf(cmd.OutOrStdout(), "No poses saved in %s yet.\n", cfg.Store.Path)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), display.FormatPoses(reg.NamedPoses()))
	return nil
}
