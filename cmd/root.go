package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"

	"github.com/NamanBalaji/rangedl/internal/config"
	"github.com/NamanBalaji/rangedl/internal/filesystem"
	"github.com/NamanBalaji/rangedl/internal/logger"
	"github.com/NamanBalaji/rangedl/internal/repository"
)

var (
	debug   bool
	logPath string

	cfg  *config.Config
	repo *repository.BboltRepository
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:           "rangedl",
	Short:         "Resumable range-request downloader",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.InitLogging(debug, logPath); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		var err error
		cfg, err = config.GetConfig()
		if err != nil {
			return fmt.Errorf("failed to read config %s: %w", config.Path(), err)
		}

		if err := filesystem.NewOSFileSystem().EnsureDirectory(filepath.Dir(cfg.StateDB)); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}

		repo, err = repository.NewBboltRepository(cfg.StateDB)
		if err != nil {
			return err
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeState()
	},
}

func closeState() {
	if repo != nil {
		if err := repo.Close(); err != nil {
			logger.Warnf("Error closing state database: %v", err)
		}
		repo = nil
	}
	logger.Close()
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		closeState()
		fmt.Fprintln(os.Stderr, errorLine(err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logPath, "log-file", filepath.Join(xdg.StateHome, "rangedl", "rangedl.log"), "Append JSON logs to this file (empty disables)")

	rootCmd.AddCommand(getCmd, listCmd, forgetCmd)
}
