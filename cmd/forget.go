package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/NamanBalaji/rangedl/internal/filesystem"
	"github.com/NamanBalaji/rangedl/internal/repository"
	"github.com/NamanBalaji/rangedl/internal/styles"
)

var deleteFiles bool

var forgetCmd = &cobra.Command{
	Use:   "forget ID|prefix|all",
	Short: "Delete saved checkpoints; an ID prefix from list is enough",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targets, err := matchCheckpoints(repo, args[0])
		if err != nil {
			return err
		}

		fs := filesystem.NewOSFileSystem()
		for _, cp := range targets {
			if err := repo.Delete(cp.ID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), styles.SuccessStyle.Render("✓ forgot "+cp.ID.String()))

			if !deleteFiles {
				continue
			}

			exists, err := fs.FileExists(cp.Output)
			if err != nil {
				return err
			}
			if !exists {
				continue
			}
			if err := fs.DeleteFile(cp.Output); err != nil {
				return fmt.Errorf("failed to delete %s: %w", cp.Output, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), styles.MutedStyle.Render("  deleted "+cp.Output))
		}

		return nil
	},
}

// matchCheckpoints resolves "all", a full ID or a unique ID prefix.
func matchCheckpoints(r repository.Repository, arg string) ([]*repository.Checkpoint, error) {
	if id, err := uuid.Parse(arg); err == nil {
		cp, err := r.Find(id)
		if err != nil {
			return nil, err
		}
		return []*repository.Checkpoint{cp}, nil
	}

	all, err := r.FindAll()
	if err != nil {
		return nil, err
	}

	if arg == "all" {
		return all, nil
	}

	var matches []*repository.Checkpoint
	for _, cp := range all {
		if strings.HasPrefix(cp.ID.String(), strings.ToLower(arg)) {
			matches = append(matches, cp)
		}
	}

	switch len(matches) {
	case 0:
		return nil, repository.ErrCheckpointNotFound
	case 1:
		return matches, nil
	default:
		return nil, fmt.Errorf("prefix %q matches %d checkpoints", arg, len(matches))
	}
}

func init() {
	forgetCmd.Flags().BoolVar(&deleteFiles, "delete-files", false, "Also delete the downloaded files")
}
