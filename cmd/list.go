package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/NamanBalaji/rangedl/internal/styles"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Show saved download checkpoints",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		checkpoints, err := repo.FindAll()
		if err != nil {
			return err
		}

		if len(checkpoints) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), styles.MutedStyle.Render("No downloads recorded"))
			return nil
		}

		fmt.Fprintln(cmd.OutOrStdout(), checkpointTable(checkpoints, time.Now()))
		return nil
	},
}
