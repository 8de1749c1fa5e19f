package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/NamanBalaji/rangedl/internal/engine"
	"github.com/NamanBalaji/rangedl/internal/repository"
	"github.com/NamanBalaji/rangedl/internal/styles"
)

func errorLine(msg string) string {
	return styles.ErrorStyle.Render("✗ " + msg)
}

func printResults(w io.Writer, results []engine.Result) {
	for _, r := range results {
		name := filepath.Base(r.Output)
		switch {
		case r.Err != nil:
			fmt.Fprintln(w, errorLine(fmt.Sprintf("%s: %v", name, r.Err)))
		case r.Skipped:
			fmt.Fprintln(w, styles.WarningStyle.Render(fmt.Sprintf("• %s already complete (%s)", name, humanize.IBytes(uint64(r.Size)))))
		default:
			fmt.Fprintln(w, styles.SuccessStyle.Render(fmt.Sprintf("✓ %s %s", name, humanize.IBytes(uint64(r.Size))))+
				" "+styles.MutedStyle.Render("sha256:"+r.SHA256))
		}
	}
}

// checkpointTable renders checkpoints as a bordered table.
func checkpointTable(checkpoints []*repository.Checkpoint, now time.Time) string {
	rows := make([][]string, 0, len(checkpoints))

	for _, cp := range checkpoints {
		size := "?"
		if cp.FileSize > 0 {
			size = humanize.IBytes(uint64(cp.FileSize))
		}

		rows = append(rows, []string{
			cp.ID.String()[:8],
			cp.Status.String(),
			fmt.Sprintf("%s / %s (%.0f%%)", humanize.IBytes(uint64(cp.Received)), size, cp.Percent()),
			humanize.RelTime(cp.UpdatedAt, now, "ago", "from now"),
			cp.Output,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styles.BorderStyle).
		Headers("ID", "STATUS", "PROGRESS", "UPDATED", "OUTPUT").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.HeaderStyle
			}
			if col == 1 && row >= 0 && row < len(checkpoints) {
				return styles.Status(checkpoints[row].Status).Padding(0, 1)
			}
			return styles.CellStyle
		})

	return t.Render()
}
