package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pennyhq/penny/internal/config"
	"github.com/pennyhq/penny/internal/state"
	"github.com/pennyhq/penny/pkg/models"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent items and background tasks",
	Long: `Display recent items with their classification and lifecycle state,
plus a summary of background tasks.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "number of recent items to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbPath := state.DBPath(cfg.Data.Dir)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No data yet. Run 'penny serve' to start.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	items, total, err := db.ListItems("", statusLimit, 0)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}

	if total == 0 {
		fmt.Println("No items yet.")
	} else {
		fmt.Printf("Recent items (%d of %d):\n", len(items), total)
		for _, item := range items {
			fmt.Printf("  %s %-10s %.2f  %s %s\n",
				statusSymbol(item.Status),
				item.Category,
				item.Confidence,
				truncateText(item.Text, 50),
				color.New(color.Faint).Sprintf("(%s ago)", formatDuration(time.Since(item.CreatedAt))))
		}
	}

	counts, err := db.TaskCounts()
	if err != nil {
		return fmt.Errorf("task counts: %w", err)
	}
	if len(counts) > 0 {
		fmt.Println()
		fmt.Println("Background tasks:")
		for _, ts := range []models.TaskState{
			models.TaskStateQueued,
			models.TaskStateProbing,
			models.TaskStateEscalated,
			models.TaskStateDelivered,
			models.TaskStateExpired,
		} {
			if n := counts[ts]; n > 0 {
				fmt.Printf("  %-10s %d\n", ts, n)
			}
		}
	}

	return nil
}

func statusSymbol(s models.ItemStatus) string {
	switch s {
	case models.ItemStatusRouted:
		return color.GreenString("✓")
	case models.ItemStatusConfirmed:
		return color.GreenString("✓")
	case models.ItemStatusFailed:
		return color.RedString("✗")
	default:
		return color.YellowString("…")
	}
}

func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}
