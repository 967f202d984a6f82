package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var confirmServerURL string

var confirmCmd = &cobra.Command{
	Use:   "confirm <correlation-id>",
	Short: "Confirm a pending dispatch",
	Long: `Reply to a confirmation request. The correlation ID is included in
the confirmation message Penny sends.`,
	Args: cobra.ExactArgs(1),
	RunE: runConfirm,
}

func runConfirm(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 30 * time.Second}
	url := strings.TrimRight(confirmServerURL, "/") + "/api/confirm/" + args[0]
	resp, err := client.Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("send to server: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Action   string `json:"action"`
		RoutedTo string `json:"routed_to,omitempty"`
		Error    string `json:"error,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if result.Action == "fallback" {
			fmt.Printf("%s Confirmed, but dispatch failed; sent to fallback channel\n", color.YellowString("⚠"))
			return nil
		}
		fmt.Printf("%s Confirmed and dispatched to %s\n", color.GreenString("✓"), result.RoutedTo)
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("no pending confirmation with that ID")
	case http.StatusConflict:
		return fmt.Errorf("already resolved (confirmed or timed out)")
	default:
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, result.Error)
	}
}
