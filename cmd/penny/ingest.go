package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var ingestServerURL string

var ingestCmd = &cobra.Command{
	Use:   "ingest [text]",
	Short: "Send one transcript to a running Penny server",
	Long: `Classify and route a single piece of text through a running Penny
server. Reads from stdin when no argument is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestServerURL, "server", defaultServerURL(), "Penny server base URL")
	confirmCmd.Flags().StringVar(&confirmServerURL, "server", defaultServerURL(), "Penny server base URL")
}

func defaultServerURL() string {
	if url := os.Getenv("PENNY_URL"); url != "" {
		return url
	}
	return "http://localhost:8000"
}

func runIngest(cmd *cobra.Command, args []string) error {
	var text string
	if len(args) == 1 {
		text = args[0]
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("nothing to ingest")
	}

	body, _ := json.Marshal(map[string]string{"text": text, "source": "cli"})
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(
		strings.TrimRight(ingestServerURL, "/")+"/api/ingest",
		"application/json",
		bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("send to server: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Item struct {
			ID         string  `json:"id"`
			Category   string  `json:"category"`
			Confidence float64 `json:"confidence"`
		} `json:"item"`
		Outcome struct {
			Action        string `json:"action"`
			RoutedTo      string `json:"routed_to,omitempty"`
			CorrelationID string `json:"correlation_id,omitempty"`
			TaskID        string `json:"task_id,omitempty"`
		} `json:"outcome"`
		Error string `json:"error,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, result.Error)
	}

	fmt.Printf("%s %s (%.2f confidence)\n",
		color.GreenString("✓"), result.Item.Category, result.Item.Confidence)
	switch result.Outcome.Action {
	case "dispatched":
		fmt.Printf("  Dispatched to %s\n", result.Outcome.RoutedTo)
	case "fallback":
		fmt.Printf("  %s Dispatch failed; sent to fallback channel\n", color.YellowString("⚠"))
	case "confirming":
		fmt.Printf("  Awaiting confirmation (penny confirm %s)\n", result.Outcome.CorrelationID)
	case "enqueued":
		fmt.Printf("  Queued for background gathering (task %s)\n", result.Outcome.TaskID)
	}
	return nil
}
