package probe

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/pennyhq/penny/pkg/models"
)

// safeCommandPrefixes is the whitelist of read-only diagnostics the
// command probe may run. Anything else is rejected before execution.
var safeCommandPrefixes = []string{
	"ls", "cat", "head", "tail", "wc", "find", "which", "type",
	"git status", "git log", "git diff", "git branch",
	"docker ps", "docker images",
	"uptime", "df -h",
	"curl -I",
}

// Command runs a whitelisted read-only diagnostic command referenced in
// the item's payload.
type Command struct{}

// NewCommand creates the diagnostic-command probe.
func NewCommand() *Command {
	return &Command{}
}

func (p *Command) Name() string {
	return "command"
}

func (p *Command) Applicable(item *models.Item) bool {
	return diagnosticCommand(item) != ""
}

func (p *Command) Run(ctx context.Context, item *models.Item) (float64, string, error) {
	command := diagnosticCommand(item)

	if !isSafeCommand(command) {
		return 0, "", fmt.Errorf("command not in safe whitelist: %q", command)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	output, err := cmd.CombinedOutput()
	preview := strings.TrimSpace(string(output))
	if len(preview) > 200 {
		preview = preview[:200]
	}

	if err != nil {
		// A clean non-zero exit is still weak evidence; anything else
		// (timeout, missing binary) is a failure.
		if _, ok := err.(*exec.ExitError); ok && ctx.Err() == nil {
			return 0.3, fmt.Sprintf("exit error: %s", preview), nil
		}
		return 0, "", fmt.Errorf("run %q: %w", command, err)
	}

	return 0.8, preview, nil
}

func diagnosticCommand(item *models.Item) string {
	if cmd := item.Payload.String("command"); cmd != "" {
		return cmd
	}
	return item.Payload.String("diagnostic")
}

func isSafeCommand(command string) bool {
	trimmed := strings.TrimSpace(command)
	for _, prefix := range safeCommandPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}
