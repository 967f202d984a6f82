package probe

import (
	"context"
	"fmt"
	"os"

	"github.com/pennyhq/penny/pkg/models"
)

// maxFilesChecked bounds the file probe's work per run.
const maxFilesChecked = 10

// FileCheck verifies that files referenced in an item's payload exist.
// The signal is the fraction of referenced files found.
type FileCheck struct{}

// NewFileCheck creates the file-existence probe.
func NewFileCheck() *FileCheck {
	return &FileCheck{}
}

func (p *FileCheck) Name() string {
	return "file-check"
}

func (p *FileCheck) Applicable(item *models.Item) bool {
	return len(referencedPaths(item)) > 0
}

func (p *FileCheck) Run(ctx context.Context, item *models.Item) (float64, string, error) {
	paths := referencedPaths(item)
	if len(paths) > maxFilesChecked {
		paths = paths[:maxFilesChecked]
	}

	found := 0
	for _, path := range paths {
		if ctx.Err() != nil {
			return 0, "", ctx.Err()
		}
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			found++
		}
	}

	signal := float64(found) / float64(len(paths))
	detail := fmt.Sprintf("%d of %d files found", found, len(paths))
	return signal, detail, nil
}

func referencedPaths(item *models.Item) []string {
	paths := item.Payload.Strings("file_paths")
	if len(paths) == 0 {
		paths = item.Payload.Strings("read_files")
	}
	if len(paths) == 0 {
		if single := item.Payload.String("file_path"); single != "" {
			paths = []string{single}
		}
	}
	return paths
}
