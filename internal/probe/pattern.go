package probe

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pennyhq/penny/pkg/models"
)

// maxPatternFileSize skips files too large for a cheap scan.
const maxPatternFileSize = 1 << 20

var patternWordRE = regexp.MustCompile(`\b\w{4,}\b`)

// PatternSearch scans a configured notes directory for the item's key
// terms. Few focused matches carry a strong signal; a broad smear of
// matches carries a weak one.
type PatternSearch struct {
	dir string
}

// NewPatternSearch creates a pattern-search probe over dir. An empty dir
// disables the probe.
func NewPatternSearch(dir string) *PatternSearch {
	return &PatternSearch{dir: dir}
}

func (p *PatternSearch) Name() string {
	return "pattern-search"
}

func (p *PatternSearch) Applicable(item *models.Item) bool {
	return p.dir != "" && len(searchTerms(item.Text)) > 0
}

func (p *PatternSearch) Run(ctx context.Context, item *models.Item) (float64, string, error) {
	terms := searchTerms(item.Text)

	totalMatches := 0
	filesHit := 0
	err := filepath.WalkDir(p.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".md", ".txt":
		default:
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() > maxPatternFileSize {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}

		content := strings.ToLower(string(data))
		matched := 0
		for _, term := range terms {
			matched += strings.Count(content, term)
		}
		if matched > 0 {
			totalMatches += matched
			filesHit++
		}
		return nil
	})
	if err != nil {
		return 0, "", fmt.Errorf("scan %s: %w", p.dir, err)
	}

	// Few matches = focused, high signal. Many = broad, weaker.
	var signal float64
	switch {
	case totalMatches == 0:
		signal = 0.1
	case totalMatches <= 5:
		signal = 0.9
	case totalMatches <= 20:
		signal = 0.7
	default:
		signal = 0.5
	}

	detail := fmt.Sprintf("%d matches across %d files", totalMatches, filesHit)
	return signal, detail, nil
}

// searchTerms extracts the item's meaningful words (4+ chars) for
// matching.
func searchTerms(text string) []string {
	var terms []string
	for _, word := range patternWordRE.FindAllString(strings.ToLower(text), -1) {
		terms = append(terms, word)
	}
	return terms
}
