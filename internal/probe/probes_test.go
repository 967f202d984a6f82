package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pennyhq/penny/pkg/models"
)

func TestPatternSearch(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "groceries.md"), []byte("remember to buy oat milk\n"), 0644); err != nil {
		t.Fatalf("write note: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "other.md"), []byte("nothing relevant here\n"), 0644); err != nil {
		t.Fatalf("write note: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "skip.pdf"), []byte("milk milk milk"), 0644); err != nil {
		t.Fatalf("write non-text file: %v", err)
	}

	p := NewPatternSearch(dir)
	item := &models.Item{Text: "get some milk from the store"}

	if !p.Applicable(item) {
		t.Fatal("pattern search should apply")
	}

	signal, detail, err := p.Run(context.Background(), item)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if signal != 0.9 {
		t.Errorf("signal = %v, want 0.9 for a few focused matches (%s)", signal, detail)
	}
}

func TestPatternSearchNoMatches(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "note.txt"), []byte("unrelated content\n"), 0644); err != nil {
		t.Fatalf("write note: %v", err)
	}

	p := NewPatternSearch(dir)
	signal, _, err := p.Run(context.Background(), &models.Item{Text: "xylophone quandary"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if signal != 0.1 {
		t.Errorf("signal = %v, want the no-match floor 0.1", signal)
	}
}

func TestPatternSearchNotConfigured(t *testing.T) {
	p := NewPatternSearch("")
	if p.Applicable(&models.Item{Text: "anything goes here"}) {
		t.Error("probe without a dir should not apply")
	}
}

func TestFileCheck(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "present.txt")
	if err := os.WriteFile(existing, []byte("x"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	p := NewFileCheck()
	item := &models.Item{
		Payload: models.Payload{
			"file_paths": []string{existing, filepath.Join(dir, "absent.txt")},
		},
	}

	if !p.Applicable(item) {
		t.Fatal("file check should apply")
	}

	signal, detail, err := p.Run(context.Background(), item)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if signal != 0.5 {
		t.Errorf("signal = %v, want 0.5 (%s)", signal, detail)
	}
}

func TestFileCheckNotApplicableWithoutPaths(t *testing.T) {
	p := NewFileCheck()
	if p.Applicable(&models.Item{Text: "no files here"}) {
		t.Error("file check without payload paths should not apply")
	}
}

func TestEndpointHealth(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	p := NewEndpointHealth(map[models.Category]string{
		models.CategoryMedia: healthy.URL,
	}, healthy.Client())

	item := &models.Item{
		Category: models.CategoryMedia,
		Payload:  models.Payload{"check_urls": []string{broken.URL}},
	}

	if !p.Applicable(item) {
		t.Fatal("endpoint probe should apply")
	}

	signal, detail, err := p.Run(context.Background(), item)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if signal != 0.5 {
		t.Errorf("signal = %v, want 0.5 (%s)", signal, detail)
	}
}

func TestEndpointHealthNotApplicable(t *testing.T) {
	p := NewEndpointHealth(nil, nil)
	if p.Applicable(&models.Item{Category: models.CategoryNotes}) {
		t.Error("probe with no targets or URLs should not apply")
	}
}

// fakeItemStore serves canned past items to the knowledge probe.
type fakeItemStore struct {
	items []models.Item
}

func (s *fakeItemStore) CreateItem(item *models.Item) error { return nil }
func (s *fakeItemStore) GetItem(id string) (*models.Item, error) {
	return nil, nil
}
func (s *fakeItemStore) ListItems(category models.Category, limit, offset int) ([]models.Item, int, error) {
	return s.items, len(s.items), nil
}
func (s *fakeItemStore) FinalizeItem(id string, status models.ItemStatus, routedTo string) error {
	return nil
}
func (s *fakeItemStore) ReclassifyItem(id string, category models.Category) error { return nil }

func TestKnowledge(t *testing.T) {
	store := &fakeItemStore{items: []models.Item{
		{ID: "old-1", Text: "buy oat milk again", Status: models.ItemStatusRouted},
		{ID: "old-2", Text: "buy whole milk", Status: models.ItemStatusRouted},
		{ID: "old-3", Text: "milk for cereal", Status: models.ItemStatusFailed},
		{ID: "old-4", Text: "unrelated errand", Status: models.ItemStatusRouted},
	}}

	p := NewKnowledge(store)
	item := &models.Item{ID: "new", Text: "pick up milk", Category: models.CategoryShopping}

	signal, detail, err := p.Run(context.Background(), item)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// Two routed items share the "milk" term; the failed one is ignored.
	if signal != 0.4 {
		t.Errorf("signal = %v, want 0.4 (%s)", signal, detail)
	}
}

func TestKnowledgeEmptyHistory(t *testing.T) {
	p := NewKnowledge(&fakeItemStore{})
	signal, _, err := p.Run(context.Background(), &models.Item{Text: "something new entirely"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if signal != 0.1 {
		t.Errorf("signal = %v, want floor 0.1", signal)
	}
}

func TestCommandWhitelist(t *testing.T) {
	p := NewCommand()

	item := &models.Item{Payload: models.Payload{"command": "rm -rf /"}}
	if !p.Applicable(item) {
		t.Fatal("command probe should apply when a command is present")
	}
	if _, _, err := p.Run(context.Background(), item); err == nil {
		t.Error("non-whitelisted command must be rejected")
	}

	safe := &models.Item{Payload: models.Payload{"command": "ls /nonexistent-path-for-test"}}
	signal, _, err := p.Run(context.Background(), safe)
	if err != nil {
		t.Fatalf("whitelisted command run: %v", err)
	}
	if signal != 0.3 {
		t.Errorf("signal = %v, want 0.3 for clean non-zero exit", signal)
	}
}

func TestCommandSuccess(t *testing.T) {
	p := NewCommand()
	item := &models.Item{Payload: models.Payload{"diagnostic": "uptime"}}

	signal, _, err := p.Run(context.Background(), item)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if signal != 0.8 {
		t.Errorf("signal = %v, want 0.8", signal)
	}
}

func TestCommandNotApplicable(t *testing.T) {
	p := NewCommand()
	if p.Applicable(&models.Item{Text: "no command here"}) {
		t.Error("probe without a command should not apply")
	}
}
