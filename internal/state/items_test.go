package state

import (
	"fmt"
	"testing"

	"github.com/pennyhq/penny/pkg/models"
)

func newTestItem(id string, category models.Category) *models.Item {
	return &models.Item{
		ID:         id,
		Text:       "add oat milk to the shopping list",
		Source:     "voice",
		Category:   category,
		Confidence: 0.9,
		Status:     models.ItemStatusPending,
	}
}

func TestItemRoundTrip(t *testing.T) {
	db := testDB(t)

	item := newTestItem("item-1", models.CategoryShopping)
	item.Payload = models.Payload{
		"entries": []string{"oat milk"},
		"list":    "groceries",
	}

	if err := db.CreateItem(item); err != nil {
		t.Fatalf("create item: %v", err)
	}

	got, err := db.GetItem("item-1")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}

	if got.Text != item.Text {
		t.Errorf("text = %q, want %q", got.Text, item.Text)
	}
	if got.Category != models.CategoryShopping {
		t.Errorf("category = %q, want shopping", got.Category)
	}
	if got.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", got.Confidence)
	}
	if got.Status != models.ItemStatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
	if entries := got.Payload.Strings("entries"); len(entries) != 1 || entries[0] != "oat milk" {
		t.Errorf("payload entries = %v, want [oat milk]", entries)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps should be set on create")
	}
}

func TestGetItemNotFound(t *testing.T) {
	db := testDB(t)

	if _, err := db.GetItem("missing"); err != ErrNotFound {
		t.Errorf("GetItem(missing) error = %v, want ErrNotFound", err)
	}
}

func TestListItems(t *testing.T) {
	db := testDB(t)

	for i := 0; i < 3; i++ {
		item := newTestItem(fmt.Sprintf("shop-%d", i), models.CategoryShopping)
		if err := db.CreateItem(item); err != nil {
			t.Fatalf("create item: %v", err)
		}
	}
	if err := db.CreateItem(newTestItem("media-1", models.CategoryMedia)); err != nil {
		t.Fatalf("create item: %v", err)
	}

	items, total, err := db.ListItems("", 0, 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if total != 4 || len(items) != 4 {
		t.Errorf("list all: got %d items, total %d, want 4/4", len(items), total)
	}

	items, total, err = db.ListItems(models.CategoryShopping, 2, 0)
	if err != nil {
		t.Fatalf("list shopping: %v", err)
	}
	if total != 3 {
		t.Errorf("shopping total = %d, want 3", total)
	}
	if len(items) != 2 {
		t.Errorf("shopping page = %d items, want 2", len(items))
	}
	for _, item := range items {
		if item.Category != models.CategoryShopping {
			t.Errorf("filtered list returned category %q", item.Category)
		}
	}
}

func TestFinalizeItem(t *testing.T) {
	db := testDB(t)

	item := newTestItem("item-1", models.CategoryShopping)
	if err := db.CreateItem(item); err != nil {
		t.Fatalf("create item: %v", err)
	}

	if err := db.FinalizeItem("item-1", models.ItemStatusRouted, "shopping-list"); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	got, err := db.GetItem("item-1")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.Status != models.ItemStatusRouted {
		t.Errorf("status = %q, want routed", got.Status)
	}
	if got.RoutedTo != "shopping-list" {
		t.Errorf("routed_to = %q, want shopping-list", got.RoutedTo)
	}

	if err := db.FinalizeItem("missing", models.ItemStatusFailed, ""); err != ErrNotFound {
		t.Errorf("finalize missing item error = %v, want ErrNotFound", err)
	}
}

func TestReclassifyItemKeepsConfidence(t *testing.T) {
	db := testDB(t)

	item := newTestItem("item-1", models.CategoryShopping)
	if err := db.CreateItem(item); err != nil {
		t.Fatalf("create item: %v", err)
	}

	if err := db.ReclassifyItem("item-1", models.CategoryReminder); err != nil {
		t.Fatalf("reclassify: %v", err)
	}

	got, err := db.GetItem("item-1")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.Category != models.CategoryReminder {
		t.Errorf("category = %q, want reminder", got.Category)
	}
	if got.Confidence != 0.9 {
		t.Errorf("confidence = %v, want unchanged 0.9", got.Confidence)
	}
}
