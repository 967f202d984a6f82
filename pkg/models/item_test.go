package models

import "testing"

func TestCategoryValid(t *testing.T) {
	tests := []struct {
		name     string
		category Category
		want     bool
	}{
		{"shopping", CategoryShopping, true},
		{"media", CategoryMedia, true},
		{"smart_home", CategorySmartHome, true},
		{"reminder", CategoryReminder, true},
		{"calendar", CategoryCalendar, true},
		{"work", CategoryWork, true},
		{"notes", CategoryNotes, true},
		{"personal", CategoryPersonal, true},
		{"empty", Category(""), false},
		{"unknown", Category("unknown"), false},
		{"uppercase", Category("Shopping"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.category.Valid(); got != tt.want {
				t.Errorf("Category(%q).Valid() = %v, want %v", tt.category, got, tt.want)
			}
		})
	}
}

func TestItemStatusTerminal(t *testing.T) {
	tests := []struct {
		status ItemStatus
		want   bool
	}{
		{ItemStatusPending, false},
		{ItemStatusConfirmed, false},
		{ItemStatusRouted, true},
		{ItemStatusFailed, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("ItemStatus(%q).Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestPayloadString(t *testing.T) {
	p := Payload{"title": "Inception", "count": 3}

	if got := p.String("title"); got != "Inception" {
		t.Errorf("String(title) = %q, want %q", got, "Inception")
	}
	if got := p.String("count"); got != "" {
		t.Errorf("String(count) = %q, want empty for non-string value", got)
	}
	if got := p.String("missing"); got != "" {
		t.Errorf("String(missing) = %q, want empty", got)
	}

	var nilPayload Payload
	if got := nilPayload.String("any"); got != "" {
		t.Errorf("nil payload String() = %q, want empty", got)
	}
}

func TestPayloadStrings(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		key     string
		want    []string
	}{
		{"string slice", Payload{"items": []string{"milk", "eggs"}}, "items", []string{"milk", "eggs"}},
		{"any slice from json", Payload{"items": []any{"milk", "eggs"}}, "items", []string{"milk", "eggs"}},
		{"mixed any slice keeps strings", Payload{"items": []any{"milk", 2}}, "items", []string{"milk"}},
		{"missing key", Payload{}, "items", nil},
		{"wrong type", Payload{"items": "milk"}, "items", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.payload.Strings(tt.key)
			if len(got) != len(tt.want) {
				t.Fatalf("Strings(%q) = %v, want %v", tt.key, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Strings(%q)[%d] = %q, want %q", tt.key, i, got[i], tt.want[i])
				}
			}
		})
	}
}
