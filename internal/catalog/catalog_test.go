package catalog

import "testing"

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	if c.Len() != 7 {
		t.Fatalf("expected 7 services, got %d", c.Len())
	}

	all := c.All()
	if all[0].Code != "1" || all[0].Label != "Penambalan estetik" {
		t.Errorf("unexpected first service: %+v", all[0])
	}
	if all[6].Code != "7" || all[6].Label != "Veneer" {
		t.Errorf("unexpected last service: %+v", all[6])
	}
}

func TestLookup(t *testing.T) {
	c := Default()

	tests := []struct {
		code      string
		wantOK    bool
		wantLabel string
	}{
		{"3", true, "Cabut gigi anak"},
		{"7", true, "Veneer"},
		{"0", false, ""},
		{"8", false, ""},
		{"", false, ""},
		{"implan", false, ""},
	}

	for _, tt := range tests {
		s, ok := c.Lookup(tt.code)
		if ok != tt.wantOK {
			t.Errorf("Lookup(%q) ok = %v, want %v", tt.code, ok, tt.wantOK)
			continue
		}
		if ok && s.Label != tt.wantLabel {
			t.Errorf("Lookup(%q) label = %q, want %q", tt.code, s.Label, tt.wantLabel)
		}
	}
}

func TestAllReturnsCopy(t *testing.T) {
	c := Default()
	all := c.All()
	all[0].Label = "changed"

	if s, _ := c.Lookup("1"); s.Label == "changed" {
		t.Error("mutating All() result leaked into catalog")
	}
	if c.All()[0].Label == "changed" {
		t.Error("catalog order slice was mutated")
	}
}

func TestNewOrdersNumerically(t *testing.T) {
	c := New([]Service{
		{Code: "10", Label: "ten"},
		{Code: "2", Label: "two"},
		{Code: "1", Label: "one"},
		{Code: "2", Label: "duplicate"},
	})

	labels := c.Labels()
	want := []string{"one", "two", "ten"}
	if len(labels) != len(want) {
		t.Fatalf("expected %d labels, got %v", len(want), labels)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("label %d = %q, want %q", i, labels[i], want[i])
		}
	}
}
