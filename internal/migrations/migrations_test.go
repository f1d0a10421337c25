package migrations

import (
	"sort"
	"strings"
	"testing"
)

func TestAllReturnsOrderedSchema(t *testing.T) {
	all, err := All()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(all) == 0 {
		t.Fatalf("no migrations embedded")
	}

	names := make([]string, 0, len(all))
	for _, m := range all {
		if m.SQL == "" {
			t.Fatalf("migration %s is empty", m.Name)
		}
		names = append(names, m.Name)
	}
	if !sort.StringsAreSorted(names) {
		t.Fatalf("migrations out of order: %v", names)
	}

	if !strings.Contains(all[0].SQL, "CREATE TABLE IF NOT EXISTS orders") {
		t.Fatalf("first migration does not create the orders table")
	}
}
