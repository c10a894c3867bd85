package ids

import "testing"

func TestNewIsSortableAndValid(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		if next <= prev {
			t.Fatalf("ids not monotonic: %s <= %s", next, prev)
		}
		if !Valid(next) {
			t.Fatalf("generated id %q reported invalid", next)
		}
		prev = next
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	for _, id := range []string{"", "  ", "not-an-id", "01ARZ3NDEKTSV4RRFFQ69G5FA"} {
		if Valid(id) {
			t.Fatalf("Valid(%q) = true", id)
		}
	}
}
