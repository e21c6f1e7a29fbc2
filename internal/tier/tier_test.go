package tier

import "testing"

func TestParse(t *testing.T) {
	got, err := Parse(" pro ")
	if err != nil {
		t.Fatalf("parse pro: %v", err)
	}
	if got != Pro {
		t.Fatalf("got=%v want=%v", got, Pro)
	}
	if _, err := Parse("GOLD"); err == nil {
		t.Fatalf("expected error for unknown tier")
	}
}

func TestLevelOrdering(t *testing.T) {
	if !(Free.Level() < Pro.Level() && Pro.Level() < Max.Level()) {
		t.Fatalf("tier levels not ordered: free=%d pro=%d max=%d", Free.Level(), Pro.Level(), Max.Level())
	}
	if Tier("GOLD").Level() != -1 {
		t.Fatalf("unknown tier should have level -1")
	}
}

func TestAtOrAbove(t *testing.T) {
	got := AtOrAbove(Pro)
	if len(got) != 2 || got[0] != Pro || got[1] != Max {
		t.Fatalf("AtOrAbove(Pro)=%v want=[PRO MAX]", got)
	}
	if n := len(AtOrAbove(Free)); n != 3 {
		t.Fatalf("AtOrAbove(Free) len=%d want=3", n)
	}
}
