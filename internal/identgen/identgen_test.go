package identgen

import "testing"

func TestFreshReturnsBaseWhenUnused(t *testing.T) {
	c := New(nil)
	got := c.Fresh("x")
	if got != "x" {
		t.Error("expected x, got", got)
	}
}

func TestFreshDisambiguatesOnConflict(t *testing.T) {
	c := New([]string{"x"})
	got := c.Fresh("x")
	if got != "x_1" {
		t.Error("expected x_1, got", got)
	}
	got = c.Fresh("x")
	if got != "x_2" {
		t.Error("expected x_2, got", got)
	}
}

func TestClaimReservesNameForLaterFresh(t *testing.T) {
	c := New(nil)
	c.Claim("y")
	got := c.Fresh("y")
	if got != "y_1" {
		t.Error("expected y_1, got", got)
	}
}

func TestMemoryIdentIsDeterministicAndDisambiguated(t *testing.T) {
	c := New(nil)
	first := c.MemoryIdent("Counter", "o", "c1")
	if first != "memCounter_o_c1" {
		t.Error("expected memCounter_o_c1, got", first)
	}
	c2 := New([]string{"memCounter_o_c1"})
	second := c2.MemoryIdent("Counter", "o", "c1")
	if second != "memCounter_o_c1_1" {
		t.Error("expected memCounter_o_c1_1, got", second)
	}
}
