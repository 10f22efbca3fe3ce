package scope

import "testing"

func TestBeginInvalidatesPreviousToken(t *testing.T) {
	var g Guard
	a := g.Begin("conv-a")
	if !a.Current() {
		t.Fatal("fresh token should be current")
	}

	b := g.Begin("conv-b")
	if a.Current() {
		t.Error("token for conv-a still current after switching to conv-b")
	}
	if !b.Current() {
		t.Error("token for conv-b should be current")
	}
	if g.ID() != "conv-b" {
		t.Errorf("ID = %q, want conv-b", g.ID())
	}
}

func TestRebeginSameIDStillInvalidates(t *testing.T) {
	var g Guard
	first := g.Begin("u1")
	second := g.Begin("u1")
	if first.Current() {
		t.Error("re-initializing the same scope must invalidate older work")
	}
	if !second.Current() {
		t.Error("latest token should be current")
	}
}

func TestEnd(t *testing.T) {
	var g Guard
	tok := g.Begin("x")
	g.End()
	if tok.Current() {
		t.Error("token current after End")
	}
	if g.ID() != "" {
		t.Errorf("ID = %q after End, want empty", g.ID())
	}
}

func TestZeroToken(t *testing.T) {
	var tok Token
	if tok.Current() {
		t.Error("zero token must never be current")
	}
}
