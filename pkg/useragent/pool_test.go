package useragent

import (
	"net/http"
	"sync"
	"testing"
)

func TestPool_GetSequential(t *testing.T) {
	p := NewPool([]string{"A", "B", "C"})

	for i, want := range []string{"A", "B", "C", "A"} {
		if got := p.GetSequential(); got != want {
			t.Errorf("call %d: expected %s, got %s", i, want, got)
		}
	}
}

func TestPool_Default(t *testing.T) {
	p := NewPool(nil)
	if len(p.GetAll()) != len(DefaultPool) {
		t.Errorf("expected pool length %d, got %d", len(DefaultPool), len(p.GetAll()))
	}

	// blank entries only also fall back
	p = NewPool([]string{"", ""})
	if len(p.GetAll()) != len(DefaultPool) {
		t.Errorf("expected blank list to fall back to defaults, got %d entries", len(p.GetAll()))
	}
}

func TestPool_GetRandom(t *testing.T) {
	p := NewPool([]string{"A", "B"})

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		got := p.GetRandom()
		if got != "A" && got != "B" {
			t.Fatalf("unexpected UA: %s", got)
		}
		seen[got] = true
	}
	if !seen["A"] || !seen["B"] {
		t.Errorf("expected both A and B to be chosen, seen: %v", seen)
	}
}

func TestPool_Assign(t *testing.T) {
	p := NewPool([]string{"only-ua"})

	h := http.Header{}
	if !p.Assign(h) {
		t.Fatal("expected Assign to set a User-Agent on an empty header")
	}
	if got := h.Get("User-Agent"); got != "only-ua" {
		t.Errorf("expected only-ua, got %q", got)
	}

	h = http.Header{}
	h.Set("User-Agent", "caller-set")
	if p.Assign(h) {
		t.Error("expected Assign to keep an existing User-Agent")
	}
	if got := h.Get("User-Agent"); got != "caller-set" {
		t.Errorf("expected caller-set to survive, got %q", got)
	}

	if p.Assign(nil) {
		t.Error("expected Assign on nil header to be a no-op")
	}
}

func TestPool_Concurrent(t *testing.T) {
	uas := []string{"X", "Y", "Z"}
	p := NewPool(uas)

	var wg sync.WaitGroup
	const routines = 50
	const iterations = 600

	results := make(chan string, routines*iterations)
	for i := 0; i < routines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				results <- p.GetSequential()
			}
		}()
	}
	wg.Wait()
	close(results)

	counts := map[string]int{}
	for r := range results {
		counts[r]++
	}
	want := routines * iterations / len(uas)
	for _, ua := range uas {
		if counts[ua] != want {
			t.Errorf("expected %d hits for %s, got %d", want, ua, counts[ua])
		}
	}
}

func TestPool_Empty(t *testing.T) {
	p := &Pool{uas: []string{}}

	if got := p.GetSequential(); got != "" {
		t.Errorf("expected empty string on empty sequential, got %s", got)
	}
	if got := p.GetRandom(); got != "" {
		t.Errorf("expected empty string on empty random, got %s", got)
	}
	if p.Assign(http.Header{}) {
		t.Error("expected Assign on empty pool to be a no-op")
	}
}
