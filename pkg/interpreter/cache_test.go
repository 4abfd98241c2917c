package interpreter

import "testing"

func TestMemoCacheKeyVariesWithSessionState(t *testing.T) {
	sessA := NewSession()
	sessA.vars["x"] = float64(1)
	sessB := NewSession()
	sessB.vars["x"] = float64(2)

	if Key("return x", sessA) == Key("return x", sessB) {
		t.Fatalf("expected different keys for different session state")
	}
	if Key("return x", sessA) != Key("return x", sessA) {
		t.Fatalf("expected stable key for identical session state")
	}
}

func TestMemoCacheGetPut(t *testing.T) {
	cache, err := NewMemoCache(4)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	key := Key("return 1", NewSession())
	if _, ok := cache.Get(key); ok {
		t.Fatalf("expected miss on empty cache")
	}
	want := &Result{Value: float64(1)}
	cache.Put(key, want)
	got, ok := cache.Get(key)
	if !ok || got != want {
		t.Fatalf("expected cached result, got %v ok=%v", got, ok)
	}
}
