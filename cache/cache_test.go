package cache

import (
	"testing"
	"time"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := NewInMemory()
	if err != nil {
		t.Fatalf("NewInMemory: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSetGetRoundTrip(t *testing.T) {
	c := newTestCache(t)

	if err := c.Set("k", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, found := c.Get("k")
	if !found || string(got) != "v" {
		t.Errorf("Get = %q, %v; want \"v\", true", got, found)
	}
}

func TestGetMissing(t *testing.T) {
	c := newTestCache(t)
	if _, found := c.Get("absent"); found {
		t.Error("Get reported a missing key as found")
	}
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t)

	if err := c.SetTTL("ephemeral", []byte("x"), 50*time.Millisecond); err != nil {
		t.Fatalf("SetTTL: %v", err)
	}
	if _, found := c.Get("ephemeral"); !found {
		t.Fatal("entry missing before TTL elapsed")
	}

	time.Sleep(120 * time.Millisecond)
	if _, found := c.Get("ephemeral"); found {
		t.Error("entry still readable after TTL elapsed")
	}
}

func TestDelete(t *testing.T) {
	c := newTestCache(t)

	if err := c.Set("k", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Delete("k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, found := c.Get("k"); found {
		t.Error("key readable after delete")
	}

	if err := c.Delete("never-existed"); err != nil {
		t.Errorf("Delete of missing key: %v", err)
	}
}

func TestGenerateKeyStability(t *testing.T) {
	a := GenerateKey("model", "what is due?")
	b := GenerateKey("model", "what is due?")
	if a != b {
		t.Error("same parts produced different keys")
	}
	if a == GenerateKey("model", "what is due") {
		t.Error("different parts collided")
	}
	// Joining must not conflate part boundaries.
	if GenerateKey("ab", "c") == GenerateKey("a", "bc") {
		t.Error("part boundary ambiguity")
	}
}

func TestOnDiskPersistence(t *testing.T) {
	dir := t.TempDir()

	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Set("persisted", []byte("survives reopen")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c2, err := New(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c2.Close()

	got, found := c2.Get("persisted")
	if !found || string(got) != "survives reopen" {
		t.Errorf("after reopen: %q, %v", got, found)
	}
}
