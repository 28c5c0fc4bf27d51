package cache

import (
	"context"
	"testing"
	"time"
)

func TestLRURoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(8, time.Minute)

	if err := c.Set(ctx, "k1", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := c.Get(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(got) != "v1" {
		t.Errorf("Get = %q, want v1", got)
	}

	if _, ok, _ := c.Get(ctx, "missing"); ok {
		t.Error("missing key reported present")
	}
}

func TestLRUSetCopiesValue(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(8, time.Minute)

	buf := []byte("original")
	c.Set(ctx, "k", buf)
	buf[0] = 'X'

	got, _, _ := c.Get(ctx, "k")
	if string(got) != "original" {
		t.Errorf("cached value mutated through caller buffer: %q", got)
	}
}

func TestLRUDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(8, time.Minute)

	c.Set(ctx, "a", []byte("1"))
	c.Set(ctx, "b", []byte("2"))

	c.Delete(ctx, "a")
	if _, ok, _ := c.Get(ctx, "a"); ok {
		t.Error("deleted key still present")
	}

	c.Clear(ctx)
	if n, _ := c.Len(ctx); n != 0 {
		t.Errorf("Len after Clear = %d", n)
	}
}

func TestLRUExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(8, 10*time.Millisecond)

	c.Set(ctx, "k", []byte("v"))
	time.Sleep(30 * time.Millisecond)

	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("entry survived past TTL")
	}
}
