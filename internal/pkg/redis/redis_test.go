package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := Connect(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestGetMissing(t *testing.T) {
	c, _ := newTestClient(t)
	_, ok, err := c.Get(context.Background(), "nope")
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestDelMatch(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	for _, k := range []string{"qc:tables:words:list", "qc:tables:words:detail:1", "qc:tables:sessions:list"} {
		if err := c.Set(ctx, k, "x", 0); err != nil {
			t.Fatal(err)
		}
	}

	n, err := c.DelMatch(ctx, "qc:tables:words:*")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("deleted %d keys, want 2", n)
	}
	if !mr.Exists("qc:tables:sessions:list") {
		t.Fatal("unrelated key removed")
	}
}

func TestConnectInvalidURL(t *testing.T) {
	if _, err := Connect(context.Background(), "::not a url"); err == nil {
		t.Fatal("expected error")
	}
}
