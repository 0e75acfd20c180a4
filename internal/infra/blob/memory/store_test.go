package memory

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"rankmine/internal/blob/core"
)

func TestPutGetDeleteLifecycle(t *testing.T) {
	store := New()
	store.SetNowFunc(func() time.Time { return time.Unix(1000, 0).UTC() })
	ctx := context.Background()

	info, err := store.Put(ctx, "comp-1/asset-1", strings.NewReader("data"), core.PutOptions{ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.ContentType != "text/plain" || info.Size != 4 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if !info.LastModified.Equal(time.Unix(1000, 0).UTC()) {
		t.Fatalf("unexpected timestamp: %v", info.LastModified)
	}

	_, rc, err := store.Get(ctx, "comp-1/asset-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "data" {
		t.Fatalf("payload mismatch: %q", data)
	}

	ok, err := store.Delete(ctx, "comp-1/asset-1")
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if _, err := store.Head(ctx, "comp-1/asset-1"); err == nil {
		t.Fatal("expected head to fail after delete")
	}
	if ok, _ := store.Delete(ctx, "comp-1/asset-1"); ok {
		t.Fatal("second delete should report false")
	}
}

func TestPutIsCreateOnly(t *testing.T) {
	store := New()
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", strings.NewReader("one"), core.PutOptions{}); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if _, err := store.Put(ctx, "k", strings.NewReader("two"), core.PutOptions{}); err == nil {
		t.Fatal("expected create-only violation")
	}
}

func TestListOrdersByKey(t *testing.T) {
	store := New()
	ctx := context.Background()
	for _, key := range []string{"comp-1/b", "comp-1/a", "comp-2/z"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "comp-1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "comp-1/a" || infos[1].Key != "comp-1/b" {
		t.Fatalf("unexpected listing: %+v", infos)
	}
}
