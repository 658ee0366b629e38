package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// runKVContract exercises the behaviour every KV backend must share.
func runKVContract(t *testing.T, open func(t *testing.T) KV) {
	t.Helper()

	t.Run("GetMissingReturnsNil", func(t *testing.T) {
		kv := open(t)
		rec, err := kv.Get(context.Background(), "sources", "core@1.0.0")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if rec != nil {
			t.Errorf("expected nil record, got %+v", rec)
		}
	})

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		kv := open(t)
		ctx := context.Background()
		ts := time.UnixMilli(1700000000000).UTC()
		in := &Record{Key: "core@1.0.0", Index: "core", Value: []byte(`{"id":"core"}`), UpdatedAt: ts}
		if err := kv.Put(ctx, "sources", in); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := kv.Get(ctx, "sources", "core@1.0.0")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got == nil {
			t.Fatal("record not found after Put")
		}
		if got.Key != in.Key || got.Index != in.Index || string(got.Value) != string(in.Value) {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, in)
		}
		if !got.UpdatedAt.Equal(ts) {
			t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, ts)
		}
	})

	t.Run("PutUpserts", func(t *testing.T) {
		kv := open(t)
		ctx := context.Background()
		mustPut(t, kv, "characters", &Record{Key: "c1", Index: "core", Value: []byte("v1")})
		mustPut(t, kv, "characters", &Record{Key: "c1", Index: "other", Value: []byte("v2")})

		got, err := kv.Get(ctx, "characters", "c1")
		if err != nil || got == nil {
			t.Fatalf("Get failed: %v (record %v)", err, got)
		}
		if string(got.Value) != "v2" || got.Index != "other" {
			t.Errorf("upsert did not replace: %+v", got)
		}

		stale, err := kv.ByIndex(ctx, "characters", "core")
		if err != nil {
			t.Fatalf("ByIndex failed: %v", err)
		}
		if len(stale) != 0 {
			t.Errorf("old index still matches %d records", len(stale))
		}
	})

	t.Run("CollectionsAreIsolated", func(t *testing.T) {
		kv := open(t)
		mustPut(t, kv, "sources", &Record{Key: "k", Value: []byte("a")})
		got, err := kv.Get(context.Background(), "characters", "k")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != nil {
			t.Errorf("record leaked across collections: %+v", got)
		}
	})

	t.Run("AllOrderedByKey", func(t *testing.T) {
		kv := open(t)
		for _, k := range []string{"b@1.0.0", "a@2.0.0", "a@1.0.0"} {
			mustPut(t, kv, "sources", &Record{Key: k, Value: []byte(k)})
		}
		all, err := kv.All(context.Background(), "sources")
		if err != nil {
			t.Fatalf("All failed: %v", err)
		}
		want := []string{"a@1.0.0", "a@2.0.0", "b@1.0.0"}
		if len(all) != len(want) {
			t.Fatalf("All returned %d records, want %d", len(all), len(want))
		}
		for i, rec := range all {
			if rec.Key != want[i] {
				t.Errorf("All[%d] = %s, want %s", i, rec.Key, want[i])
			}
		}
	})

	t.Run("ByIndex", func(t *testing.T) {
		kv := open(t)
		mustPut(t, kv, "source_metadata", &Record{Key: "core@1.0.0", Index: "core", Value: []byte("1")})
		mustPut(t, kv, "source_metadata", &Record{Key: "core@2.0.0", Index: "core", Value: []byte("2")})
		mustPut(t, kv, "source_metadata", &Record{Key: "extra@1.0.0", Index: "extra", Value: []byte("3")})

		recs, err := kv.ByIndex(context.Background(), "source_metadata", "core")
		if err != nil {
			t.Fatalf("ByIndex failed: %v", err)
		}
		if len(recs) != 2 || recs[0].Key != "core@1.0.0" || recs[1].Key != "core@2.0.0" {
			t.Errorf("ByIndex returned %v", keysOf(recs))
		}

		none, err := kv.ByIndex(context.Background(), "source_metadata", "missing")
		if err != nil {
			t.Fatalf("ByIndex failed: %v", err)
		}
		if len(none) != 0 {
			t.Errorf("expected no records, got %v", keysOf(none))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		kv := open(t)
		ctx := context.Background()
		mustPut(t, kv, "characters", &Record{Key: "c1", Index: "core", Value: []byte("x")})

		deleted, err := kv.Delete(ctx, "characters", "c1")
		if err != nil || !deleted {
			t.Fatalf("Delete = %v, %v; want true, nil", deleted, err)
		}
		deleted, err = kv.Delete(ctx, "characters", "c1")
		if err != nil || deleted {
			t.Fatalf("second Delete = %v, %v; want false, nil", deleted, err)
		}
		recs, err := kv.ByIndex(ctx, "characters", "core")
		if err != nil {
			t.Fatalf("ByIndex failed: %v", err)
		}
		if len(recs) != 0 {
			t.Errorf("deleted record still indexed: %v", keysOf(recs))
		}
	})

	t.Run("RejectsEmptyArguments", func(t *testing.T) {
		kv := open(t)
		ctx := context.Background()
		if _, err := kv.Get(ctx, "", "k"); err == nil {
			t.Error("Get with empty collection succeeded")
		}
		if err := kv.Put(ctx, "sources", &Record{}); err == nil {
			t.Error("Put with empty key succeeded")
		}
		if err := kv.Put(ctx, "sources", nil); err == nil {
			t.Error("Put with nil record succeeded")
		}
	})

	t.Run("ReturnedRecordsAreCopies", func(t *testing.T) {
		kv := open(t)
		ctx := context.Background()
		value := []byte("original")
		mustPut(t, kv, "sources", &Record{Key: "k", Value: value})
		value[0] = 'X'

		got, err := kv.Get(ctx, "sources", "k")
		if err != nil || got == nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got.Value) != "original" {
			t.Errorf("stored value aliased caller slice: %q", got.Value)
		}
	})
}

func runKVConcurrency(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := fmt.Sprintf("k%02d", i)
			if err := kv.Put(ctx, "sources", &Record{Key: k, Index: "x", Value: []byte(k)}); err != nil {
				t.Errorf("Put %s failed: %v", k, err)
			}
			if _, err := kv.Get(ctx, "sources", k); err != nil {
				t.Errorf("Get %s failed: %v", k, err)
			}
		}(i)
	}
	wg.Wait()

	all, err := kv.ByIndex(ctx, "sources", "x")
	if err != nil {
		t.Fatalf("ByIndex failed: %v", err)
	}
	if len(all) != 20 {
		t.Errorf("expected 20 records, got %d", len(all))
	}
}

func mustPut(t *testing.T, kv KV, collection string, rec *Record) {
	t.Helper()
	if err := kv.Put(context.Background(), collection, rec); err != nil {
		t.Fatalf("Put %s/%s failed: %v", collection, rec.Key, err)
	}
}

func keysOf(recs []*Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Key)
	}
	return out
}
