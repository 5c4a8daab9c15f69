package api

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"tinshift/internal/cache"
	"tinshift/internal/registry"
	"tinshift/internal/tinshift"
)

const movedDoc = `{
  "file_type": "triangulation_file",
  "format_version": "1.0",
  "name": "shift",
  "transformed_components": ["horizontal"],
  "vertices_columns": ["source_x", "source_y", "target_x", "target_y"],
  "triangles_columns": ["idx_vertex1", "idx_vertex2", "idx_vertex3"],
  "vertices": [[0, 0, 1100, 0], [10, 0, 1110, 0], [0, 10, 1100, 10]],
  "triangles": [[0, 1, 2]]
}`

func testRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return mr, rc
}

func TestTransformQueryRedisTier(t *testing.T) {
	_, rc := testRedis(t)
	ctx := context.Background()
	reg := testRegistry(t)
	p := tinshift.Point{X: 1, Y: 1}

	res, src, err := TransformQuery(ctx, rc, nil, reg, "shift", tinshift.Forward, p, time.Minute)
	if err != nil || src != "" || !res.Found || !near(res.Point.X, 101) {
		t.Fatalf("first query = %+v %q %v", res, src, err)
	}
	lru := cache.NewLRU(16, 60)
	res, src, err = TransformQuery(ctx, rc, lru, reg, "shift", tinshift.Forward, p, time.Minute)
	if err != nil || src != sourceRedis || !near(res.Point.X, 101) {
		t.Fatalf("second query = %+v %q %v", res, src, err)
	}
	if lru.Len() != 1 {
		t.Errorf("redis hit must fill the lru, len %d", lru.Len())
	}
	_, src, _ = TransformQuery(ctx, rc, lru, reg, "shift", tinshift.Forward, p, time.Minute)
	if src != sourceLRU {
		t.Errorf("third query source %q", src)
	}
}

func TestTransformQueryAfterReloadIgnoresOldResults(t *testing.T) {
	_, rc := testRedis(t)
	ctx := context.Background()
	reg := testRegistry(t)
	lru := cache.NewLRU(16, 60)
	p := tinshift.Point{X: 1, Y: 1}

	old, _, err := TransformQuery(ctx, rc, lru, reg, "shift", tinshift.Forward, p, time.Hour)
	if err != nil || !near(old.Point.X, 101) {
		t.Fatalf("before reload = %+v %v", old, err)
	}
	oldEv, _ := reg.Get("shift")
	oldKey := cache.Key("shift", oldEv.Dataset().Revision(), tinshift.Forward, p)

	ds, err := tinshift.ParseJSON([]byte(movedDoc))
	if err != nil {
		t.Fatal(err)
	}
	reg.Replace(map[string]*registry.Entry{
		"shift": {Name: "shift", Source: "test", Eval: tinshift.NewEvaluator(ds)},
	})
	lru.Purge()
	// 重载前已在执行的请求在 Purge 之后回写旧结果
	lru.Set(oldKey, old)

	res, src, err := TransformQuery(ctx, rc, lru, reg, "shift", tinshift.Forward, p, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if src != "" || !near(res.Point.X, 1101) || !near(res.Point.Y, 1) {
		t.Errorf("after reload = %+v (source %q), want (1101,1) computed", res.Point, src)
	}
	res, src, _ = TransformQuery(ctx, rc, nil, reg, "shift", tinshift.Forward, p, time.Hour)
	if src != sourceRedis || !near(res.Point.X, 1101) {
		t.Errorf("redis must now hold the new result: %+v %q", res.Point, src)
	}
}

func TestTransformQueryCachesMisses(t *testing.T) {
	mr, rc := testRedis(t)
	ctx := context.Background()
	reg := testRegistry(t)
	p := tinshift.Point{X: 50, Y: 50}
	if res, _, _ := TransformQuery(ctx, rc, nil, reg, "shift", tinshift.Forward, p, 0); res.Found {
		t.Fatal("point is outside the mesh")
	}
	ev, _ := reg.Get("shift")
	key := cache.Key("shift", ev.Dataset().Revision(), tinshift.Forward, p)
	if ttl := mr.TTL(key); ttl != time.Hour {
		t.Errorf("default ttl = %v", ttl)
	}
	res, src, _ := TransformQuery(ctx, rc, nil, reg, "shift", tinshift.Forward, p, 0)
	if src != sourceRedis || res.Found {
		t.Errorf("cached miss = %+v %q", res, src)
	}
}

func TestBloomCheckAndSet(t *testing.T) {
	mr, rc := testRedis(t)
	ctx := context.Background()
	key := "tinshift:visitors:shift:20261017"
	pos := bloomPositions([]byte("203.0.113.1"), visitorBloomBits, visitorBloomHashes)

	first, err := bloomCheckAndSet(ctx, rc, key, pos, 48*time.Hour)
	if err != nil || !first {
		t.Fatalf("first = %v %v", first, err)
	}
	again, err := bloomCheckAndSet(ctx, rc, key, pos, 48*time.Hour)
	if err != nil || again {
		t.Errorf("second = %v %v", again, err)
	}
	if ttl := mr.TTL(key); ttl != 48*time.Hour {
		t.Errorf("ttl = %v", ttl)
	}
	other := bloomPositions([]byte("198.51.100.7"), visitorBloomBits, visitorBloomHashes)
	if ok, _ := bloomCheckAndSet(ctx, rc, key, other, 48*time.Hour); !ok {
		t.Error("different visitor is new")
	}
}

func TestBloomCheckAndSetConcurrentFirstVisit(t *testing.T) {
	_, rc := testRedis(t)
	ctx := context.Background()
	key := "tinshift:visitors:shift:20261018"
	pos := bloomPositions([]byte("192.0.2.44"), visitorBloomBits, visitorBloomHashes)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		firsts int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := bloomCheckAndSet(ctx, rc, key, pos, time.Hour)
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if firsts != 1 {
		t.Errorf("expected exactly one first visit, got %d", firsts)
	}
}

func TestFirstVisitPerDay(t *testing.T) {
	_, rc := testRedis(t)
	ctx := context.Background()
	day := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	if !firstVisit(ctx, rc, "shift", "203.0.113.9", day) {
		t.Error("first query of the day counts")
	}
	if firstVisit(ctx, rc, "shift", "203.0.113.9", day) {
		t.Error("repeat query does not count")
	}
	if !firstVisit(ctx, rc, "shift", "203.0.113.9", day.Add(24*time.Hour)) {
		t.Error("next day counts again")
	}
	if firstVisit(ctx, rc, "shift", "", day) {
		t.Error("unknown visitor never counts")
	}
}
