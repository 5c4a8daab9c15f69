package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"tinshift/internal/cache"
	"tinshift/internal/registry"
	"tinshift/internal/store"
	"tinshift/internal/tinshift"
)

const shiftDoc = `{
  "file_type": "triangulation_file",
  "format_version": "1.0",
  "name": "shift",
  "transformed_components": ["horizontal"],
  "vertices_columns": ["source_x", "source_y", "target_x", "target_y"],
  "triangles_columns": ["idx_vertex1", "idx_vertex2", "idx_vertex3"],
  "vertices": [[0, 0, 100, 0], [10, 0, 110, 0], [0, 10, 100, 10]],
  "triangles": [[0, 1, 2]]
}`

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	ds, err := tinshift.ParseJSON([]byte(shiftDoc))
	if err != nil {
		t.Fatal(err)
	}
	reg := registry.New()
	reg.Replace(map[string]*registry.Entry{
		"shift": {Name: "shift", Source: "test", Eval: tinshift.NewEvaluator(ds)},
	})
	return reg
}

type statsCall struct {
	dataset, direction string
	queries, misses    int
}

type fakeStats struct {
	mu    sync.Mutex
	calls []statsCall
}

func (f *fakeStats) IncrStats(ctx context.Context, dataset, direction string, queries, misses int, visitor bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, statsCall{dataset, direction, queries, misses})
	return nil
}

func (f *fakeStats) GetTotals(ctx context.Context, dataset string) (*store.Totals, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var t store.Totals
	for _, c := range f.calls {
		if dataset == "" || c.dataset == dataset {
			t.Total += int64(c.queries)
			t.Misses += int64(c.misses)
		}
	}
	t.Today = t.Total
	return &t, nil
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestTransformGet(t *testing.T) {
	mux := BuildRoutes(testRegistry(t), nil, nil, nil)
	rec := do(t, mux, http.MethodGet, "/transform?dataset=shift&x=2&y=2&z=7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("content-type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("content-type %q", ct)
	}
	var out transformResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if !out.Found || out.Output == nil || !near(out.Output.X, 102) || !near(out.Output.Y, 2) || out.Output.Z != 7 {
		t.Errorf("unexpected response %s", rec.Body)
	}
	if out.Direction != "forward" || out.Input.X != 2 {
		t.Errorf("echo fields wrong: %+v", out)
	}
}

func TestTransformGetInverse(t *testing.T) {
	mux := BuildRoutes(testRegistry(t), nil, nil, nil)
	rec := do(t, mux, http.MethodGet, "/transform?dataset=shift&direction=inverse&x=102&y=2", "")
	var out transformResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if !out.Found || !near(out.Output.X, 2) || !near(out.Output.Y, 2) {
		t.Errorf("unexpected response %s", rec.Body)
	}
}

func TestTransformOutsideMesh(t *testing.T) {
	mux := BuildRoutes(testRegistry(t), nil, nil, nil)
	rec := do(t, mux, http.MethodGet, "/transform?dataset=shift&x=50&y=50", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"output":null`) || !strings.Contains(rec.Body.String(), `"found":false`) {
		t.Errorf("unexpected body %s", rec.Body)
	}
}

func TestTransformBadRequests(t *testing.T) {
	mux := BuildRoutes(testRegistry(t), nil, nil, nil)
	cases := []struct {
		target string
		status int
	}{
		{"/transform?x=1&y=1", http.StatusBadRequest},
		{"/transform?dataset=nope&x=1&y=1", http.StatusNotFound},
		{"/transform?dataset=shift&direction=sideways&x=1&y=1", http.StatusBadRequest},
		{"/transform?dataset=shift&x=abc&y=1", http.StatusBadRequest},
		{"/transform?dataset=shift&x=1", http.StatusBadRequest},
		{"/transform?dataset=shift&x=NaN&y=1", http.StatusBadRequest},
		{"/transform?dataset=shift&x=1&y=1&z=Inf", http.StatusBadRequest},
	}
	for _, c := range cases {
		if rec := do(t, mux, http.MethodGet, c.target, ""); rec.Code != c.status {
			t.Errorf("%s: status %d, want %d (%s)", c.target, rec.Code, c.status, rec.Body)
		}
	}
	if rec := do(t, mux, http.MethodDelete, "/transform?dataset=shift", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE: status %d", rec.Code)
	}
}

func TestTransformUsesLRU(t *testing.T) {
	lru := cache.NewLRU(16, 60)
	mux := BuildRoutes(testRegistry(t), nil, nil, lru)
	first := do(t, mux, http.MethodGet, "/transform?dataset=shift&x=1&y=1", "")
	if strings.Contains(first.Body.String(), `"cached"`) {
		t.Errorf("first request should be computed: %s", first.Body)
	}
	second := do(t, mux, http.MethodGet, "/transform?dataset=shift&x=1&y=1", "")
	if !strings.Contains(second.Body.String(), `"cached":"lru"`) {
		t.Errorf("second request should hit the LRU: %s", second.Body)
	}
	if lru.Len() != 1 {
		t.Errorf("lru len %d", lru.Len())
	}
}

func TestTransformBatch(t *testing.T) {
	st := &fakeStats{}
	mux := BuildRoutes(testRegistry(t), st, nil, nil)
	rec := do(t, mux, http.MethodPost, "/transform?dataset=shift", `[[2,2],[50,50,1],[1,1,5]]`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	var out batchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Count != 3 || out.Found != 2 || len(out.Results) != 3 {
		t.Fatalf("unexpected %+v", out)
	}
	if out.Results[1] != nil {
		t.Error("outside point must be null")
	}
	if r := out.Results[2]; r == nil || !near(r[0], 101) || r[2] != 5 {
		t.Errorf("third result %v", r)
	}
	if len(st.calls) != 1 || st.calls[0] != (statsCall{"shift", "forward", 3, 1}) {
		t.Errorf("stats calls %+v", st.calls)
	}
}

func TestTransformBatchBadBody(t *testing.T) {
	mux := BuildRoutes(testRegistry(t), nil, nil, nil)
	for _, body := range []string{`{"x":1}`, `[[1]]`, `[[1,2,3,4]]`, `[["a","b"]]`, `not json`} {
		if rec := do(t, mux, http.MethodPost, "/transform?dataset=shift", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d", body, rec.Code)
		}
	}
	if rec := do(t, mux, http.MethodPost, "/transform?dataset=nope", `[[1,1]]`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown dataset: status %d", rec.Code)
	}
}

func TestDatasetsAndStats(t *testing.T) {
	st := &fakeStats{}
	mux := BuildRoutes(testRegistry(t), st, nil, nil)
	rec := do(t, mux, http.MethodGet, "/datasets", "")
	var list struct {
		Datasets []registry.Summary `json:"datasets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Datasets) != 1 || list.Datasets[0].Name != "shift" || list.Datasets[0].Info.Name != "shift" {
		t.Errorf("datasets %s", rec.Body)
	}
	if rec := do(t, mux, http.MethodGet, "/datasets?name=nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown name: status %d", rec.Code)
	}

	do(t, mux, http.MethodGet, "/transform?dataset=shift&x=1&y=1", "")
	do(t, mux, http.MethodGet, "/transform?dataset=shift&x=90&y=90", "")
	rec = do(t, mux, http.MethodGet, "/stats", "")
	var stats map[string]float64
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats["total"] != 2 || stats["misses"] != 1 || stats["datasets"] != 1 {
		t.Errorf("stats %s", rec.Body)
	}
}

func TestStatsWithoutStore(t *testing.T) {
	mux := BuildRoutes(testRegistry(t), nil, nil, nil)
	rec := do(t, mux, http.MethodGet, "/stats", "")
	if rec.Code != http.StatusOK || strings.Contains(rec.Body.String(), "total") {
		t.Errorf("stats without store: %d %s", rec.Code, rec.Body)
	}
}

func TestReloadHandler(t *testing.T) {
	calls := 0
	h := ReloadHandler("s3cret", func(ctx context.Context) (int, error) {
		calls++
		return 4, nil
	})
	req := httptest.NewRequest(http.MethodPost, "/reload", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden || calls != 0 {
		t.Errorf("missing token: %d calls=%d", rec.Code, calls)
	}
	req = httptest.NewRequest(http.MethodPost, "/reload", nil)
	req.Header.Set("x-admin-token", "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || calls != 1 || !strings.Contains(rec.Body.String(), `"datasets":4`) {
		t.Errorf("with token: %d %s", rec.Code, rec.Body)
	}

	open := ReloadHandler("", func(ctx context.Context) (int, error) { return 0, nil })
	req = httptest.NewRequest(http.MethodPost, "/reload", nil)
	rec = httptest.NewRecorder()
	open.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Error("empty configured token must disable reload")
	}

	failing := ReloadHandler("t", func(ctx context.Context) (int, error) { return 0, errors.New("boom") })
	req = httptest.NewRequest(http.MethodPost, "/reload", nil)
	req.Header.Set("x-admin-token", "t")
	rec = httptest.NewRecorder()
	failing.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("failing reload: %d", rec.Code)
	}
}

func TestTransformQueryUnknown(t *testing.T) {
	_, _, err := TransformQuery(context.Background(), nil, nil, testRegistry(t), "nope", tinshift.Forward, tinshift.Point{}, 0)
	if !errors.Is(err, ErrUnknownDataset) {
		t.Errorf("expected ErrUnknownDataset, got %v", err)
	}
}

func TestGetVisitorIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	if got := getVisitorIP(req); got != "10.0.0.9" {
		t.Errorf("remote addr: %s", got)
	}
	req.Header.Set("forwarded", `for="192.0.2.60";proto=http`)
	if got := getVisitorIP(req); got != "192.0.2.60" {
		t.Errorf("forwarded: %s", got)
	}
	req.Header.Set("x-forwarded-for", "203.0.113.1, 10.0.0.1")
	if got := getVisitorIP(req); got != "203.0.113.1" {
		t.Errorf("xff: %s", got)
	}
}

func TestBloomPositionsStable(t *testing.T) {
	a := bloomPositions([]byte("203.0.113.1"), visitorBloomBits, visitorBloomHashes)
	b := bloomPositions([]byte("203.0.113.1"), visitorBloomBits, visitorBloomHashes)
	if len(a) != visitorBloomHashes {
		t.Fatalf("expected %d positions", visitorBloomHashes)
	}
	for i := range a {
		if a[i] != b[i] || a[i] < 0 || a[i] >= visitorBloomBits {
			t.Errorf("position %d: %d vs %d", i, a[i], b[i])
		}
	}
	if firstVisit(context.Background(), nil, "shift", "203.0.113.1", time.Now()) {
		t.Error("without redis no visitor is counted")
	}
}
