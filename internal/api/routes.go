package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"

	"tinshift/internal/cache"
	"tinshift/internal/logger"
	"tinshift/internal/registry"
	"tinshift/internal/store"
	"tinshift/internal/tinshift"

	"github.com/redis/go-redis/v9"
)

// 批量请求上限
const (
	maxBatchBytes  = 16 << 20
	maxBatchPoints = 100000
)

// StatsStore：查询统计持久化（*store.Store 实现）；为 nil 时不记录
type StatsStore interface {
	IncrStats(ctx context.Context, dataset, direction string, queries, misses int, visitor bool) error
	GetTotals(ctx context.Context, dataset string) (*store.Totals, error)
}

// 单点响应：未命中时 output 为 null
type transformResponse struct {
	Dataset   string          `json:"dataset"`
	Direction string          `json:"direction"`
	Input     tinshift.Point  `json:"input"`
	Output    *tinshift.Point `json:"output"`
	Found     bool            `json:"found"`
	Cached    string          `json:"cached,omitempty"`
}

// 批量响应：results 与输入逐行对应，未命中行为 null
type batchResponse struct {
	Dataset   string        `json:"dataset"`
	Direction string        `json:"direction"`
	Count     int           `json:"count"`
	Found     int           `json:"found"`
	Results   []*[3]float64 `json:"results"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func cacheTTLFromEnv() time.Duration {
	ttl := 3600
	if s := os.Getenv("TINSHIFT_CACHE_TTL_S"); s != "" {
		if n, e := strconv.Atoi(s); e == nil && n > 0 {
			ttl = n
		}
	}
	return time.Duration(ttl) * time.Second
}

func parseCoord(r *http.Request, key string, required bool) (float64, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		if required {
			return 0, fmt.Errorf("missing %s", key)
		}
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("bad %s: %q", key, s)
	}
	return v, nil
}

// parseTarget 读取 dataset / direction 参数
func parseTarget(r *http.Request, reg *registry.Registry) (string, tinshift.Direction, int, error) {
	name := r.URL.Query().Get("dataset")
	if name == "" {
		return "", 0, http.StatusBadRequest, errors.New("missing dataset")
	}
	dir, err := tinshift.ParseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		return "", 0, http.StatusBadRequest, err
	}
	if _, ok := reg.Get(name); !ok {
		return "", 0, http.StatusNotFound, fmt.Errorf("unknown dataset %q", name)
	}
	return name, dir, 0, nil
}

// decodeBatch 解析 [[x,y],[x,y,z],...]
func decodeBatch(r *http.Request) ([]tinshift.Point, error) {
	var rows [][]float64
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("bad body: %w", err)
	}
	if len(rows) > maxBatchPoints {
		return nil, fmt.Errorf("too many points: %d > %d", len(rows), maxBatchPoints)
	}
	pts := make([]tinshift.Point, len(rows))
	for i, row := range rows {
		if len(row) != 2 && len(row) != 3 {
			return nil, fmt.Errorf("row %d: expected 2 or 3 values, got %d", i, len(row))
		}
		pts[i] = tinshift.Point{X: row[0], Y: row[1]}
		if len(row) == 3 {
			pts[i].Z = row[2]
		}
	}
	return pts, nil
}

func recordStats(ctx context.Context, st StatsStore, rc *redis.Client, r *http.Request, name string, dir tinshift.Direction, queries, misses int) {
	if st == nil {
		return
	}
	visitor := firstVisit(ctx, rc, name, getVisitorIP(r), time.Now())
	if err := st.IncrStats(ctx, name, dir.String(), queries, misses, visitor); err != nil {
		logger.L().Debug("stats_incr_error", "dataset", name, "err", err)
	}
}

// 构建并返回 API 路由：独立 ServeMux 便于在主入口挂载到 API_BASE 前缀
// 约束：st、rc、lru 均可为 nil，对应的统计/缓存能力随之关闭
func BuildRoutes(reg *registry.Registry, st StatsStore, rc *redis.Client, lru *cache.LRU) *http.ServeMux {
	ttl := cacheTTLFromEnv()
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/transform", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			transformOne(w, r, reg, st, rc, lru, ttl)
		case http.MethodPost:
			transformMany(w, r, reg, st, rc)
		default:
			w.Header().Set("allow", "GET, POST")
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})

	apiMux.HandleFunc("/datasets", func(w http.ResponseWriter, r *http.Request) {
		if name := r.URL.Query().Get("name"); name != "" {
			for _, s := range reg.Summaries() {
				if s.Name == name {
					writeJSON(w, http.StatusOK, s)
					return
				}
			}
			writeError(w, http.StatusNotFound, fmt.Sprintf("unknown dataset %q", name))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"datasets": reg.Summaries()})
	})

	apiMux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		m := map[string]any{"datasets": reg.Len(), "cache_entries": lru.Len()}
		if st != nil {
			t, err := st.GetTotals(r.Context(), r.URL.Query().Get("dataset"))
			if err != nil {
				logger.L().Error("stats_totals_error", "err", err)
				writeError(w, http.StatusInternalServerError, "stats unavailable")
				return
			}
			m["total"] = t.Total
			m["today"] = t.Today
			m["misses"] = t.Misses
			m["visitors_today"] = t.Visitors
		}
		writeJSON(w, http.StatusOK, m)
	})

	return apiMux
}

func transformOne(w http.ResponseWriter, r *http.Request, reg *registry.Registry, st StatsStore, rc *redis.Client, lru *cache.LRU, ttl time.Duration) {
	ctx := r.Context()
	name, dir, status, err := parseTarget(r, reg)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	var p tinshift.Point
	for _, c := range []struct {
		key      string
		dst      *float64
		required bool
	}{{"x", &p.X, true}, {"y", &p.Y, true}, {"z", &p.Z, false}} {
		v, err := parseCoord(r, c.key, c.required)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		*c.dst = v
	}
	res, src, err := TransformQuery(ctx, rc, lru, reg, name, dir, p, ttl)
	if errors.Is(err, ErrUnknownDataset) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown dataset %q", name))
		return
	}
	out := transformResponse{Dataset: name, Direction: dir.String(), Input: p, Found: res.Found, Cached: src}
	if res.Found {
		q := res.Point
		out.Output = &q
	}
	misses := 0
	if !res.Found {
		misses = 1
	}
	recordStats(ctx, st, rc, r, name, dir, 1, misses)
	writeJSON(w, http.StatusOK, out)
}

func transformMany(w http.ResponseWriter, r *http.Request, reg *registry.Registry, st StatsStore, rc *redis.Client) {
	name, dir, status, err := parseTarget(r, reg)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBatchBytes)
	pts, err := decodeBatch(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := TransformBatch(reg, name, dir, pts)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown dataset %q", name))
		return
	}
	out := batchResponse{Dataset: name, Direction: dir.String(), Count: len(res), Results: make([]*[3]float64, len(res))}
	for i, v := range res {
		if v.Found {
			out.Found++
			out.Results[i] = &[3]float64{v.X, v.Y, v.Z}
		}
	}
	recordStats(r.Context(), st, rc, r, name, dir, len(res), len(res)-out.Found)
	writeJSON(w, http.StatusOK, out)
}

// 文档注释：重载路由（管理口令校验）
// 背景：口令取自 x-admin-token 头，与 token 不一致或 token 为空时拒绝；reload 返回新集合中的数据集数量。
func ReloadHandler(token string, reload func(ctx context.Context) (int, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("allow", "POST")
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		t := r.Header.Get("x-admin-token")
		if token == "" || t != token {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		n, err := reload(r.Context())
		if err != nil {
			logger.L().Error("registry_reload_error", "err", err)
			writeError(w, http.StatusInternalServerError, "reload failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"datasets": n})
	})
}
