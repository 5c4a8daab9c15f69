// 包 api：集中注册 HTTP API 路由以解耦主入口，便于后续扩展与替换
package api

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tinshift/internal/cache"
	"tinshift/internal/logger"
	"tinshift/internal/metrics"
	"tinshift/internal/registry"
	"tinshift/internal/tinshift"

	"github.com/redis/go-redis/v9"
)

// ErrUnknownDataset 注册表中无此数据集
var ErrUnknownDataset = errors.New("unknown dataset")

// 命中来源
const (
	sourceLRU   = "lru"
	sourceRedis = "redis"
)

// 文档注释：内部单点变换函数（供路由与代码调用）
// 背景：查询链路为 进程内 LRU → Redis → 求值器；求值结果（含未命中）回写两级缓存，重复的网外点也不再重复定位。
// 缓存键带数据集内容指纹，重载前仍在执行的请求回写的旧结果不会被新数据集命中。
// 参数：rc、lru 均可为 nil；ttl<=0 时 Redis 缓存使用 1 小时。
// 返回：变换结果与命中来源（"" 表示实时计算）；错误仅限未知数据集。
func TransformQuery(ctx context.Context, rc *redis.Client, lru *cache.LRU, reg *registry.Registry, name string, dir tinshift.Direction, p tinshift.Point, ttl time.Duration) (tinshift.Result, string, error) {
	tBegin := time.Now()
	ev, ok := reg.Get(name)
	if !ok {
		return tinshift.Result{}, "", ErrUnknownDataset
	}
	metrics.TransformRequestsTotal.WithLabelValues(name, dir.String()).Inc()
	metrics.TransformPointsTotal.WithLabelValues(name, dir.String()).Inc()
	defer func() {
		metrics.TransformDurationMs.Observe(float64(time.Since(tBegin).Microseconds()) / 1000)
	}()
	key := cache.Key(name, ev.Dataset().Revision(), dir, p)
	if v, ok := lru.Get(key); ok {
		metrics.LRUHitsTotal.Inc()
		countMiss(name, dir, v.Found)
		return v, sourceLRU, nil
	}
	if rc != nil {
		if s, _ := rc.Get(ctx, key).Result(); s != "" {
			var v tinshift.Result
			if err := json.Unmarshal([]byte(s), &v); err == nil {
				metrics.RedisHitsTotal.Inc()
				lru.Set(key, v)
				countMiss(name, dir, v.Found)
				return v, sourceRedis, nil
			}
		}
		metrics.RedisMissesTotal.Inc()
	}
	q, found := ev.Transform(dir, p)
	res := tinshift.Result{Point: q, Found: found}
	countMiss(name, dir, found)
	logger.L().Debug("transform_eval", "dataset", name, "direction", dir.String(), "x", p.X, "y", p.Y, "found", found)
	lru.Set(key, res)
	if rc != nil {
		if ttl <= 0 {
			ttl = time.Hour
		}
		b, _ := json.Marshal(res)
		_ = rc.Set(ctx, key, string(b), ttl).Err()
	}
	return res, "", nil
}

func countMiss(name string, dir tinshift.Direction, found bool) {
	if !found {
		metrics.TransformNotFoundTotal.WithLabelValues(name, dir.String()).Inc()
	}
}

// TransformBatch 批量变换，绕过结果缓存直接调用求值器
func TransformBatch(reg *registry.Registry, name string, dir tinshift.Direction, pts []tinshift.Point) ([]tinshift.Result, error) {
	tBegin := time.Now()
	ev, ok := reg.Get(name)
	if !ok {
		return nil, ErrUnknownDataset
	}
	metrics.TransformRequestsTotal.WithLabelValues(name, dir.String()).Inc()
	metrics.TransformPointsTotal.WithLabelValues(name, dir.String()).Add(float64(len(pts)))
	out := ev.TransformAll(dir, pts)
	misses := 0
	for _, r := range out {
		if !r.Found {
			misses++
		}
	}
	if misses > 0 {
		metrics.TransformNotFoundTotal.WithLabelValues(name, dir.String()).Add(float64(misses))
	}
	metrics.TransformDurationMs.Observe(float64(time.Since(tBegin).Microseconds()) / 1000)
	return out, nil
}
