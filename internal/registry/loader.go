package registry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tinshift/internal/logger"
	"tinshift/internal/metrics"
	"tinshift/internal/quadtree"
	"tinshift/internal/store"
	"tinshift/internal/tinshift"
)

// Options 加载参数
type Options struct {
	// Warm 为 true 时加载后立即构建两个方向的索引
	Warm bool
	Tree quadtree.Options
}

// DatasetSource：数据集文档来源（*store.Store 实现）
type DatasetSource interface {
	ListDatasets(ctx context.Context) ([]store.DatasetRow, error)
	LoadDataset(ctx context.Context, name string) ([]byte, error)
}

func newEntry(name, source string, body []byte, opt Options) (*Entry, error) {
	t0 := time.Now()
	ds, err := tinshift.ParseJSON(body)
	if err != nil {
		return nil, err
	}
	ev := tinshift.NewEvaluatorWithOptions(ds, opt.Tree)
	if opt.Warm {
		ev.Warm()
	}
	logger.L().Info("tinshift_dataset_loaded",
		"name", name,
		"source", source,
		"vertices", ds.VertexCount(),
		"triangles", ds.TriangleCount(),
		"warm", opt.Warm,
		"ms", time.Since(t0).Milliseconds(),
	)
	return &Entry{Name: name, Source: source, Eval: ev}, nil
}

func loadFailed(name, source string, err error) {
	metrics.DatasetLoadErrorsTotal.Inc()
	logger.L().Error("tinshift_dataset_load_error", "name", name, "source", source, "err", err)
}

// 文档注释：从目录加载全部数据集
// 背景：扫描 dir 下的 *.json 文件，文件名（去扩展名）即数据集名；单个文件解析失败只记录日志并跳过，不影响其他文件。
// 返回：仅目录不可读时返回 error。
func LoadDir(dir string, opt Options) (map[string]*Entry, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Entry)
	for _, ent := range ents {
		fn := ent.Name()
		if ent.IsDir() || !strings.EqualFold(filepath.Ext(fn), ".json") {
			continue
		}
		name := strings.TrimSuffix(fn, filepath.Ext(fn))
		fp := filepath.Join(dir, fn)
		b, err := os.ReadFile(fp)
		if err != nil {
			loadFailed(name, fp, err)
			continue
		}
		e, err := newEntry(name, fp, b, opt)
		if err != nil {
			loadFailed(name, fp, err)
			continue
		}
		out[name] = e
	}
	return out, nil
}

// LoadStore 从数据库加载全部数据集；单行解析失败跳过
func LoadStore(ctx context.Context, src DatasetSource, opt Options) (map[string]*Entry, error) {
	rows, err := src.ListDatasets(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Entry, len(rows))
	for _, r := range rows {
		b, err := src.LoadDataset(ctx, r.Name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			loadFailed(r.Name, "db", err)
			continue
		}
		e, err := newEntry(r.Name, "db", b, opt)
		if err != nil {
			loadFailed(r.Name, "db", err)
			continue
		}
		out[r.Name] = e
	}
	return out, nil
}
