package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"tinshift/internal/quadtree"
)

// Manifest：TOML 清单，显式列出数据集名称、文件与逐个数据集的索引参数
//
//	[[dataset]]
//	name = "kkj_etrs"
//	file = "kkj_etrs.json"
//	warm = true
//	bucket_capacity = 16
type Manifest struct {
	DataDir  string          `toml:"data_dir"`
	Warm     bool            `toml:"warm"`
	Datasets []ManifestEntry `toml:"dataset"`
}

type ManifestEntry struct {
	Name           string  `toml:"name"`
	File           string  `toml:"file"`
	Warm           *bool   `toml:"warm"`
	BucketCapacity int     `toml:"bucket_capacity"`
	SplitRatio     float64 `toml:"split_ratio"`
}

// ReadManifest 解析清单；相对 data_dir 以清单所在目录为基准
func ReadManifest(path string) (*Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, err
	}
	base := filepath.Dir(path)
	if m.DataDir == "" {
		m.DataDir = base
	} else if !filepath.IsAbs(m.DataDir) {
		m.DataDir = filepath.Join(base, m.DataDir)
	}
	seen := make(map[string]bool, len(m.Datasets))
	for i, d := range m.Datasets {
		if d.Name == "" || d.File == "" {
			return nil, fmt.Errorf("manifest %s: dataset #%d needs name and file", path, i)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("manifest %s: duplicate dataset %q", path, d.Name)
		}
		seen[d.Name] = true
	}
	return &m, nil
}

// mergeTree 逐字段覆盖：清单中大于 0 的参数生效，其余沿用 base
func mergeTree(base quadtree.Options, d ManifestEntry) quadtree.Options {
	if d.BucketCapacity > 0 {
		base.BucketCapacity = d.BucketCapacity
	}
	if d.SplitRatio > 0 {
		base.SplitRatio = d.SplitRatio
	}
	return base
}

// 文档注释：按清单加载数据集
// 背景：清单项未给出的参数继承 opt；warm 可逐项覆盖。单项失败与 LoadDir 一致，只记录并跳过。
func LoadManifest(path string, opt Options) (map[string]*Entry, error) {
	m, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Entry, len(m.Datasets))
	for _, d := range m.Datasets {
		o := opt
		o.Warm = opt.Warm || m.Warm
		if d.Warm != nil {
			o.Warm = *d.Warm
		}
		o.Tree = mergeTree(opt.Tree, d)
		fp := d.File
		if !filepath.IsAbs(fp) {
			fp = filepath.Join(m.DataDir, fp)
		}
		b, err := os.ReadFile(fp)
		if err != nil {
			loadFailed(d.Name, fp, err)
			continue
		}
		e, err := newEntry(d.Name, fp, b, o)
		if err != nil {
			loadFailed(d.Name, fp, err)
			continue
		}
		out[d.Name] = e
	}
	return out, nil
}
