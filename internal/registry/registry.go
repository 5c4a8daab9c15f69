// 包 registry：按名称管理已加载的三角网求值器，支持整体原子替换（热重载）
package registry

import (
	"sort"
	"sync/atomic"

	"tinshift/internal/metrics"
	"tinshift/internal/tinshift"
)

// Entry：一个已加载的数据集
type Entry struct {
	Name   string
	Source string
	Eval   *tinshift.Evaluator
}

// Summary：/datasets 列表项
type Summary struct {
	Name   string        `json:"name"`
	Source string        `json:"source"`
	Info   tinshift.Info `json:"info"`
}

type snapshot map[string]*Entry

// 文档注释：数据集注册表
// 背景：通过 atomic.Value 提供无锁读写切换，重载时整体替换快照，读路径不阻塞也不会看到半成品集合。
// 约束：快照构建后只读；Replace 传入的 map 由注册表接管，调用方不应再修改。
type Registry struct{ v atomic.Value }

func New() *Registry {
	r := &Registry{}
	r.v.Store(snapshot{})
	return r
}

func (r *Registry) load() snapshot { return r.v.Load().(snapshot) }

// Get 按名称取求值器
func (r *Registry) Get(name string) (*tinshift.Evaluator, bool) {
	e, ok := r.load()[name]
	if !ok {
		return nil, false
	}
	return e.Eval, true
}

func (r *Registry) Len() int { return len(r.load()) }

// Names 按字典序返回全部名称
func (r *Registry) Names() []string {
	s := r.load()
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Summaries() []Summary {
	s := r.load()
	out := make([]Summary, 0, len(s))
	for _, name := range r.Names() {
		e, ok := s[name]
		if !ok {
			continue
		}
		out = append(out, Summary{Name: e.Name, Source: e.Source, Info: e.Eval.Dataset().Info()})
	}
	return out
}

// Replace 原子替换整个集合，nil 视为空集合
func (r *Registry) Replace(entries map[string]*Entry) {
	if entries == nil {
		entries = map[string]*Entry{}
	}
	r.v.Store(snapshot(entries))
	metrics.DatasetsLoaded.Set(float64(len(entries)))
}
