package cache

import (
	"container/list"
	"strconv"
	"strings"
	"sync"
	"time"

	"tinshift/internal/tinshift"
)

// 文档注释：本地 LRU 缓存（变换结果）
// 背景：热点坐标在短周期内重复查询，使用进程内缓存跳过四叉树定位与插值；TTL 可调。
// 约束：键由 Key 构造，包含数据集名、方向与原始坐标文本；数据集重载后调用 Purge 清空。
type LRU struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	lst  *list.List
	dict map[string]*list.Element
	now  func() time.Time
}

type kv struct {
	k   string
	v   tinshift.Result
	exp time.Time
}

// NewLRU capacity<=0 时返回 nil，nil 缓存的 Get 恒未命中、Set 为空操作
func NewLRU(capacity int, ttlSec int) *LRU {
	if capacity <= 0 {
		return nil
	}
	if ttlSec <= 0 {
		ttlSec = 3600
	}
	return &LRU{
		cap:  capacity,
		ttl:  time.Duration(ttlSec) * time.Second,
		lst:  list.New(),
		dict: make(map[string]*list.Element),
		now:  time.Now,
	}
}

func (c *LRU) Get(k string) (tinshift.Result, bool) {
	if c == nil {
		return tinshift.Result{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[k]; ok {
		it := e.Value.(kv)
		if c.now().Before(it.exp) {
			c.lst.MoveToFront(e)
			return it.v, true
		}
		c.lst.Remove(e)
		delete(c.dict, k)
	}
	return tinshift.Result{}, false
}

func (c *LRU) Set(k string, v tinshift.Result) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	exp := c.now().Add(c.ttl)
	if e, ok := c.dict[k]; ok {
		e.Value = kv{k: k, v: v, exp: exp}
		c.lst.MoveToFront(e)
		return
	}
	c.dict[k] = c.lst.PushFront(kv{k: k, v: v, exp: exp})
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		if back == nil {
			break
		}
		delete(c.dict, back.Value.(kv).k)
		c.lst.Remove(back)
	}
}

func (c *LRU) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}

// Purge 清空全部条目（数据集重载后旧结果失效）
func (c *LRU) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lst.Init()
	c.dict = make(map[string]*list.Element)
}

// 文档注释：构造缓存键
// 背景：坐标按最短往返格式输出，同一浮点值总得到同一键；进程内 LRU 与 Redis 共用该键。
// 约束：rev 为数据集内容指纹，重载后内容变化的数据集不会命中旧结果（包括 Redis 中尚未过期的键）。
func Key(dataset, rev string, dir tinshift.Direction, p tinshift.Point) string {
	var b strings.Builder
	b.WriteString("tinshift:")
	b.WriteString(dataset)
	b.WriteByte(':')
	b.WriteString(rev)
	b.WriteByte(':')
	b.WriteString(dir.String())
	for _, v := range [3]float64{p.X, p.Y, p.Z} {
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}
