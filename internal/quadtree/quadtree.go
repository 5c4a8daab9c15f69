package quadtree

// 默认分桶容量与分裂比例
const (
	DefaultBucketCapacity = 8
	DefaultSplitRatio     = 0.55
)

// Options：树级参数，节点不持有
// 约束：BucketCapacity<=0 或 SplitRatio 不在 (0.5, 1) 内时回退到默认值。
type Options struct {
	BucketCapacity int
	SplitRatio     float64
}

func (o Options) normalize() Options {
	if o.BucketCapacity <= 0 {
		o.BucketCapacity = DefaultBucketCapacity
	}
	if !(o.SplitRatio > 0.5 && o.SplitRatio < 1) {
		o.SplitRatio = DefaultSplitRatio
	}
	return o
}

type entry[T any] struct {
	feature T
	bounds  Rect
}

// 节点：要么无子节点，要么恰好 4 个
type node[T any] struct {
	rect     Rect
	features []entry[T]
	children []*node[T]
}

// 文档注释：自适应四叉树（按包围盒存放要素）
// 背景：要素存放在能完整包含其包围盒的最浅节点；分桶超限时一次性分裂为四个相互重叠的象限，
// 重叠带宽为 2*ratio-1，靠近分割线的要素更可能整体落入某个子节点而不是在父子之间反复迁移。
// 约束：只增不删；象限退化（等于父矩形，例如全部要素重合）时放弃分裂并继续追加到本地列表，
// 容量只是目标而非硬上限，以保证对病态输入也能终止。非并发安全，构建完成后只读共享。
type Tree[T any] struct {
	root     *node[T]
	capacity int
	ratio    float64
	count    int
}

// New 使用默认参数创建覆盖 bounds 的空树
func New[T any](bounds Rect) *Tree[T] {
	return NewWithOptions[T](bounds, Options{})
}

func NewWithOptions[T any](bounds Rect, opt Options) *Tree[T] {
	opt = opt.normalize()
	return &Tree[T]{root: &node[T]{rect: bounds}, capacity: opt.BucketCapacity, ratio: opt.SplitRatio}
}

// Len 返回已插入要素数
func (t *Tree[T]) Len() int { return t.count }

// Insert 插入一个要素；超出全局范围的要素保留在根节点，不拒绝
func (t *Tree[T]) Insert(feature T, bounds Rect) {
	t.insert(t.root, entry[T]{feature: feature, bounds: bounds})
	t.count++
}

func (t *Tree[T]) insert(n *node[T], e entry[T]) {
	for {
		if len(n.children) == 0 {
			break
		}
		var next *node[T]
		for _, c := range n.children {
			if e.bounds.ContainedBy(c.rect) {
				next = c
				break
			}
		}
		if next == nil {
			n.features = append(n.features, e)
			return
		}
		n = next
	}
	if len(n.features) < t.capacity {
		n.features = append(n.features, e)
		return
	}
	quads, ok := t.quadrants(n.rect)
	if !ok {
		n.features = append(n.features, e)
		return
	}
	n.children = make([]*node[T], 0, 4)
	for _, q := range quads {
		n.children = append(n.children, &node[T]{rect: q})
	}
	moved := n.features
	n.features = nil
	for _, old := range moved {
		t.insert(n, old)
	}
	t.insert(n, e)
}

// quadrants 先沿长轴分裂一次，再对两半各自分裂；任一象限与父矩形相同即视为退化
func (t *Tree[T]) quadrants(r Rect) ([4]Rect, bool) {
	var out [4]Rect
	half1, half2 := splitBounds(t.ratio, r)
	out[0], out[1] = splitBounds(t.ratio, half1)
	out[2], out[3] = splitBounds(t.ratio, half2)
	for _, q := range out {
		if q == r {
			return out, false
		}
	}
	return out, true
}

// splitBounds 沿较长的轴切出两块各占 ratio 的重叠区域，并集覆盖原矩形
func splitBounds(ratio float64, in Rect) (Rect, Rect) {
	out1, out2 := in, in
	if in.width() > in.height() {
		rng := in.width()
		out1.MaxX = in.MinX + rng*ratio
		out2.MinX = in.MaxX - rng*ratio
	} else {
		rng := in.height()
		out1.MaxY = in.MinY + rng*ratio
		out2.MinY = in.MaxY - rng*ratio
	}
	return out1, out2
}

// Search 返回包围盒包含 (x, y) 的全部要素；顺序不保证，同一要素只出现一次
func (t *Tree[T]) Search(x, y float64) []T {
	return t.SearchAppend(nil, x, y)
}

// 文档注释：追加式查询
// 背景：调用方可传入复用的缓冲区（如栈上数组切片）以避免每次分配；树本身不持有任何查询期状态，
// 因此多个 goroutine 可以在构建完成后并发查询。
func (t *Tree[T]) SearchAppend(dst []T, x, y float64) []T {
	return search(t.root, dst, x, y)
}

func search[T any](n *node[T], dst []T, x, y float64) []T {
	if !n.rect.ContainsPoint(x, y) {
		return dst
	}
	for _, e := range n.features {
		if e.bounds.ContainsPoint(x, y) {
			dst = append(dst, e.feature)
		}
	}
	for _, c := range n.children {
		dst = search(c, dst, x, y)
	}
	return dst
}

// Stats：树形统计，用于日志与测试
type Stats struct {
	Nodes           int
	Depth           int
	MaxLocal        int
	RootLocal       int
	RootHasChildren bool
}

func (t *Tree[T]) Stats() Stats {
	s := Stats{RootLocal: len(t.root.features), RootHasChildren: len(t.root.children) > 0}
	var walk func(n *node[T], depth int)
	walk = func(n *node[T], depth int) {
		s.Nodes++
		if depth > s.Depth {
			s.Depth = depth
		}
		if len(n.features) > s.MaxLocal {
			s.MaxLocal = len(n.features)
		}
		for _, c := range n.children {
			walk(c, depth+1)
		}
	}
	walk(t.root, 1)
	return s
}
