package tinshift

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"tinshift/internal/logger"
	"tinshift/internal/quadtree"
)

// Direction 变换方向
type Direction int

const (
	Forward Direction = iota
	Inverse
)

func (d Direction) String() string {
	if d == Inverse {
		return "inverse"
	}
	return "forward"
}

// ParseDirection 解析方向名（大小写不敏感，支持 fwd/inv 缩写）
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "forward", "fwd":
		return Forward, nil
	case "inverse", "inv":
		return Inverse, nil
	}
	return Forward, fmt.Errorf("unknown direction %q", s)
}

// Point 三维坐标
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Location：点定位结果，Weights 与 Triangle 的顶点顺序一致
type Location struct {
	Triangle     int
	Weights      [3]float64
	Extrapolated bool
}

// 单方向的惰性索引
type spatialIndex struct {
	treeOnce sync.Once
	tree     *quadtree.Tree[uint32]
	kdOnce   sync.Once
	kd       centroidIndex
}

// 文档注释：坐标求值器
// 背景：包装一个只读数据集，按方向惰性构建四叉树（正向按源坐标、逆向按目标坐标）；仅竖直分量变换时，
// 源/目标平面坐标一致，逆向直接复用正向树。
// 约束：惰性构建由 sync.Once 保护，可并发调用 Forward/Inverse；候选缓冲区为每次调用的局部变量，不跨调用保留状态。
type Evaluator struct {
	ds   *Dataset
	opts quadtree.Options
	fwd  spatialIndex
	inv  spatialIndex
}

func NewEvaluator(ds *Dataset) *Evaluator {
	return NewEvaluatorWithOptions(ds, quadtree.Options{})
}

func NewEvaluatorWithOptions(ds *Dataset, opts quadtree.Options) *Evaluator {
	return &Evaluator{ds: ds, opts: opts}
}

func (e *Evaluator) Dataset() *Dataset { return e.ds }

// TreeOptions 构造时传入的四叉树参数（未归一化）
func (e *Evaluator) TreeOptions() quadtree.Options { return e.opts }

// Warm 预先构建两个方向的索引（兜底策略需要时一并构建 KD-Tree）
func (e *Evaluator) Warm() {
	e.tree(Forward)
	e.tree(Inverse)
	if e.ds.fallback == FallbackNearestCentroid {
		e.centroids(Forward)
		e.centroids(Inverse)
	}
}

// 某方向查询使用的平面坐标列
func (e *Evaluator) columns(dir Direction) (int, int) {
	if dir == Inverse && e.ds.horizontal {
		return colTargetX, colTargetY
	}
	return colSourceX, colSourceY
}

func (e *Evaluator) index(dir Direction) *spatialIndex {
	if dir == Inverse && e.ds.horizontal {
		return &e.inv
	}
	return &e.fwd
}

func (e *Evaluator) tree(dir Direction) *quadtree.Tree[uint32] {
	idx := e.index(dir)
	idx.treeOnce.Do(func() {
		t0 := time.Now()
		cx, cy := e.columns(dir)
		idx.tree = buildTree(e.ds, cx, cy, e.opts)
		s := idx.tree.Stats()
		logger.L().Debug("tinshift_tree_built",
			"direction", dir.String(),
			"triangles", e.ds.TriangleCount(),
			"nodes", s.Nodes,
			"depth", s.Depth,
			"ms", time.Since(t0).Milliseconds(),
		)
	})
	return idx.tree
}

func buildTree(ds *Dataset, cx, cy int, opts quadtree.Options) *quadtree.Tree[uint32] {
	global := quadtree.EmptyRect()
	for i := 0; i < ds.VertexCount(); i++ {
		global = global.Extend(ds.vertex(uint32(i), cx), ds.vertex(uint32(i), cy))
	}
	if global.IsEmpty() {
		global = quadtree.Rect{}
	}
	t := quadtree.NewWithOptions[uint32](global, opts)
	for i, tri := range ds.triangles {
		t.Insert(uint32(i), triangleBounds(ds, tri, cx, cy))
	}
	return t
}

func triangleBounds(ds *Dataset, tri Triangle, cx, cy int) quadtree.Rect {
	r := quadtree.EmptyRect()
	for _, v := range tri {
		r = r.Extend(ds.vertex(v, cx), ds.vertex(v, cy))
	}
	return r
}

// centroids 构建质心索引；零面积三角形无法给出有限权重，不参与
func (e *Evaluator) centroids(dir Direction) centroidIndex {
	idx := e.index(dir)
	idx.kdOnce.Do(func() {
		cx, cy := e.columns(dir)
		cs := make([]centroid, 0, len(e.ds.triangles))
		for i, tri := range e.ds.triangles {
			x1, y1, x2, y2, x3, y3 := e.corners(tri, cx, cy)
			if zeroArea(x1, y1, x2, y2, x3, y3) {
				continue
			}
			cs = append(cs, centroid{p: [2]float64{(x1 + x2 + x3) / 3, (y1 + y2 + y3) / 3}, tri: uint32(i)})
		}
		idx.kd = newCentroidIndex(cs)
		logger.L().Debug("tinshift_kdtree_built", "direction", dir.String(), "centroids", len(cs))
	})
	return idx.kd
}

func (e *Evaluator) corners(tri Triangle, cx, cy int) (x1, y1, x2, y2, x3, y3 float64) {
	d := e.ds
	return d.vertex(tri[0], cx), d.vertex(tri[0], cy),
		d.vertex(tri[1], cx), d.vertex(tri[1], cy),
		d.vertex(tri[2], cx), d.vertex(tri[2], cy)
}

func (e *Evaluator) weights(i uint32, cx, cy int, x, y float64) (float64, float64, float64) {
	x1, y1, x2, y2, x3, y3 := e.corners(e.ds.triangles[i], cx, cy)
	return Barycentric(x1, y1, x2, y2, x3, y3, x, y)
}

// 文档注释：点定位
// 背景：四叉树给出包围盒候选，按候选顺序返回第一个通过重心判定的三角形；共享边上的点归属取决于遍历顺序，
// 不做排序。未命中时按数据集兜底策略选取最近三角形并外推权重（Extrapolated=true）。
// 返回：false 表示点在网外且无兜底。
func (e *Evaluator) Locate(dir Direction, x, y float64) (Location, bool) {
	cx, cy := e.columns(dir)
	var scratch [16]uint32
	cands := e.tree(dir).SearchAppend(scratch[:0], x, y)
	for _, i := range cands {
		l1, l2, l3 := e.weights(i, cx, cy, x, y)
		if insideTriangle(l1, l2, l3) {
			return Location{Triangle: int(i), Weights: [3]float64{l1, l2, l3}}, true
		}
	}
	var (
		best uint32
		ok   bool
	)
	switch e.ds.fallback {
	case FallbackNearestSide:
		best, ok = e.nearestSide(cx, cy, x, y)
	case FallbackNearestCentroid:
		var c centroid
		c, _, ok = e.centroids(dir).nearest([2]float64{x, y})
		best = c.tri
	}
	if !ok {
		return Location{}, false
	}
	l1, l2, l3 := e.weights(best, cx, cy, x, y)
	if math.IsNaN(l1) || math.IsNaN(l2) || math.IsInf(l1, 0) || math.IsInf(l2, 0) {
		return Location{}, false
	}
	return Location{Triangle: int(best), Weights: [3]float64{l1, l2, l3}, Extrapolated: true}, true
}

// nearestSide 线性扫描所有非退化三角形，取最近边距离最小者；相等时保留下标较小者
func (e *Evaluator) nearestSide(cx, cy int, x, y float64) (uint32, bool) {
	bestD := math.Inf(1)
	var best uint32
	found := false
	for i, tri := range e.ds.triangles {
		x1, y1, x2, y2, x3, y3 := e.corners(tri, cx, cy)
		if zeroArea(x1, y1, x2, y2, x3, y3) {
			continue
		}
		d := math.Min(segmentDistSq(x, y, x1, y1, x2, y2),
			math.Min(segmentDistSq(x, y, x2, y2, x3, y3), segmentDistSq(x, y, x3, y3, x1, y1)))
		if d < bestD {
			bestD = d
			best = uint32(i)
			found = true
		}
	}
	return best, found
}

func (e *Evaluator) blend(loc Location, col int) float64 {
	tri := e.ds.triangles[loc.Triangle]
	w := loc.Weights
	return w[0]*e.ds.vertex(tri[0], col) + w[1]*e.ds.vertex(tri[1], col) + w[2]*e.ds.vertex(tri[2], col)
}

// Forward 源空间 → 目标空间；点在网外返回 false
func (e *Evaluator) Forward(x, y, z float64) (Point, bool) {
	loc, ok := e.Locate(Forward, x, y)
	if !ok {
		return Point{}, false
	}
	out := Point{X: x, Y: y, Z: z}
	if e.ds.horizontal {
		out.X = e.blend(loc, colTargetX)
		out.Y = e.blend(loc, colTargetY)
	}
	if e.ds.vertical {
		out.Z = z + e.blend(loc, e.ds.colOffsetZ())
	}
	return out, true
}

// Inverse 目标空间 → 源空间；权重在目标坐标下计算，竖直改正取负
func (e *Evaluator) Inverse(x, y, z float64) (Point, bool) {
	loc, ok := e.Locate(Inverse, x, y)
	if !ok {
		return Point{}, false
	}
	out := Point{X: x, Y: y, Z: z}
	if e.ds.horizontal {
		out.X = e.blend(loc, colSourceX)
		out.Y = e.blend(loc, colSourceY)
	}
	if e.ds.vertical {
		out.Z = z - e.blend(loc, e.ds.colOffsetZ())
	}
	return out, true
}

// Transform 按方向分派
func (e *Evaluator) Transform(dir Direction, p Point) (Point, bool) {
	if dir == Inverse {
		return e.Inverse(p.X, p.Y, p.Z)
	}
	return e.Forward(p.X, p.Y, p.Z)
}

// Result：批量变换的单点结果
type Result struct {
	Point
	Found bool `json:"found"`
}

// TransformAll 批量变换，结果与输入一一对应
func (e *Evaluator) TransformAll(dir Direction, pts []Point) []Result {
	out := make([]Result, len(pts))
	for i, p := range pts {
		q, ok := e.Transform(dir, p)
		out[i] = Result{Point: q, Found: ok}
	}
	return out
}
