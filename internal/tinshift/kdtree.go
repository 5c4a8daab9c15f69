package tinshift

import (
	"math"
	"sort"
)

type centroid struct {
	p   [2]float64
	tri uint32
}

// 文档注释：三角形质心索引（隐式 KD-Tree）
// 背景：nearest_centroid 兜底需要在全部三角形中找质心最近者。切片本身就是树：区间 [lo,hi) 的中位元素为节点，
// 左右半区间为两棵子树，分割轴随深度在 x/y 间交替，不分配节点指针。
// 约束：构建后只读；距离相等时保留先访问到的质心。
type centroidIndex []centroid

func newCentroidIndex(cs []centroid) centroidIndex {
	arrange(cs, 0)
	return centroidIndex(cs)
}

func arrange(cs []centroid, axis int) {
	if len(cs) <= 1 {
		return
	}
	sort.Slice(cs, func(i, j int) bool { return cs[i].p[axis] < cs[j].p[axis] })
	mid := len(cs) / 2
	arrange(cs[:mid], 1-axis)
	arrange(cs[mid+1:], 1-axis)
}

func pointDistSq(a, b [2]float64) float64 {
	dx, dy := a[0]-b[0], a[1]-b[1]
	return dx*dx + dy*dy
}

// nearest 返回最近质心及其平方距离；空索引返回 false
func (ix centroidIndex) nearest(q [2]float64) (centroid, float64, bool) {
	if len(ix) == 0 {
		return centroid{}, 0, false
	}
	best, bestD := 0, math.Inf(1)
	ix.search(0, len(ix), 0, q, &best, &bestD)
	return ix[best], bestD, true
}

func (ix centroidIndex) search(lo, hi, axis int, q [2]float64, best *int, bestD *float64) {
	if lo >= hi {
		return
	}
	mid := lo + (hi-lo)/2
	if d := pointDistSq(q, ix[mid].p); d < *bestD {
		*best, *bestD = mid, d
	}
	delta := q[axis] - ix[mid].p[axis]
	nearLo, nearHi, farLo, farHi := lo, mid, mid+1, hi
	if delta > 0 {
		nearLo, nearHi, farLo, farHi = mid+1, hi, lo, mid
	}
	ix.search(nearLo, nearHi, 1-axis, q, best, bestD)
	if delta*delta <= *bestD {
		ix.search(farLo, farHi, 1-axis, q, best, bestD)
	}
}
