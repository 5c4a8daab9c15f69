// 包 quadtree：二维轴对齐矩形与自适应四叉树索引，为三角网候选查找提供亚线性包围盒过滤
package quadtree

import "math"

// 文档注释：轴对齐矩形（包围盒）
// 背景：三角形包围盒与节点区域统一使用该值类型；所有判定为纯函数，边界闭区间。
// 约束：插入的矩形需满足 MinX<=MaxX、MinY<=MaxY；零宽/零高（点、共线三角形）合法。
type Rect struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// EmptyRect 返回可用于累积的空矩形（任意点 Extend 后即为该点）
func EmptyRect() Rect {
	return Rect{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
}

// Extend 返回同时覆盖 r 与点 (x, y) 的最小矩形；r 本身不变
func (r Rect) Extend(x, y float64) Rect {
	if x < r.MinX {
		r.MinX = x
	}
	if y < r.MinY {
		r.MinY = y
	}
	if x > r.MaxX {
		r.MaxX = x
	}
	if y > r.MaxY {
		r.MaxY = y
	}
	return r
}

// IsEmpty 判断是否从未被 Extend（或边界倒置）
func (r Rect) IsEmpty() bool { return r.MinX > r.MaxX || r.MinY > r.MaxY }

// ContainsPoint 闭区间点包含判定
func (r Rect) ContainsPoint(x, y float64) bool {
	return r.MinX <= x && x <= r.MaxX && r.MinY <= y && y <= r.MaxY
}

// Overlaps 两轴投影均相交（含边界接触）
func (r Rect) Overlaps(o Rect) bool {
	return r.MinX <= o.MaxX && o.MinX <= r.MaxX && r.MinY <= o.MaxY && o.MinY <= r.MaxY
}

// ContainedBy 判断 r 是否完全落在 o 内（含边界）
func (r Rect) ContainedBy(o Rect) bool {
	return r.MinX >= o.MinX && r.MaxX <= o.MaxX && r.MinY >= o.MinY && r.MaxY <= o.MaxY
}

func (r Rect) width() float64  { return r.MaxX - r.MinX }
func (r Rect) height() float64 { return r.MaxY - r.MinY }
