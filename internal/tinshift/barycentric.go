package tinshift

// Epsilon 重心坐标包含判定的容差
const Epsilon = 1e-10

// 文档注释：平面三角形重心坐标（行列式公式）
// 背景：det = (y2-y3)(x1-x3) + (x3-x2)(y1-y3)；λ3 = 1-λ1-λ2。
// 约束：零面积三角形 det 为 0，结果为 NaN/Inf，任何有限点都无法通过 insideTriangle，因此退化三角形天然不会命中，
// 这里不做特判。
func Barycentric(x1, y1, x2, y2, x3, y3, x, y float64) (l1, l2, l3 float64) {
	det := (y2-y3)*(x1-x3) + (x3-x2)*(y1-y3)
	l1 = ((y2-y3)*(x-x3) + (x3-x2)*(y-y3)) / det
	l2 = ((y3-y1)*(x-x3) + (x1-x3)*(y-y3)) / det
	l3 = 1 - l1 - l2
	return l1, l2, l3
}

// 文档注释：包含判定（含边界）
// 约束：λ1、λ2 两侧均放宽 Epsilon，λ3 只要求 >= 0 且不放宽。共享边上的点因此可能只被其中一侧三角形接受；
// 该不对称保持原样，测试中有专门用例覆盖。
func insideTriangle(l1, l2, l3 float64) bool {
	return l1 >= -Epsilon && l1 <= 1+Epsilon &&
		l2 >= -Epsilon && l2 <= 1+Epsilon &&
		l3 >= 0
}

// zeroArea 与 Barycentric 的分母同式
func zeroArea(x1, y1, x2, y2, x3, y3 float64) bool {
	return (y2-y3)*(x1-x3)+(x3-x2)*(y1-y3) == 0
}

// segmentDistSq 点到线段的平方距离
func segmentDistSq(x, y, ax, ay, bx, by float64) float64 {
	dx, dy := bx-ax, by-ay
	l2 := dx*dx + dy*dy
	t := 0.0
	if l2 > 0 {
		t = ((x-ax)*dx + (y-ay)*dy) / l2
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
	}
	px, py := ax+t*dx-x, ay+t*dy-y
	return px*px + py*py
}
