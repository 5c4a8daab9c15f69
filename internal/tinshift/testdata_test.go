package tinshift

import (
	"encoding/json"
	"testing"
)

// doc 构造最小合法文档，调用方按需覆盖字段
func doc(overrides map[string]any) map[string]any {
	d := map[string]any{
		"file_type":              "triangulation_file",
		"format_version":         "1.0",
		"transformed_components": []any{"horizontal"},
		"vertices_columns":       []any{"source_x", "source_y", "target_x", "target_y"},
		"triangles_columns":      []any{"idx_vertex1", "idx_vertex2", "idx_vertex3"},
		"vertices": []any{
			[]any{0, 0, 0, 0},
			[]any{10, 0, 10, 0},
			[]any{0, 10, 0, 10},
		},
		"triangles": []any{[]any{0, 1, 2}},
	}
	for k, v := range overrides {
		if v == nil {
			delete(d, k)
			continue
		}
		d[k] = v
	}
	return d
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func mustDataset(t *testing.T, v any) *Dataset {
	t.Helper()
	ds, err := ParseJSON(mustJSON(t, v))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return ds
}

// gridDoc 生成 n×n 顶点规则网（每格两个三角形），目标坐标为整体仿射变换，竖直改正随 x 线性变化
func gridDoc(n int) map[string]any {
	var verts, tris []any
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			x, y := float64(i)*10, float64(j)*10
			tx, ty := 1.01*x+0.2*y+500, 0.99*y-0.1*x+300
			verts = append(verts, []any{x, y, tx, ty, 0.01 * x})
		}
	}
	for j := 0; j < n-1; j++ {
		for i := 0; i < n-1; i++ {
			a := j*n + i
			b, c, d := a+1, a+n, a+n+1
			tris = append(tris, []any{a, b, d}, []any{a, d, c})
		}
	}
	return doc(map[string]any{
		"transformed_components": []any{"horizontal", "vertical"},
		"vertices_columns":       []any{"source_x", "source_y", "target_x", "target_y", "offset_z"},
		"vertices":               verts,
		"triangles":              tris,
	})
}
