// 包 tinshift：基于三角网的坐标平移/高程改正引擎（数据集解析、点定位与重心插值）
package tinshift

import (
	"encoding/binary"
	"hash/fnv"
	"io"
	"math"
	"strconv"

	"tinshift/internal/document"
)

const (
	FileType = "triangulation_file"

	componentHorizontal = "horizontal"
	componentVertical   = "vertical"
)

// FallbackStrategy：点未落入任何三角形时的兜底策略（1.1 格式起支持）
type FallbackStrategy int

const (
	FallbackNone FallbackStrategy = iota
	FallbackNearestSide
	FallbackNearestCentroid
)

func (f FallbackStrategy) String() string {
	switch f {
	case FallbackNearestSide:
		return "nearest_side"
	case FallbackNearestCentroid:
		return "nearest_centroid"
	}
	return "none"
}

func parseFallback(s string) (FallbackStrategy, bool) {
	switch s {
	case "none":
		return FallbackNone, true
	case "nearest_side":
		return FallbackNearestSide, true
	case "nearest_centroid":
		return FallbackNearestCentroid, true
	}
	return FallbackNone, false
}

type Authority struct {
	Name    string `json:"name,omitempty"`
	URL     string `json:"url,omitempty"`
	Address string `json:"address,omitempty"`
	Email   string `json:"email,omitempty"`
}

type Link struct {
	Href  string `json:"href,omitempty"`
	Rel   string `json:"rel,omitempty"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

// Info：仅用于溯源展示的元数据，不参与计算
type Info struct {
	FileType         string    `json:"file_type"`
	FormatVersion    string    `json:"format_version"`
	Name             string    `json:"name,omitempty"`
	Version          string    `json:"version,omitempty"`
	License          string    `json:"license,omitempty"`
	Description      string    `json:"description,omitempty"`
	PublicationDate  string    `json:"publication_date,omitempty"`
	Authority        Authority `json:"authority"`
	Links            []Link    `json:"links,omitempty"`
	InputCRS         string    `json:"input_crs,omitempty"`
	OutputCRS        string    `json:"output_crs,omitempty"`
	FallbackStrategy string    `json:"fallback_strategy"`
	Horizontal       bool      `json:"transform_horizontal"`
	Vertical         bool      `json:"transform_vertical"`
	VertexCount      int       `json:"vertex_count"`
	TriangleCount    int       `json:"triangle_count"`
}

// Triangle 三个顶点下标
type Triangle [3]uint32

// 文档注释：三角网数据集（解析后只读）
// 背景：顶点按行展平存放，每行列序固定为 source_x, source_y, [target_x, target_y], [offset_z]；
// 竖直分量若以 source_z/target_z 给出，在加载时一次性转换为差值，求值期无需原始高程对。
// 约束：构建后不可变，可被多个 Evaluator 只读共享。
type Dataset struct {
	info       Info
	fallback   FallbackStrategy
	horizontal bool
	vertical   bool
	columns    int
	vertices   []float64
	triangles  []Triangle
	revision   string
}

func (d *Dataset) Info() Info {
	out := d.info
	out.Links = append([]Link(nil), d.info.Links...)
	return out
}

func (d *Dataset) TransformHorizontal() bool { return d.horizontal }
func (d *Dataset) TransformVertical() bool { return d.vertical }
func (d *Dataset) Fallback() FallbackStrategy { return d.fallback }
func (d *Dataset) ColumnCount() int { return d.columns }
func (d *Dataset) VertexCount() int { return len(d.vertices) / d.columns }
func (d *Dataset) TriangleCount() int { return len(d.triangles) }
func (d *Dataset) Triangle(i int) Triangle { return d.triangles[i] }
func (d *Dataset) InputCRS() string { return d.info.InputCRS }
func (d *Dataset) OutputCRS() string { return d.info.OutputCRS }
// Revision 数据集内容指纹（顶点、三角形、分量与兜底策略），内容不变则跨进程稳定
func (d *Dataset) Revision() string { return d.revision }
func (d *Dataset) vertex(i uint32, col int) float64 { return d.vertices[int(i)*d.columns+col] }

// 列位置（展平后）
const (
	colSourceX = 0
	colSourceY = 1
	colTargetX = 2
	colTargetY = 3
)

func (d *Dataset) colOffsetZ() int {
	if d.horizontal {
		return 4
	}
	return 2
}

// ParseJSON 从 JSON 文本构建数据集
func ParseJSON(b []byte) (*Dataset, error) {
	doc, err := document.Parse(b)
	if err != nil {
		return nil, wrapErr("document", "invalid JSON", err)
	}
	return Parse(doc)
}

// Load 从 reader 读取并构建数据集
func Load(r io.Reader) (*Dataset, error) {
	doc, err := document.Decode(r)
	if err != nil {
		return nil, wrapErr("document", "invalid JSON", err)
	}
	return Parse(doc)
}

// 文档注释：从已解析文档构建数据集
// 背景：校验头部、列角色、每行长度与数值类型、三角形下标范围；任意一项失败即整体失败。
// 返回：完整的 Dataset 或 *ParseError（errors.Is(err, ErrParse) 为真）。
func Parse(doc document.Value) (*Dataset, error) {
	if !doc.IsObject() {
		return nil, keyErr("document", "top level value must be an object")
	}
	d := &Dataset{}
	if err := d.parseHeader(doc); err != nil {
		return nil, err
	}
	if err := d.parseComponents(doc); err != nil {
		return nil, err
	}
	if err := d.parseVertices(doc); err != nil {
		return nil, err
	}
	if err := d.parseTriangles(doc); err != nil {
		return nil, err
	}
	d.info.Horizontal = d.horizontal
	d.info.Vertical = d.vertical
	d.info.FallbackStrategy = d.fallback.String()
	d.info.VertexCount = d.VertexCount()
	d.info.TriangleCount = len(d.triangles)
	d.revision = d.fingerprint()
	return d, nil
}

// fingerprint FNV-64a 覆盖影响变换结果的全部字段
func (d *Dataset) fingerprint() string {
	h := fnv.New64a()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	var flags uint64
	if d.horizontal {
		flags |= 1
	}
	if d.vertical {
		flags |= 2
	}
	put(flags)
	put(uint64(d.fallback))
	put(uint64(d.columns))
	for _, v := range d.vertices {
		put(math.Float64bits(v))
	}
	for _, t := range d.triangles {
		put(uint64(t[0])<<32 | uint64(t[1]))
		put(uint64(t[2]))
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

func requiredString(doc document.Value, key string) (string, error) {
	s, err := doc.RequiredString(key)
	if err != nil {
		return "", wrapErr(key, "required string", err)
	}
	return s, nil
}

func optionalString(doc document.Value, key string) (string, error) {
	s, err := doc.OptionalString(key)
	if err != nil {
		return "", wrapErr(key, "optional string", err)
	}
	return s, nil
}

func (d *Dataset) parseHeader(doc document.Value) error {
	var err error
	if d.info.FileType, err = requiredString(doc, "file_type"); err != nil {
		return err
	}
	if d.info.FileType != FileType {
		return keyErr("file_type", "expected "+strconv.Quote(FileType))
	}
	if d.info.FormatVersion, err = requiredString(doc, "format_version"); err != nil {
		return err
	}
	if d.info.FormatVersion != "1.0" && d.info.FormatVersion != "1.1" {
		return keyErr("format_version", "unsupported version "+strconv.Quote(d.info.FormatVersion))
	}
	opt := []struct {
		key string
		dst *string
	}{
		{"name", &d.info.Name},
		{"version", &d.info.Version},
		{"license", &d.info.License},
		{"description", &d.info.Description},
		{"publication_date", &d.info.PublicationDate},
		{"input_crs", &d.info.InputCRS},
		{"output_crs", &d.info.OutputCRS},
	}
	for _, o := range opt {
		if *o.dst, err = optionalString(doc, o.key); err != nil {
			return err
		}
	}
	if auth, ok, err := doc.OptionalObject("authority"); err != nil {
		return wrapErr("authority", "optional object", err)
	} else if ok {
		a := &d.info.Authority
		for _, o := range []struct {
			key string
			dst *string
		}{{"name", &a.Name}, {"url", &a.URL}, {"address", &a.Address}, {"email", &a.Email}} {
			if *o.dst, err = optionalString(auth, o.key); err != nil {
				return wrapErr("authority", "invalid member", err)
			}
		}
	}
	links, ok, err := doc.OptionalArray("links")
	if err != nil {
		return wrapErr("links", "optional array", err)
	}
	if ok {
		for i := 0; i < links.Len(); i++ {
			lv := links.At(i)
			if !lv.IsObject() {
				return rowErr("links", i, "expected object")
			}
			var l Link
			for _, o := range []struct {
				key string
				dst *string
			}{{"href", &l.Href}, {"rel", &l.Rel}, {"type", &l.Type}, {"title", &l.Title}} {
				if *o.dst, err = optionalString(lv, o.key); err != nil {
					return &ParseError{Key: "links", Row: i, Msg: "invalid member", Err: err}
				}
			}
			d.info.Links = append(d.info.Links, l)
		}
	}
	if doc.Has("fallback_strategy") {
		if d.info.FormatVersion == "1.0" {
			return keyErr("fallback_strategy", "requires format_version 1.1 or later")
		}
		s, err := requiredString(doc, "fallback_strategy")
		if err != nil {
			return err
		}
		f, ok := parseFallback(s)
		if !ok {
			return keyErr("fallback_strategy", "unsupported value "+strconv.Quote(s))
		}
		d.fallback = f
	}
	return nil
}

func (d *Dataset) parseComponents(doc document.Value) error {
	comps, err := doc.RequiredArray("transformed_components")
	if err != nil {
		return wrapErr("transformed_components", "required array", err)
	}
	for i := 0; i < comps.Len(); i++ {
		s, ok := comps.At(i).Str()
		if !ok {
			return rowErr("transformed_components", i, "expected string")
		}
		switch s {
		case componentHorizontal:
			d.horizontal = true
		case componentVertical:
			d.vertical = true
		default:
			return rowErr("transformed_components", i, "unexpected value "+strconv.Quote(s))
		}
	}
	if !d.horizontal && !d.vertical {
		return keyErr("transformed_components", "at least one of horizontal or vertical is required")
	}
	d.columns = 2
	if d.horizontal {
		d.columns += 2
	}
	if d.vertical {
		d.columns++
	}
	return nil
}

// columnIndex 在列名数组中查找角色位置，未找到返回 -1
func columnIndex(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}

func stringColumns(doc document.Value, key string) ([]string, error) {
	arr, err := doc.RequiredArray(key)
	if err != nil {
		return nil, wrapErr(key, "required array", err)
	}
	out := make([]string, 0, arr.Len())
	for i := 0; i < arr.Len(); i++ {
		s, ok := arr.At(i).Str()
		if !ok {
			return nil, rowErr(key, i, "expected string")
		}
		out = append(out, s)
	}
	return out, nil
}

func (d *Dataset) parseVertices(doc document.Value) error {
	cols, err := stringColumns(doc, "vertices_columns")
	if err != nil {
		return err
	}
	need := func(name string) (int, error) {
		i := columnIndex(cols, name)
		if i < 0 {
			return -1, keyErr("vertices_columns", "missing "+name+" column")
		}
		return i, nil
	}
	// src 为展平后每列的来源位置；z 差值列单独处理
	var src []int
	sx, err := need("source_x")
	if err != nil {
		return err
	}
	sy, err := need("source_y")
	if err != nil {
		return err
	}
	src = append(src, sx, sy)
	if d.horizontal {
		tx, err := need("target_x")
		if err != nil {
			return err
		}
		ty, err := need("target_y")
		if err != nil {
			return err
		}
		src = append(src, tx, ty)
	}
	offZ, srcZ, dstZ := -1, -1, -1
	if d.vertical {
		offZ = columnIndex(cols, "offset_z")
		if offZ < 0 {
			srcZ = columnIndex(cols, "source_z")
			dstZ = columnIndex(cols, "target_z")
			if srcZ < 0 || dstZ < 0 {
				return keyErr("vertices_columns", "missing offset_z column, or source_z and target_z columns")
			}
		}
	}

	rows, err := doc.RequiredArray("vertices")
	if err != nil {
		return wrapErr("vertices", "required array", err)
	}
	n := rows.Len()
	d.vertices = make([]float64, 0, n*d.columns)
	for r := 0; r < n; r++ {
		row := rows.At(r)
		if !row.IsArray() {
			return rowErr("vertices", r, "expected array")
		}
		if row.Len() != len(cols) {
			return rowErr("vertices", r, "expected "+strconv.Itoa(len(cols))+" values, got "+strconv.Itoa(row.Len()))
		}
		num := func(i int) (float64, error) {
			f, ok := row.At(i).Float()
			if !ok {
				return 0, rowErr("vertices", r, "expected number for "+cols[i])
			}
			return f, nil
		}
		for _, i := range src {
			f, err := num(i)
			if err != nil {
				return err
			}
			d.vertices = append(d.vertices, f)
		}
		if d.vertical {
			if offZ >= 0 {
				f, err := num(offZ)
				if err != nil {
					return err
				}
				d.vertices = append(d.vertices, f)
			} else {
				zs, err := num(srcZ)
				if err != nil {
					return err
				}
				zt, err := num(dstZ)
				if err != nil {
					return err
				}
				d.vertices = append(d.vertices, zt-zs)
			}
		}
	}
	return nil
}

func (d *Dataset) parseTriangles(doc document.Value) error {
	cols, err := stringColumns(doc, "triangles_columns")
	if err != nil {
		return err
	}
	var idx [3]int
	for k, name := range []string{"idx_vertex1", "idx_vertex2", "idx_vertex3"} {
		if idx[k] = columnIndex(cols, name); idx[k] < 0 {
			return keyErr("triangles_columns", "missing "+name+" column")
		}
	}
	rows, err := doc.RequiredArray("triangles")
	if err != nil {
		return wrapErr("triangles", "required array", err)
	}
	nv := uint64(d.VertexCount())
	d.triangles = make([]Triangle, 0, rows.Len())
	for r := 0; r < rows.Len(); r++ {
		row := rows.At(r)
		if !row.IsArray() {
			return rowErr("triangles", r, "expected array")
		}
		if row.Len() != len(cols) {
			return rowErr("triangles", r, "expected "+strconv.Itoa(len(cols))+" values, got "+strconv.Itoa(row.Len()))
		}
		var t Triangle
		for k, i := range idx {
			u, ok := row.At(i).Uint()
			if !ok {
				return rowErr("triangles", r, "expected unsigned integer for "+cols[i])
			}
			if u >= nv {
				return rowErr("triangles", r, "vertex index "+strconv.FormatUint(u, 10)+" out of range")
			}
			t[k] = uint32(u)
		}
		d.triangles = append(d.triangles, t)
	}
	return nil
}
