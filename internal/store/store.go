// 包 store: 提供与 PostgreSQL 的数据访问层，包含数据集文档存取与查询统计读写
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tinshift/internal/logger"
	"tinshift/internal/tinshift"

	_ "github.com/lib/pq"
)

// ErrNotFound 数据集不存在
var ErrNotFound = errors.New("store: dataset not found")

// Store: 数据库访问入口，持有连接池并提供数据集/统计接口
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

// Open: 使用 DSN 打开数据库连接并配置连接池参数
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	return &Store{db: db}, nil
}

// Close: 关闭数据库连接
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// DatasetRow: 数据集目录行（不含文档正文）
type DatasetRow struct {
	Name          string    `json:"name"`
	FormatVersion string    `json:"format_version"`
	InputCRS      string    `json:"input_crs,omitempty"`
	OutputCRS     string    `json:"output_crs,omitempty"`
	VertexCount   int       `json:"vertex_count"`
	TriangleCount int       `json:"triangle_count"`
	LoadedAt      time.Time `json:"loaded_at"`
}

// 文档注释：保存数据集文档
// 背景：正文按原始 JSON 字节存储，服务端从库加载时重新解析，保证与文件来源走同一校验路径；目录列取自解析结果。
// 约束：同名覆盖并刷新 loaded_at；ds 必须由 body 解析得到。
func (s *Store) SaveDataset(ctx context.Context, name string, ds *tinshift.Dataset, body []byte) error {
	info := ds.Info()
	_, err := s.db.ExecContext(ctx, `INSERT INTO _tin_datasets(name, file_type, format_version, input_crs, output_crs, vertex_count, triangle_count, body, loaded_at)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,now())
        ON CONFLICT (name) DO UPDATE SET file_type=EXCLUDED.file_type, format_version=EXCLUDED.format_version,
            input_crs=EXCLUDED.input_crs, output_crs=EXCLUDED.output_crs, vertex_count=EXCLUDED.vertex_count,
            triangle_count=EXCLUDED.triangle_count, body=EXCLUDED.body, loaded_at=now()`,
		name, info.FileType, info.FormatVersion, info.InputCRS, info.OutputCRS, info.VertexCount, info.TriangleCount, body,
	)
	if err != nil {
		return err
	}
	logger.L().Debug("db_dataset_saved", "name", name, "bytes", len(body), "triangles", info.TriangleCount)
	return nil
}

// LoadDataset: 读取数据集文档正文；不存在时返回 ErrNotFound
func (s *Store) LoadDataset(ctx context.Context, name string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, "SELECT body FROM _tin_datasets WHERE name=$1", name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

// ListDatasets: 按名称排序列出全部数据集目录行
func (s *Store) ListDatasets(ctx context.Context) ([]DatasetRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, format_version, input_crs, output_crs, vertex_count, triangle_count, loaded_at
        FROM _tin_datasets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DatasetRow
	for rows.Next() {
		var r DatasetRow
		if err := rows.Scan(&r.Name, &r.FormatVersion, &r.InputCRS, &r.OutputCRS, &r.VertexCount, &r.TriangleCount, &r.LoadedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteDataset: 删除数据集；不存在时返回 ErrNotFound
func (s *Store) DeleteDataset(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM _tin_datasets WHERE name=$1", name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrStats: 按日/数据集/方向累加查询次数与未命中次数；新访客时累加访客数
func (s *Store) IncrStats(ctx context.Context, dataset, direction string, queries, misses int, visitor bool) error {
	v := 0
	if visitor {
		v = 1
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO _tin_stats_daily(day, dataset, direction, queries, misses, visitors)
        VALUES(current_date, $1, $2, $3, $4, $5)
        ON CONFLICT (day, dataset, direction) DO UPDATE SET
            queries=_tin_stats_daily.queries+EXCLUDED.queries,
            misses=_tin_stats_daily.misses+EXCLUDED.misses,
            visitors=_tin_stats_daily.visitors+EXCLUDED.visitors`,
		dataset, direction, queries, misses, v)
	logger.L().Debug("stats_incr", "dataset", dataset, "direction", direction, "queries", queries, "misses", misses, "visitor", visitor)
	return err
}

// Totals: 统计返回结构，包含累计与当日查询次数
type Totals struct {
	Total    int64 `json:"total"`
	Today    int64 `json:"today"`
	Misses   int64 `json:"misses"`
	Visitors int64 `json:"visitors_today"`
}

// GetTotals: 读取累计与当日查询次数；dataset 为空时汇总全部数据集
func (s *Store) GetTotals(ctx context.Context, dataset string) (*Totals, error) {
	var t Totals
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(queries),0), COALESCE(SUM(misses),0),
            COALESCE(SUM(queries) FILTER (WHERE day=current_date),0),
            COALESCE(SUM(visitors) FILTER (WHERE day=current_date),0)
        FROM _tin_stats_daily WHERE $1='' OR dataset=$1`, dataset)
	if err := row.Scan(&t.Total, &t.Misses, &t.Today, &t.Visitors); err != nil {
		return nil, err
	}
	logger.L().Debug("stats_totals", "dataset", dataset, "total", t.Total, "today", t.Today)
	return &t, nil
}
