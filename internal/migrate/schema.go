package migrate

import (
	"database/sql"

	"tinshift/internal/logger"
)

// 背景：首次运行自动创建数据集与统计表，保障后续导入与查询
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；仅创建最小必需结构
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS _tin_datasets (
            name TEXT PRIMARY KEY,
            file_type TEXT NOT NULL,
            format_version TEXT NOT NULL,
            input_crs TEXT NOT NULL DEFAULT '',
            output_crs TEXT NOT NULL DEFAULT '',
            vertex_count INT NOT NULL,
            triangle_count INT NOT NULL,
            body BYTEA NOT NULL,
            loaded_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE TABLE IF NOT EXISTS _tin_stats_daily (
            day DATE NOT NULL,
            dataset TEXT NOT NULL,
            direction TEXT NOT NULL,
            queries BIGINT NOT NULL DEFAULT 0,
            misses BIGINT NOT NULL DEFAULT 0,
            visitors BIGINT NOT NULL DEFAULT 0,
            PRIMARY KEY (day, dataset, direction)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_tin_stats_dataset ON _tin_stats_daily(dataset, day)`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
