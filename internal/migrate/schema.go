package migrate

import (
	"database/sql"

	"parcel-api/internal/logger"
)

// 背景：首次运行自动创建快照表，Postgres 与 SQLite 共用同一组语句
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；快照整体以 JSON 文本保存在 data 列
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS _parcel_snapshots (
            code TEXT PRIMARY KEY,
            area_type INTEGER NOT NULL,
            data TEXT NOT NULL,
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE INDEX IF NOT EXISTS idx_parcel_snapshots_created ON _parcel_snapshots(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_parcel_snapshots_type ON _parcel_snapshots(area_type)`,
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
