package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"parcel-api/internal/logger"
	"parcel-api/internal/utils"
)

// 文档注释：按环境变量打开快照存储
// 背景：CATALOG_DRIVER 取 file/sqlite/postgres/redis/none，可用逗号组合（如 redis,postgres，按顺序查找）；
// CATALOG_PATH 为 file/sqlite 的路径；CATALOG_REDIS_TTL_MS 为 Redis 过期时间（默认不过期）。
// 返回：外层包裹 Memo；driver 为 none 或空时返回 nil，表示禁用缓存。
func OpenFromEnv(ctx context.Context, l *slog.Logger) (Catalog, error) {
	l = logger.Or(l)
	drivers := strings.ToLower(utils.EnvString("CATALOG_DRIVER", "file"))
	if drivers == "none" || drivers == "" {
		l.Info("catalog_disabled")
		return nil, nil
	}
	var list []Catalog
	closeAll := func() {
		for _, c := range list {
			_ = c.Close()
		}
	}
	for _, d := range strings.Split(drivers, ",") {
		d = strings.TrimSpace(d)
		c, err := openOne(ctx, d, l)
		if err != nil {
			closeAll()
			return nil, err
		}
		list = append(list, c)
		l.Info("catalog_open_ok", "driver", d)
	}
	if len(list) == 1 {
		return Memo(list[0]), nil
	}
	return Memo(Chain(list...)), nil
}

func openOne(ctx context.Context, driver string, l *slog.Logger) (Catalog, error) {
	switch driver {
	case "file":
		return OpenFile(utils.EnvString("CATALOG_PATH", filepath.Join("data", "catalog.json")), l)
	case DriverSQLite:
		path := utils.EnvString("CATALOG_PATH", filepath.Join("data", "catalog.db"))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		return OpenSQL(DriverSQLite, path, l)
	case DriverPostgres:
		db, err := utils.OpenPostgresFromEnv()
		if err != nil {
			return nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, err
		}
		s, err := AttachSQL(db, DriverPostgres, l)
		if err != nil {
			db.Close()
			return nil, err
		}
		return s, nil
	case "redis":
		rc := utils.OpenRedisFromEnv()
		if err := rc.Ping(ctx).Err(); err != nil {
			rc.Close()
			return nil, err
		}
		return NewRedis(rc, utils.EnvString("CATALOG_REDIS_PREFIX", DefaultRedisPrefix), utils.EnvMillis("CATALOG_REDIS_TTL_MS", 0), l), nil
	}
	return nil, fmt.Errorf("catalog: unknown driver %q", driver)
}
