package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"parcel-api/internal/logger"
	"parcel-api/internal/metrics"
	"parcel-api/internal/migrate"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// 文档注释：SQL 快照存储
// 背景：Postgres 通过 lib/pq、SQLite 通过 modernc 纯 Go 驱动；语句以 ? 书写，Postgres 下改写为 $n。
// 约束：写入使用 ON CONFLICT DO NOTHING 实现先写为准。
type SQLStore struct {
	db     *sql.DB
	driver string
	l      *slog.Logger
}

// AttachSQL 复用已打开的连接池并确保表结构
func AttachSQL(db *sql.DB, driver string, l *slog.Logger) (*SQLStore, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("catalog: unsupported sql driver %q", driver)
	}
	if err := migrate.EnsureSchema(db); err != nil {
		return nil, err
	}
	return &SQLStore{db: db, driver: driver, l: logger.Or(l)}, nil
}

// OpenSQL：按驱动名与 DSN 打开；SQLite 限制为单连接，内存库在连接间不共享
func OpenSQL(driver, dsn string, l *slog.Logger) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	s, err := AttachSQL(db, driver, l)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

func (s *SQLStore) Find(ctx context.Context, code string) (*Snapshot, error) {
	var data string
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT data FROM _parcel_snapshots WHERE code=? LIMIT 1`), code)
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			metrics.CatalogMissesTotal.WithLabelValues(s.driver).Inc()
			return nil, nil
		}
		return nil, err
	}
	metrics.CatalogHitsTotal.WithLabelValues(s.driver).Inc()
	return decode([]byte(data))
}

func (s *SQLStore) Update(ctx context.Context, snap *Snapshot) error {
	b, err := encode(snap)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO _parcel_snapshots(code, area_type, data)
        VALUES(?,?,?)
        ON CONFLICT (code) DO NOTHING`), snap.Code, snap.AreaType, string(b))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		metrics.CatalogUpdatesTotal.WithLabelValues(s.driver).Inc()
		s.l.Debug("catalog_sql_update", "code", snap.Code)
	}
	return nil
}

// Delete 删除单个快照，返回是否存在
func (s *SQLStore) Delete(ctx context.Context, code string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM _parcel_snapshots WHERE code=?`), code)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// List 按写入时间倒序列出快照
func (s *SQLStore) List(ctx context.Context, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT data FROM _parcel_snapshots ORDER BY created_at DESC, code LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Snapshot
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		snap, err := decode([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error { return s.db.Close() }
