package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"parcel-api/internal/logger"
	"parcel-api/internal/metrics"
)

// FileCatalog：单个 JSON 文件保存全部快照，键为规范化编号
type FileCatalog struct {
	path   string
	mu     sync.Mutex
	data   map[string]json.RawMessage
	closed bool
	l      *slog.Logger
}

// OpenFile：文件不存在时以空目录开始，首次写入时创建
func OpenFile(path string, l *slog.Logger) (*FileCatalog, error) {
	l = logger.Or(l)
	c := &FileCatalog{path: path, data: make(map[string]json.RawMessage), l: l}
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		l.Debug("catalog_file_new", "path", path)
		return c, nil
	case err != nil:
		return nil, err
	}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &c.data); err != nil {
			return nil, err
		}
	}
	l.Debug("catalog_file_init", "path", path, "count", len(c.data))
	return c, nil
}

func (c *FileCatalog) Find(ctx context.Context, code string) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	raw, ok := c.data[code]
	if !ok {
		metrics.CatalogMissesTotal.WithLabelValues("file").Inc()
		return nil, nil
	}
	metrics.CatalogHitsTotal.WithLabelValues("file").Inc()
	return decode(raw)
}

func (c *FileCatalog) Update(ctx context.Context, s *Snapshot) error {
	b, err := encode(s)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if _, ok := c.data[s.Code]; ok {
		return nil
	}
	c.data[s.Code] = b
	if err := c.flush(); err != nil {
		delete(c.data, s.Code)
		return err
	}
	metrics.CatalogUpdatesTotal.WithLabelValues("file").Inc()
	c.l.Debug("catalog_file_update", "code", s.Code, "count", len(c.data))
	return nil
}

// flush 写临时文件后改名，避免读到截断内容
func (c *FileCatalog) flush() error {
	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	b, err := json.MarshalIndent(c.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := c.path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, c.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (c *FileCatalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
