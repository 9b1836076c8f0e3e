package catalog

import (
	"context"
	"sync"
)

type memoEntry struct {
	mu     sync.Mutex
	looked bool
	snap   *Snapshot
}

// 文档注释：进程内记忆层
// 背景：同一编号在进程生命周期内最多访问一次底层查找（命中与未命中都记住），
// 写入每个编号最多一次且不覆盖；同编号的 Find/Update 串行执行，不同编号互不阻塞。
// 约束：底层查找出错时不记忆，下次调用会重新查找。
type MemoStore struct {
	inner   Catalog
	mu      sync.Mutex
	entries map[string]*memoEntry
}

func Memo(inner Catalog) *MemoStore {
	return &MemoStore{inner: inner, entries: make(map[string]*memoEntry)}
}

func (m *MemoStore) entry(code string) *memoEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[code]
	if !ok {
		e = &memoEntry{}
		m.entries[code] = e
	}
	return e
}

func (m *MemoStore) Find(ctx context.Context, code string) (*Snapshot, error) {
	e := m.entry(code)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.looked {
		return clone(e.snap), nil
	}
	snap, err := m.inner.Find(ctx, code)
	if err != nil {
		return nil, err
	}
	e.looked = true
	e.snap = clone(snap)
	return snap, nil
}

func (m *MemoStore) Update(ctx context.Context, s *Snapshot) error {
	if s == nil || s.Code == "" {
		return ErrNoCode
	}
	e := m.entry(s.Code)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.snap != nil {
		return nil
	}
	if err := m.inner.Update(ctx, s); err != nil {
		return err
	}
	e.looked = true
	e.snap = clone(s)
	return nil
}

func (m *MemoStore) Close() error { return m.inner.Close() }
