package catalog

import (
	"context"
	"errors"
)

// ChainStore：按顺序查找，首个命中即返回；写入下发到全部后端
type ChainStore struct {
	list []Catalog
}

func Chain(list ...Catalog) *ChainStore {
	out := make([]Catalog, 0, len(list))
	for _, c := range list {
		if c != nil {
			out = append(out, c)
		}
	}
	return &ChainStore{list: out}
}

// Find：后端故障不阻断后续查找，全部未命中时返回遇到的错误
func (c *ChainStore) Find(ctx context.Context, code string) (*Snapshot, error) {
	var errs []error
	for _, s := range c.list {
		snap, err := s.Find(ctx, code)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if snap != nil {
			return snap, nil
		}
	}
	return nil, errors.Join(errs...)
}

func (c *ChainStore) Update(ctx context.Context, snap *Snapshot) error {
	var errs []error
	for _, s := range c.list {
		if err := s.Update(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *ChainStore) Close() error {
	var errs []error
	for _, s := range c.list {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
