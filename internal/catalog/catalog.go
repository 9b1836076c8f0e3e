// 包 catalog：按地块编号缓存元数据快照（不含几何），支持文件、SQL、Redis 多种后端与组合
package catalog

import (
	"context"
	"encoding/json"
	"errors"

	"parcel-api/internal/geom"
)

var (
	ErrClosed = errors.New("catalog: closed")
	ErrNoCode = errors.New("catalog: snapshot without code")
)

// 文档注释：元数据快照
// 背景：恢复时据此跳过要素查询，直接对已下载的光栅重跑轮廓与装配；几何本身从不缓存。
// 约束：JSON 键固定为 code/area_type/attrs/image_path/center/extent/image_extent/width/height；
// Center 为原生坐标系中心点，恢复时再按目标坐标系转换。
type Snapshot struct {
	Code        string         `json:"code"`
	AreaType    int            `json:"area_type"`
	Attrs       map[string]any `json:"attrs"`
	ImagePath   string         `json:"image_path"`
	Center      *geom.Point    `json:"center"`
	Extent      *geom.Extent   `json:"extent"`
	ImageExtent *geom.Extent   `json:"image_extent"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
}

// 文档注释：快照存储
// 约束：
// - Find 未命中返回 (nil, nil)，错误仅表示后端故障；
// - Update 先写为准，同一编号的后续写入被忽略并返回 nil；
// - 实现须可被多个 goroutine 并发调用。
type Catalog interface {
	Find(ctx context.Context, code string) (*Snapshot, error)
	Update(ctx context.Context, s *Snapshot) error
	Close() error
}

func encode(s *Snapshot) ([]byte, error) {
	if s == nil || s.Code == "" {
		return nil, ErrNoCode
	}
	return json.Marshal(s)
}

func decode(b []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// clone 通过序列化深拷贝，调用方修改返回值不影响缓存
func clone(s *Snapshot) *Snapshot {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	c, _ := decode(b)
	return c
}
