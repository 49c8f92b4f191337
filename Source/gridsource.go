// Package Source 提供高程图层可挂接的瓦片数据源驱动：
// 内存预置网格驱动（测试与导入数据场景）与单纯形噪声地形驱动（演示与压测）。
package Source

import (
	"sync"

	"elevation-platform/Elevation"
	"elevation-platform/Geo"
)

// GridSource 内存预置网格驱动：按键返回事先写入的高程网格。
// 未预置的键视为无数据。可人为切换失败状态以演练黑名单路径。
type GridSource struct {
	mu    sync.RWMutex
	name  string
	grids map[string]*Elevation.HeightGrid
	fail  bool
}

// NewGridSource 创建驱动
func NewGridSource(name string) *GridSource {
	return &GridSource{name: name, grids: make(map[string]*Elevation.HeightGrid)}
}

// Name 驱动名
func (s *GridSource) Name() string { return s.name }

// OK 驱动是否可用
func (s *GridSource) OK() bool { return true }

// SetGrid 预置某键的网格
func (s *GridSource) SetGrid(key Geo.TileKey, grid *Elevation.HeightGrid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grids[key.Str()] = grid
}

// SetFail 切换失败状态；失败期间所有取数返回 nil
func (s *GridSource) SetFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

// MayHaveData 是否预置了该键的数据
func (s *GridSource) MayHaveData(key Geo.TileKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.grids[key.Str()]
	return ok
}

// CreateHeightGrid 取出预置网格的深拷贝并做无数据规范化
func (s *GridSource) CreateHeightGrid(key Geo.TileKey, op Elevation.GridOperation, progress Elevation.ProgressCallback) *Elevation.HeightGrid {
	s.mu.RLock()
	grid, ok := s.grids[key.Str()]
	fail := s.fail
	s.mu.RUnlock()

	if fail || !ok {
		return nil
	}
	out := grid.Clone()
	if op != nil {
		op.Apply(out)
	}
	return out
}
