package Geo

import (
	"testing"
)

// TestTileKeyBasics 测试键的有效性与字符串形式
func TestTileKeyBasics(t *testing.T) {
	p := GlobalGeodetic()

	key := NewTileKey(2, 3, 1, p)
	if !key.Valid() {
		t.Fatal("键应有效")
	}
	if key.Str() != "2/3/1" {
		t.Errorf("Str 不符: got %s, want 2/3/1", key.Str())
	}

	if InvalidTileKey.Valid() {
		t.Error("无效键不应通过校验")
	}
	// 行列号越界
	if NewTileKey(0, 2, 0, p).Valid() {
		t.Error("根层列号 2 应无效（根层为 2x1）")
	}
	if NewTileKey(0, 0, 1, p).Valid() {
		t.Error("根层行号 1 应无效")
	}
}

// TestTileKeyParentAncestor 测试父键与祖先键
func TestTileKeyParentAncestor(t *testing.T) {
	p := GlobalGeodetic()

	key := NewTileKey(3, 5, 4, p)
	parent := key.Parent()
	if parent.Level() != 2 || parent.X() != 2 || parent.Y() != 2 {
		t.Errorf("父键不符: got %s, want 2/2/2", parent.Str())
	}

	anc := key.AncestorAt(0)
	if anc.Level() != 0 || anc.X() != 0 || anc.Y() != 0 {
		t.Errorf("祖先键不符: got %s, want 0/0/0", anc.Str())
	}
	if !key.AncestorAt(5).Equals(key) {
		t.Error("层级不低于当前时应返回自身")
	}

	root := NewTileKey(0, 0, 0, p)
	if root.Parent().Valid() {
		t.Error("根层父键应无效")
	}
}

// TestTileKeyNeighbor 测试相邻键的环绕与夹取
func TestTileKeyNeighbor(t *testing.T) {
	p := GlobalGeodetic()

	// 层级 1 共 4x2 块
	key := NewTileKey(1, 0, 0, p)
	west := key.Neighbor(-1, 0)
	if west.X() != 3 {
		t.Errorf("经向越界应环绕: got x=%d, want 3", west.X())
	}
	north := key.Neighbor(0, -1)
	if north.Valid() {
		t.Error("纬向越界应返回无效键")
	}
	south := key.Neighbor(0, 1)
	if !south.Valid() || south.Y() != 1 {
		t.Errorf("南向相邻键不符: got %v", south)
	}
}

// TestTileKeyExtent 测试瓦片范围（行号从北向南）
func TestTileKeyExtent(t *testing.T) {
	p := GlobalGeodetic()

	// 0/0/0 是西半球
	ext := NewTileKey(0, 0, 0, p).Extent()
	if ext.XMin() != -180 || ext.XMax() != 0 || ext.YMin() != -90 || ext.YMax() != 90 {
		t.Errorf("0/0/0 范围不符: %v", ext)
	}

	// 1/0/0 是西北角
	ext = NewTileKey(1, 0, 0, p).Extent()
	if ext.YMin() != 0 || ext.YMax() != 90 {
		t.Errorf("1/0/0 应在北半球: ymin=%f ymax=%f", ext.YMin(), ext.YMax())
	}
}

// TestMapResolution 测试分辨率映射
func TestMapResolution(t *testing.T) {
	p := GlobalGeodetic()

	// 同尺寸直接返回原键
	key := NewTileKey(5, 10, 7, p)
	if !key.MapResolution(257, 257).Equals(key) {
		t.Error("同尺寸应返回原键")
	}

	// 源采样尺寸远小于目标时映射到更细层级
	finer := key.MapResolution(257, 33)
	if finer.Level() <= key.Level() {
		t.Errorf("源瓦片更粗时应映射到更细层级: got %d", finer.Level())
	}

	// 源采样尺寸更大时映射到更粗层级
	coarser := key.MapResolution(33, 257)
	if coarser.Level() >= key.Level() {
		t.Errorf("源瓦片更细时应映射到更粗层级: got %d", coarser.Level())
	}
	// 映射后的键必须覆盖原键范围
	if !coarser.Equals(key.AncestorAt(coarser.Level())) {
		t.Error("粗层映射键应是原键的祖先")
	}
}
