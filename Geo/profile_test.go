package Geo

import (
	"testing"
)

// TestProfileNumTiles 测试各层级瓦片数
func TestProfileNumTiles(t *testing.T) {
	g := GlobalGeodetic()
	w, h := g.NumTiles(0)
	if w != 2 || h != 1 {
		t.Errorf("地理剖面根层应为 2x1: got %dx%d", w, h)
	}
	w, h = g.NumTiles(3)
	if w != 16 || h != 8 {
		t.Errorf("地理剖面第 3 层应为 16x8: got %dx%d", w, h)
	}

	m := SphericalMercatorProfile()
	w, h = m.NumTiles(2)
	if w != 4 || h != 4 {
		t.Errorf("墨卡托剖面第 2 层应为 4x4: got %dx%d", w, h)
	}
}

// TestProfileFullSignature 测试剖面签名的区分度
func TestProfileFullSignature(t *testing.T) {
	g := GlobalGeodetic()
	m := SphericalMercatorProfile()
	if g.FullSignature() == m.FullSignature() {
		t.Error("不同剖面的签名不应相同")
	}

	egm := g.WithVerticalDatum(NewVerticalDatum("egm96", ConstGeoid(20)))
	if g.FullSignature() == egm.FullSignature() {
		t.Error("不同垂直基准的签名不应相同")
	}
	if !g.IsHorizEquivalentTo(egm) {
		t.Error("垂直基准不影响水平等价")
	}
}

// TestProfileByName 测试按名称取剖面
func TestProfileByName(t *testing.T) {
	if ProfileByName("global-geodetic") == nil {
		t.Error("global-geodetic 应可解析")
	}
	if ProfileByName("epsg:3857") == nil {
		t.Error("epsg:3857 应可解析")
	}
	if ProfileByName("nonsense") != nil {
		t.Error("未知名称应返回 nil")
	}
}

// TestIntersectingTilesSameProfile 同剖面快速路径
func TestIntersectingTilesSameProfile(t *testing.T) {
	g := GlobalGeodetic()
	key := NewTileKey(4, 9, 3, g)
	keys := g.IntersectingTiles(key)
	if len(keys) != 1 {
		t.Fatalf("同剖面应只返回自身: got %d", len(keys))
	}
	if !keys[0].Equals(key) {
		t.Errorf("返回键不符: got %s", keys[0].Str())
	}
}

// TestIntersectingTilesCrossProfile 跨剖面相交枚举
func TestIntersectingTilesCrossProfile(t *testing.T) {
	g := GlobalGeodetic()
	m := SphericalMercatorProfile()

	// 墨卡托根瓦片覆盖全球（纬度截断到约 ±85 度）
	mercKey := NewTileKey(1, 0, 0, m)
	keys := g.IntersectingTiles(mercKey)
	if len(keys) == 0 {
		t.Fatal("跨剖面相交不应为空")
	}
	for _, k := range keys {
		if k.Profile() != g {
			t.Error("返回键应属于目标剖面")
		}
		ext, ok := mercKey.Extent().Transform(g.SRS())
		if !ok || !k.Extent().Intersects(ext) {
			t.Errorf("返回键 %s 与请求范围不相交", k.Str())
		}
	}
}
