package Geo

import (
	"fmt"
)

// 瓦片金字塔最大层级
const MaxTileLevel = 30

// Profile 瓦片金字塔剖面：水平参考系（含垂直基准）、世界范围与根层瓦片布局。
// 全局地理剖面根层为 2x1，球面墨卡托剖面根层为 1x1。
type Profile struct {
	name       string
	srs        *SpatialReference
	extent     GeoExtent
	tilesWide0 int
	tilesHigh0 int
}

// GlobalGeodetic 全球地理剖面（EPSG:4326，根层 2x1，椭球高）
func GlobalGeodetic() *Profile {
	p := &Profile{name: "global-geodetic", srs: Geodetic(), tilesWide0: 2, tilesHigh0: 1}
	p.extent = NewGeoExtent(p.srs, -180, -90, 180, 90)
	return p
}

// SphericalMercatorProfile 球面墨卡托剖面（EPSG:3857，根层 1x1，椭球高）
func SphericalMercatorProfile() *Profile {
	p := &Profile{name: "spherical-mercator", srs: SphericalMercator(), tilesWide0: 1, tilesHigh0: 1}
	p.extent = NewGeoExtent(p.srs,
		-MercatorWorldHalfWidth, -MercatorWorldHalfWidth,
		MercatorWorldHalfWidth, MercatorWorldHalfWidth)
	return p
}

// ProfileByName 按名称取内置剖面；未知名称返回 nil
func ProfileByName(name string) *Profile {
	switch name {
	case "global-geodetic", "geodetic", "epsg:4326":
		return GlobalGeodetic()
	case "spherical-mercator", "mercator", "epsg:3857":
		return SphericalMercatorProfile()
	}
	return nil
}

// WithVerticalDatum 返回绑定了垂直基准的剖面副本
func (p *Profile) WithVerticalDatum(vd *VerticalDatum) *Profile {
	srs := p.srs.WithVerticalDatum(vd)
	return &Profile{
		name:       p.name,
		srs:        srs,
		extent:     NewGeoExtent(srs, p.extent.XMin(), p.extent.YMin(), p.extent.XMax(), p.extent.YMax()),
		tilesWide0: p.tilesWide0,
		tilesHigh0: p.tilesHigh0,
	}
}

// Name 剖面名称
func (p *Profile) Name() string { return p.name }

// SRS 剖面的空间参考（含垂直基准）
func (p *Profile) SRS() *SpatialReference { return p.srs }

// Extent 世界范围
func (p *Profile) Extent() GeoExtent { return p.extent }

// IsHorizEquivalentTo 两剖面水平是否等价（忽略垂直基准）
func (p *Profile) IsHorizEquivalentTo(o *Profile) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.srs.IsHorizEquivalentTo(o.srs) &&
		p.tilesWide0 == o.tilesWide0 && p.tilesHigh0 == o.tilesHigh0
}

// FullSignature 剖面的稳定标识，用于构造缓存键。
// 含水平参考、根层布局与垂直基准名，保证不同剖面不会生成相同键。
func (p *Profile) FullSignature() string {
	return fmt.Sprintf("%s_%dx%d_%s",
		p.srs.Code(), p.tilesWide0, p.tilesHigh0, p.srs.VerticalDatum().Name())
}

// NumTiles 指定层级的横向/纵向瓦片数
func (p *Profile) NumTiles(level int) (int, int) {
	return p.tilesWide0 << uint(level), p.tilesHigh0 << uint(level)
}

// tileWidth 指定层级单块瓦片的宽度（剖面单位）
func (p *Profile) tileWidth(level int) float64 {
	tw, _ := p.NumTiles(level)
	return p.extent.Width() / float64(tw)
}

// tileHeight 指定层级单块瓦片的高度（剖面单位）
func (p *Profile) tileHeight(level int) float64 {
	_, th := p.NumTiles(level)
	return p.extent.Height() / float64(th)
}

// TileExtent 计算瓦片 (level, x, y) 的范围。y 从北向南递增。
func (p *Profile) TileExtent(level, x, y int) GeoExtent {
	tw := p.tileWidth(level)
	th := p.tileHeight(level)
	xmin := p.extent.XMin() + float64(x)*tw
	ymax := p.extent.YMax() - float64(y)*th
	return NewGeoExtent(p.srs, xmin, ymax-th, xmin+tw, ymax)
}

// equivalentLevel 返回本剖面中与 (src, srcLevel) 经向瓦片跨度一致的层级
func (p *Profile) equivalentLevel(src *Profile, srcLevel int) int {
	srcTiles := src.tilesWide0 << uint(srcLevel)
	level := 0
	for (p.tilesWide0<<uint(level)) < srcTiles && level < MaxTileLevel {
		level++
	}
	return level
}

// IntersectingTiles 枚举本剖面中与给定键范围相交的瓦片键。
// 键所在剖面与本剖面不同（跨剖面拼装）时按等效层级展开。
func (p *Profile) IntersectingTiles(key TileKey) []TileKey {
	if !key.Valid() {
		return nil
	}
	if key.Profile().IsHorizEquivalentTo(p) {
		return []TileKey{NewTileKey(key.Level(), key.X(), key.Y(), p)}
	}

	ext, ok := key.Extent().Transform(p.srs)
	if !ok || !ext.Intersects(p.extent) {
		return nil
	}

	level := p.equivalentLevel(key.Profile(), key.Level())
	tw := p.tileWidth(level)
	th := p.tileHeight(level)
	numW, numH := p.NumTiles(level)

	// 边界重合时的数值保护
	epsX := tw * 1e-9
	epsY := th * 1e-9

	c0 := int((ext.XMin() - p.extent.XMin() + epsX) / tw)
	c1 := int((ext.XMax() - p.extent.XMin() - epsX) / tw)
	r0 := int((p.extent.YMax() - ext.YMax() + epsY) / th)
	r1 := int((p.extent.YMax() - ext.YMin() - epsY) / th)

	c0 = clampInt(c0, 0, numW-1)
	c1 = clampInt(c1, 0, numW-1)
	r0 = clampInt(r0, 0, numH-1)
	r1 = clampInt(r1, 0, numH-1)

	var keys []TileKey
	for y := r0; y <= r1; y++ {
		for x := c0; x <= c1; x++ {
			keys = append(keys, NewTileKey(level, x, y, p))
		}
	}
	return keys
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
