package Elevation

import (
	"sort"

	"elevation-platform/Geo"
)

// InterpolationMethod 采样插值方式
type InterpolationMethod int

const (
	InterpBilinear InterpolationMethod = iota
	InterpNearest
)

// GeoHeightField 带地理范围的高程网格，可附带法线图
type GeoHeightField struct {
	grid    *HeightGrid
	normals *NormalMap
	extent  Geo.GeoExtent
}

// InvalidGeoHeightField 无效结果哨兵
var InvalidGeoHeightField = GeoHeightField{}

// NewGeoHeightField 创建地理高程场
func NewGeoHeightField(grid *HeightGrid, extent Geo.GeoExtent) GeoHeightField {
	return GeoHeightField{grid: grid, extent: extent}
}

// Valid 是否有效
func (f GeoHeightField) Valid() bool { return f.grid != nil && f.extent.Valid() }

// Grid 底层网格
func (f GeoHeightField) Grid() *HeightGrid { return f.grid }

// NormalMap 附带的法线图（可能为 nil）
func (f GeoHeightField) NormalMap() *NormalMap { return f.normals }

// Extent 地理范围
func (f GeoHeightField) Extent() Geo.GeoExtent { return f.extent }

// XResolution 经向分辨率（范围单位每采样）
func (f GeoHeightField) XResolution() float64 {
	if !f.Valid() || f.grid.Cols < 2 {
		return 0
	}
	return f.extent.Width() / float64(f.grid.Cols-1)
}

// GetElevation 在 (x, y)（querySRS 坐标）处采样。
// 点先水平变换到网格参考系；落在范围外返回 ok=false。
// 采样值非 NoDataValue 时按网格参考系与 outSRS 的垂直基准差换算。
func (f GeoHeightField) GetElevation(querySRS *Geo.SpatialReference, x, y float64, interp InterpolationMethod, outSRS *Geo.SpatialReference) (float32, bool) {
	if !f.Valid() {
		return NoDataValue, false
	}
	gridSRS := f.extent.SRS()
	gx, gy := x, y
	if !querySRS.IsHorizEquivalentTo(gridSRS) {
		var ok bool
		gx, gy, ok = querySRS.TransformPoint(x, y, gridSRS)
		if !ok {
			return NoDataValue, false
		}
	}
	if !f.extent.Contains(gx, gy) {
		return NoDataValue, false
	}

	fc := (gx - f.extent.XMin()) / f.extent.Width() * float64(f.grid.Cols-1)
	fr := (gy - f.extent.YMin()) / f.extent.Height() * float64(f.grid.Rows-1)
	v := f.grid.sample(fc, fr, interp)
	if v == NoDataValue {
		return NoDataValue, true
	}

	fromVD := gridSRS.VerticalDatum()
	var toVD *Geo.VerticalDatum
	if outSRS != nil {
		toVD = outSRS.VerticalDatum()
	}
	if !fromVD.EquivalentTo(toVD) {
		lon, lat := gridSRS.ToGeographic(gx, gy)
		v += float32(Geo.VDatumShift(fromVD, toVD, lon, lat))
	}
	return v, true
}

// SortByResolution 按分辨率从细到粗排序
func SortByResolution(fields []GeoHeightField) {
	sort.SliceStable(fields, func(i, j int) bool {
		return fields[i].XResolution() < fields[j].XResolution()
	})
}

// TransformVerticalDatum 将网格高度就地从 from 基准换算到 to 基准。
// NoDataValue 样本保持不变。extent 用于求各采样点的经纬度。
func TransformVerticalDatum(from, to *Geo.VerticalDatum, extent Geo.GeoExtent, grid *HeightGrid) {
	if grid == nil || from.EquivalentTo(to) || !extent.Valid() {
		return
	}
	srs := extent.SRS()
	dx := extent.Width() / float64(grid.Cols-1)
	dy := extent.Height() / float64(grid.Rows-1)
	for r := 0; r < grid.Rows; r++ {
		y := extent.YMin() + dy*float64(r)
		for c := 0; c < grid.Cols; c++ {
			v := grid.At(c, r)
			if v == NoDataValue {
				continue
			}
			x := extent.XMin() + dx*float64(c)
			lon, lat := srs.ToGeographic(x, y)
			grid.Set(c, r, v+float32(Geo.VDatumShift(from, to, lon, lat)))
		}
	}
}
