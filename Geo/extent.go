package Geo

import (
	"fmt"

	"github.com/paulmach/orb"
)

// GeoExtent 带空间参考的矩形范围
type GeoExtent struct {
	srs   *SpatialReference
	bound orb.Bound
}

// NewGeoExtent 创建范围
func NewGeoExtent(srs *SpatialReference, xmin, ymin, xmax, ymax float64) GeoExtent {
	return GeoExtent{
		srs:   srs,
		bound: orb.Bound{Min: orb.Point{xmin, ymin}, Max: orb.Point{xmax, ymax}},
	}
}

// Valid 范围是否有效
func (e GeoExtent) Valid() bool {
	return e.srs != nil && e.bound.Max[0] > e.bound.Min[0] && e.bound.Max[1] > e.bound.Min[1]
}

// SRS 返回空间参考
func (e GeoExtent) SRS() *SpatialReference { return e.srs }

// Bound 返回底层 orb 边界
func (e GeoExtent) Bound() orb.Bound { return e.bound }

func (e GeoExtent) XMin() float64 { return e.bound.Min[0] }
func (e GeoExtent) YMin() float64 { return e.bound.Min[1] }
func (e GeoExtent) XMax() float64 { return e.bound.Max[0] }
func (e GeoExtent) YMax() float64 { return e.bound.Max[1] }

// Width 范围宽度
func (e GeoExtent) Width() float64 { return e.bound.Max[0] - e.bound.Min[0] }

// Height 范围高度
func (e GeoExtent) Height() float64 { return e.bound.Max[1] - e.bound.Min[1] }

// Contains 点是否落在范围内（含边界）
func (e GeoExtent) Contains(x, y float64) bool {
	return x >= e.bound.Min[0] && x <= e.bound.Max[0] &&
		y >= e.bound.Min[1] && y <= e.bound.Max[1]
}

// Intersects 与另一范围（同参考系）是否相交
func (e GeoExtent) Intersects(o GeoExtent) bool {
	return e.bound.Min[0] < o.bound.Max[0] && e.bound.Max[0] > o.bound.Min[0] &&
		e.bound.Min[1] < o.bound.Max[1] && e.bound.Max[1] > o.bound.Min[1]
}

// Transform 将范围水平变换到目标参考系（按四角取包围盒）
func (e GeoExtent) Transform(to *SpatialReference) (GeoExtent, bool) {
	if e.srs.IsHorizEquivalentTo(to) {
		return GeoExtent{srs: to, bound: e.bound}, true
	}
	corners := [4][2]float64{
		{e.XMin(), e.YMin()}, {e.XMax(), e.YMin()},
		{e.XMin(), e.YMax()}, {e.XMax(), e.YMax()},
	}
	var xmin, ymin, xmax, ymax float64
	for i, c := range corners {
		x, y, ok := e.srs.TransformPoint(c[0], c[1], to)
		if !ok {
			return GeoExtent{}, false
		}
		if i == 0 || x < xmin {
			xmin = x
		}
		if i == 0 || x > xmax {
			xmax = x
		}
		if i == 0 || y < ymin {
			ymin = y
		}
		if i == 0 || y > ymax {
			ymax = y
		}
	}
	return NewGeoExtent(to, xmin, ymin, xmax, ymax), true
}

// String 调试输出
func (e GeoExtent) String() string {
	if !e.Valid() {
		return "[invalid extent]"
	}
	return fmt.Sprintf("[%s %.6f,%.6f => %.6f,%.6f]",
		e.srs.Code(), e.XMin(), e.YMin(), e.XMax(), e.YMax())
}
