package Geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

const (
	// WGS84 椭球赤道半径（米）
	EarthRadius = 6378137.0
	// 墨卡托投影的最大纬度（约85.05度）
	MaxMercatorLatitude = 85.05112878
	// 墨卡托投影的世界半宽（米）
	MercatorWorldHalfWidth = EarthRadius * 3.141592653589793
)

// SpatialReference 空间参考系：水平参考（地理或墨卡托投影）加可选的垂直基准。
// 垂直基准为 nil 表示椭球高（HAE）。
type SpatialReference struct {
	code       string
	geographic bool
	vdatum     *VerticalDatum
}

// 内置的两种水平参考
var (
	srsGeodetic = &SpatialReference{code: "epsg:4326", geographic: true}
	srsMercator = &SpatialReference{code: "epsg:3857", geographic: false}
)

// Geodetic 返回 WGS84 经纬度参考系（椭球高）
func Geodetic() *SpatialReference { return srsGeodetic }

// SphericalMercator 返回球面墨卡托参考系（椭球高）
func SphericalMercator() *SpatialReference { return srsMercator }

// WithVerticalDatum 返回绑定了指定垂直基准的同水平参考系副本
func (s *SpatialReference) WithVerticalDatum(vd *VerticalDatum) *SpatialReference {
	return &SpatialReference{code: s.code, geographic: s.geographic, vdatum: vd}
}

// Code 返回水平参考的标识（如 epsg:4326）
func (s *SpatialReference) Code() string { return s.code }

// IsGeographic 水平参考是否为地理坐标（角度单位）
func (s *SpatialReference) IsGeographic() bool { return s.geographic }

// VerticalDatum 返回垂直基准（nil 表示 HAE）
func (s *SpatialReference) VerticalDatum() *VerticalDatum { return s.vdatum }

// EquatorRadius 返回椭球赤道半径（米）
func (s *SpatialReference) EquatorRadius() float64 { return EarthRadius }

// IsHorizEquivalentTo 判断水平参考是否等价（忽略垂直基准）
func (s *SpatialReference) IsHorizEquivalentTo(o *SpatialReference) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.code == o.code
}

// IsVertEquivalentTo 判断垂直基准是否等价
func (s *SpatialReference) IsVertEquivalentTo(o *SpatialReference) bool {
	var a, b *VerticalDatum
	if s != nil {
		a = s.vdatum
	}
	if o != nil {
		b = o.vdatum
	}
	return a.EquivalentTo(b)
}

// TransformPoint 将 (x, y) 从本参考系水平变换到目标参考系。
// 两侧水平等价时原样返回。失败（如 nil 目标）返回 ok=false。
func (s *SpatialReference) TransformPoint(x, y float64, to *SpatialReference) (float64, float64, bool) {
	if s == nil || to == nil {
		return x, y, false
	}
	if s.IsHorizEquivalentTo(to) {
		return x, y, true
	}
	if s.geographic && !to.geographic {
		// 超出墨卡托可表示范围的纬度夹取到极限值
		if y > MaxMercatorLatitude {
			y = MaxMercatorLatitude
		}
		if y < -MaxMercatorLatitude {
			y = -MaxMercatorLatitude
		}
		p := project.WGS84.ToMercator(orb.Point{x, y})
		return p[0], p[1], true
	}
	if !s.geographic && to.geographic {
		p := project.Mercator.ToWGS84(orb.Point{x, y})
		return p[0], p[1], true
	}
	return x, y, false
}

// ToGeographic 将本参考系中的 (x, y) 转为经纬度，供大地水准面查询使用
func (s *SpatialReference) ToGeographic(x, y float64) (lon, lat float64) {
	if s == nil || s.geographic {
		return x, y
	}
	p := project.Mercator.ToWGS84(orb.Point{x, y})
	return p[0], p[1]
}
