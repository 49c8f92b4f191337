package Geo

// Geoid 大地水准面模型：给出某经纬度处平均海平面相对椭球的高度（米）
type Geoid interface {
	Offset(lon, lat float64) float32
}

// ConstGeoid 常量大地水准面（全球同一偏移），测试与简化场景使用
type ConstGeoid float32

func (g ConstGeoid) Offset(lon, lat float64) float32 { return float32(g) }

// VerticalDatum 垂直基准。带 Geoid 的基准表示海拔（MSL），
// 高度值 = 椭球高 - 水准面偏移。nil *VerticalDatum 表示椭球高（HAE）。
type VerticalDatum struct {
	name  string
	geoid Geoid
}

// NewVerticalDatum 创建垂直基准
func NewVerticalDatum(name string, geoid Geoid) *VerticalDatum {
	return &VerticalDatum{name: name, geoid: geoid}
}

// Name 基准名称
func (v *VerticalDatum) Name() string {
	if v == nil {
		return "hae"
	}
	return v.name
}

// Geoid 返回大地水准面模型（可能为 nil）
func (v *VerticalDatum) Geoid() Geoid {
	if v == nil {
		return nil
	}
	return v.geoid
}

// EquivalentTo 判断两个基准是否等价（按名称；双 nil 等价）
func (v *VerticalDatum) EquivalentTo(o *VerticalDatum) bool {
	if v == nil || o == nil {
		return v == o
	}
	return v.name == o.name
}

// offsetAt 返回该基准在 (lon, lat) 处相对椭球的偏移；HAE 恒为 0
func (v *VerticalDatum) offsetAt(lon, lat float64) float64 {
	if v == nil || v.geoid == nil {
		return 0
	}
	return float64(v.geoid.Offset(lon, lat))
}

// VDatumShift 计算把高度值从 from 基准换算到 to 基准所需的加量。
// 先把 from 中的值抬升到椭球高，再落回 to：
// h_to = (h_from + offset_from) - offset_to。
func VDatumShift(from, to *VerticalDatum, lon, lat float64) float64 {
	if from.EquivalentTo(to) {
		return 0
	}
	return from.offsetAt(lon, lat) - to.offsetAt(lon, lat)
}
