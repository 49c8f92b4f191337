package Elevation

import (
	"math"

	"elevation-platform/Geo"
)

// NormalMap 行主序的单位法线图，每个元素附带一个曲率通道（核心恒写 0）
type NormalMap struct {
	Cols, Rows int
	// 每元素 4 个分量：nx, ny, nz, curvature
	Normals [][4]float32
}

// NewNormalMap 创建法线图，初始指向正上方
func NewNormalMap(cols, rows int) *NormalMap {
	nm := &NormalMap{
		Cols:    cols,
		Rows:    rows,
		Normals: make([][4]float32, cols*rows),
	}
	for i := range nm.Normals {
		nm.Normals[i] = [4]float32{0, 0, 1, 0}
	}
	return nm
}

// Set 写入 (c, r) 处法线与曲率
func (m *NormalMap) Set(c, r int, nx, ny, nz, curvature float32) {
	m.Normals[r*m.Cols+c] = [4]float32{nx, ny, nz, curvature}
}

// At 读取 (c, r) 处法线与曲率
func (m *NormalMap) At(c, r int) [4]float32 { return m.Normals[r*m.Cols+c] }

// vec3 法线构建用的三维向量
type vec3 struct{ x, y, z float64 }

func (v vec3) sub(o vec3) vec3   { return vec3{v.x - o.x, v.y - o.y, v.z - o.z} }
func (v vec3) add(o vec3) vec3   { return vec3{v.x + o.x, v.y + o.y, v.z + o.z} }
func (v vec3) scale(s float64) vec3 { return vec3{v.x * s, v.y * s, v.z * s} }
func (v vec3) cross(o vec3) vec3 {
	return vec3{
		v.y*o.z - v.z*o.y,
		v.z*o.x - v.x*o.z,
		v.x*o.y - v.y*o.x,
	}
}

// normalized 归一化；长度退化时回退为上向量，保证极点纬度也有有限结果
func (v vec3) normalized() vec3 {
	l := math.Sqrt(v.x*v.x + v.y*v.y + v.z*v.z)
	if l < 1e-12 || math.IsNaN(l) || math.IsInf(l, 0) {
		return vec3{0, 0, 1}
	}
	return vec3{v.x / l, v.y / l, v.z / l}
}

// gridNormal 求 (s, t) 处的原始法线：取四个轴向邻点（边界处夹取为中心点），
// 法线 = (东-西) × (北-南)。地理参考系下角度间距先按纬度换算为米。
func gridNormal(extent Geo.GeoExtent, hf *HeightGrid, s, t int) vec3 {
	w := hf.Cols
	h := hf.Rows

	resX := extent.Width() / float64(w-1)
	resY := extent.Height() / float64(h-1)

	e := float64(hf.At(s, t))

	dx := resX
	dy := resY
	if extent.SRS().IsGeographic() {
		mPerDeg := 2.0 * math.Pi * extent.SRS().EquatorRadius() / 360.0
		lat := extent.YMin() + resY*float64(t)
		dy = resY * mPerDeg
		dx = resX * mPerDeg * math.Cos(lat*math.Pi/180.0)
	}

	west := vec3{0, 0, e}
	east := vec3{0, 0, e}
	south := vec3{0, 0, e}
	north := vec3{0, 0, e}

	if s > 0 {
		west = vec3{-dx, 0, float64(hf.At(s-1, t))}
	}
	if s < w-1 {
		east = vec3{dx, 0, float64(hf.At(s+1, t))}
	}
	if t > 0 {
		south = vec3{0, -dy, float64(hf.At(s, t-1))}
	}
	if t < h-1 {
		north = vec3{0, dy, float64(hf.At(s, t+1))}
	}

	return east.sub(west).cross(north.sub(south))
}

// BuildNormalMap 由高程网格和逐像素回退层级差生成法线图。
// deltaLOD[t*w+s] 为采样来源层级与请求层级之差；非零时该像素的高度
// 来自更粗的祖先瓦片，需在 2^delta 对齐的角点间插值法线，否则会出现棱面。
func BuildNormalMap(extent Geo.GeoExtent, hf *HeightGrid, deltaLOD []int16, normalMap *NormalMap) {
	w := hf.Cols
	h := hf.Rows

	for t := 0; t < h; t++ {
		for s := 0; s < w; s++ {
			step := 1
			if d := deltaLOD[t*w+s]; d > 0 {
				step = 1 << uint(d)
			}

			var normal vec3
			if step == 1 {
				normal = gridNormal(extent, hf, s, t)
			} else {
				s0 := s - (s % step)
				if s0 < 0 {
					s0 = 0
				}
				s1 := s0
				if s%step != 0 {
					s1 = s0 + step
					if s1 > w-1 {
						s1 = w - 1
					}
				}
				t0 := t - (t % step)
				if t0 < 0 {
					t0 = 0
				}
				t1 := t0
				if t%step != 0 {
					t1 = t0 + step
					if t1 > h-1 {
						t1 = h - 1
					}
				}

				switch {
				case s0 == s1 && t0 == t1:
					normal = gridNormal(extent, hf, s0, t0)
				case s0 == s1:
					// 同列，沿行向线性插值
					vS := gridNormal(extent, hf, s0, t0)
					vN := gridNormal(extent, hf, s0, t1)
					normal = vS.scale(float64(t1 - t)).add(vN.scale(float64(t - t0)))
				case t0 == t1:
					// 同行，沿列向线性插值
					vW := gridNormal(extent, hf, s0, t0)
					vE := gridNormal(extent, hf, s1, t0)
					normal = vW.scale(float64(s1 - s)).add(vE.scale(float64(s - s0)))
				default:
					sw := gridNormal(extent, hf, s0, t0)
					se := gridNormal(extent, hf, s1, t0)
					nw := gridNormal(extent, hf, s0, t1)
					ne := gridNormal(extent, hf, s1, t1)
					vS := sw.scale(float64(s1 - s)).add(se.scale(float64(s - s0)))
					vN := nw.scale(float64(s1 - s)).add(ne.scale(float64(s - s0)))
					normal = vS.scale(float64(t1 - t)).add(vN.scale(float64(t - t0)))
				}
			}

			n := normal.normalized()
			normalMap.Set(s, t, float32(n.x), float32(n.y), float32(n.z), 0)
		}
	}
}
