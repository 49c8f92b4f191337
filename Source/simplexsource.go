package Source

import (
	opensimplex "github.com/ojrac/opensimplex-go"

	"elevation-platform/Elevation"
	"elevation-platform/Geo"
)

// SimplexSource 单纯形噪声地形驱动：按瓦片范围程序化生成连续地形，
// 处处有数据，适合无外部数据时的演示与性能压测。
type SimplexSource struct {
	name       string
	noise      opensimplex.Noise
	tileSize   int
	amplitude  float64
	wavelength float64
}

// NewSimplexSource 创建驱动
// amplitude: 地形起伏幅度（米）；wavelength: 噪声波长（剖面单位）
func NewSimplexSource(name string, seed int64, tileSize int, amplitude, wavelength float64) *SimplexSource {
	if tileSize < Elevation.MinGridSize {
		tileSize = Elevation.DefaultTileSize
	}
	if amplitude <= 0 {
		amplitude = 3000
	}
	if wavelength <= 0 {
		wavelength = 30
	}
	return &SimplexSource{
		name:       name,
		noise:      opensimplex.New(seed),
		tileSize:   tileSize,
		amplitude:  amplitude,
		wavelength: wavelength,
	}
}

// Name 驱动名
func (s *SimplexSource) Name() string { return s.name }

// OK 驱动是否可用
func (s *SimplexSource) OK() bool { return true }

// CreateHeightGrid 按瓦片范围采样噪声场生成网格
func (s *SimplexSource) CreateHeightGrid(key Geo.TileKey, op Elevation.GridOperation, progress Elevation.ProgressCallback) *Elevation.HeightGrid {
	ext := key.Extent()
	if !ext.Valid() {
		return nil
	}

	grid := Elevation.NewHeightGrid(s.tileSize, s.tileSize)
	dx := ext.Width() / float64(s.tileSize-1)
	dy := ext.Height() / float64(s.tileSize-1)

	for r := 0; r < s.tileSize; r++ {
		y := ext.YMin() + dy*float64(r)
		for c := 0; c < s.tileSize; c++ {
			x := ext.XMin() + dx*float64(c)
			v := s.noise.Eval2(x/s.wavelength, y/s.wavelength)
			grid.Set(c, r, float32(v*s.amplitude))
		}
	}

	if op != nil {
		op.Apply(grid)
	}
	return grid
}
