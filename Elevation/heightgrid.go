// Package Elevation 实现瓦片高程的单层合成与多层复合：
// 按键从数据源取得校验过、垂直基准换算过的高程网格（带内存缓存、
// 持久化缓存与失败键黑名单），再逐像素在图层栈中选取最优底层、
// 叠加偏移层，并生成随回退层级插值的法线图。
package Elevation

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// NoDataValue 全局无数据哨兵值
	NoDataValue float32 = -32768

	// 网格尺寸的合法区间
	MinGridSize = 2
	MaxGridSize = 1024

	// 默认图层参数
	DefaultNoDataValue   float32 = -32767
	DefaultMinValidValue float32 = -32000
	DefaultMaxValidValue float32 = 32000
)

// 高程网格二进制编码的魔数与版本
var heightGridMagic = [4]byte{'E', 'H', 'G', '1'}

// HeightGrid 行主序的单精度高程网格
type HeightGrid struct {
	Cols, Rows int
	// 原点（西南角）与采样步长，由瓦片范围标定
	OriginX, OriginY float64
	XStep, YStep     float64
	// 边缘宽度，当前核心恒为 0
	Border  int
	Heights []float32
}

// NewHeightGrid 创建网格并以 NoDataValue 填充
func NewHeightGrid(cols, rows int) *HeightGrid {
	g := &HeightGrid{
		Cols:    cols,
		Rows:    rows,
		Heights: make([]float32, cols*rows),
	}
	for i := range g.Heights {
		g.Heights[i] = NoDataValue
	}
	return g
}

// Validate 校验网格合法性：两轴尺寸在 [2,1024] 且存储长度等于行列积
func (g *HeightGrid) Validate() error {
	if g == nil {
		return errors.New("网格为空")
	}
	if g.Cols < MinGridSize || g.Cols > MaxGridSize {
		return fmt.Errorf("列数 %d 超出 [%d,%d]", g.Cols, MinGridSize, MaxGridSize)
	}
	if g.Rows < MinGridSize || g.Rows > MaxGridSize {
		return fmt.Errorf("行数 %d 超出 [%d,%d]", g.Rows, MinGridSize, MaxGridSize)
	}
	if len(g.Heights) != g.Cols*g.Rows {
		return fmt.Errorf("存储长度 %d 与 %dx%d 不符", len(g.Heights), g.Cols, g.Rows)
	}
	return nil
}

// Valid 校验是否通过
func (g *HeightGrid) Valid() bool { return g.Validate() == nil }

// At 取 (c, r) 处高度
func (g *HeightGrid) At(c, r int) float32 { return g.Heights[r*g.Cols+c] }

// Set 写 (c, r) 处高度
func (g *HeightGrid) Set(c, r int, v float32) { g.Heights[r*g.Cols+c] = v }

// Clone 深拷贝
func (g *HeightGrid) Clone() *HeightGrid {
	if g == nil {
		return nil
	}
	out := *g
	out.Heights = make([]float32, len(g.Heights))
	copy(out.Heights, g.Heights)
	return &out
}

// sample 按浮点网格坐标采样。双线性插值在任一角点为 NoDataValue 时
// 整体返回 NoDataValue，避免无数据值掺入有效高度。
func (g *HeightGrid) sample(fc, fr float64, interp InterpolationMethod) float32 {
	if fc < 0 || fr < 0 || fc > float64(g.Cols-1) || fr > float64(g.Rows-1) {
		return NoDataValue
	}
	if interp == InterpNearest {
		c := int(math.Round(fc))
		r := int(math.Round(fr))
		return g.At(c, r)
	}
	c0 := int(fc)
	r0 := int(fr)
	c1 := c0 + 1
	r1 := r0 + 1
	if c1 > g.Cols-1 {
		c1 = g.Cols - 1
	}
	if r1 > g.Rows-1 {
		r1 = g.Rows - 1
	}
	v00 := g.At(c0, r0)
	v10 := g.At(c1, r0)
	v01 := g.At(c0, r1)
	v11 := g.At(c1, r1)
	if v00 == NoDataValue || v10 == NoDataValue || v01 == NoDataValue || v11 == NoDataValue {
		return NoDataValue
	}
	fx := fc - float64(c0)
	fy := fr - float64(r0)
	top := float64(v00)*(1-fx) + float64(v10)*fx
	bot := float64(v01)*(1-fx) + float64(v11)*fx
	return float32(top*(1-fy) + bot*fy)
}

// Encode 将网格编码为缓存块（小端）
func (g *HeightGrid) Encode() ([]byte, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write(heightGridMagic[:])
	hdr := []interface{}{
		int32(g.Cols), int32(g.Rows),
		g.OriginX, g.OriginY,
		g.XStep, g.YStep,
		int32(g.Border),
	}
	for _, v := range hdr {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	if err := binary.Write(&buf, binary.LittleEndian, g.Heights); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeHeightGrid 从缓存块解码网格
func DecodeHeightGrid(data []byte) (*HeightGrid, error) {
	if len(data) < 4 || !bytes.Equal(data[:4], heightGridMagic[:]) {
		return nil, errors.New("高程网格块魔数不符")
	}
	reader := bytes.NewReader(data[4:])
	var cols, rows, border int32
	g := &HeightGrid{}
	if err := binary.Read(reader, binary.LittleEndian, &cols); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.LittleEndian, &rows); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.LittleEndian, &g.OriginX); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.LittleEndian, &g.OriginY); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.LittleEndian, &g.XStep); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.LittleEndian, &g.YStep); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.LittleEndian, &border); err != nil {
		return nil, err
	}
	if cols < 1 || rows < 1 || cols > MaxGridSize || rows > MaxGridSize {
		return nil, fmt.Errorf("高程网格块尺寸非法: %dx%d", cols, rows)
	}
	g.Cols = int(cols)
	g.Rows = int(rows)
	g.Border = int(border)
	g.Heights = make([]float32, g.Cols*g.Rows)
	if err := binary.Read(reader, binary.LittleEndian, g.Heights); err != nil {
		return nil, err
	}
	return g, nil
}
