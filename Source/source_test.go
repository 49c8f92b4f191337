package Source

import (
	"testing"

	"elevation-platform/Elevation"
	"elevation-platform/Geo"
)

// TestGridSource 预置网格驱动的取数与失败演练
func TestGridSource(t *testing.T) {
	src := NewGridSource("grid")
	key := Geo.NewTileKey(3, 2, 1, Geo.GlobalGeodetic())

	if src.MayHaveData(key) {
		t.Error("未预置的键不应有数据")
	}
	if grid := src.CreateHeightGrid(key, nil, nil); grid != nil {
		t.Error("未预置的键应返回 nil")
	}

	seed := Elevation.NewHeightGrid(5, 5)
	for i := range seed.Heights {
		seed.Heights[i] = 42
	}
	src.SetGrid(key, seed)

	if !src.MayHaveData(key) {
		t.Error("预置后应报告有数据")
	}
	out := src.CreateHeightGrid(key, nil, nil)
	if out == nil {
		t.Fatal("预置后取数应成功")
	}
	// 返回的是深拷贝，改写不应影响预置网格
	out.Set(0, 0, 999)
	again := src.CreateHeightGrid(key, nil, nil)
	if again.At(0, 0) != 42 {
		t.Error("预置网格被外部改写污染")
	}

	src.SetFail(true)
	if grid := src.CreateHeightGrid(key, nil, nil); grid != nil {
		t.Error("失败状态下取数应返回 nil")
	}
	src.SetFail(false)
	if grid := src.CreateHeightGrid(key, nil, nil); grid == nil {
		t.Error("恢复后取数应成功")
	}
}

// TestGridSourceNormalizeOp 取数时应用网格操作
func TestGridSourceNormalizeOp(t *testing.T) {
	src := NewGridSource("grid")
	key := Geo.NewTileKey(2, 1, 1, Geo.GlobalGeodetic())

	seed := Elevation.NewHeightGrid(3, 3)
	seed.Set(0, 0, 10)
	seed.Set(1, 1, -9999) // 驱动私有的无数据标记
	src.SetGrid(key, seed)

	op := Elevation.NewNormalizeNoDataOp(-9999, -11000, 9000)
	out := src.CreateHeightGrid(key, op, nil)
	if out.At(0, 0) != 10 {
		t.Errorf("有效值不应被改写: %f", out.At(0, 0))
	}
	if out.At(1, 1) != Elevation.NoDataValue {
		t.Errorf("驱动无数据标记应规范化为哨兵值: %f", out.At(1, 1))
	}
}

// TestSimplexSourceDeterministic 相同种子的噪声地形可复现
func TestSimplexSourceDeterministic(t *testing.T) {
	key := Geo.NewTileKey(4, 5, 6, Geo.GlobalGeodetic())

	a := NewSimplexSource("terrain", 7, 65, 2500, 20)
	b := NewSimplexSource("terrain", 7, 65, 2500, 20)

	ga := a.CreateHeightGrid(key, nil, nil)
	gb := b.CreateHeightGrid(key, nil, nil)
	if ga == nil || gb == nil {
		t.Fatal("噪声驱动取数不应失败")
	}
	if ga.Cols != 65 || ga.Rows != 65 {
		t.Fatalf("网格尺寸不符: %dx%d", ga.Cols, ga.Rows)
	}
	for i := range ga.Heights {
		if ga.Heights[i] != gb.Heights[i] {
			t.Fatalf("相同种子的样本 %d 不一致", i)
		}
	}

	// 不同种子产出不同地形
	c := NewSimplexSource("terrain", 8, 65, 2500, 20)
	gc := c.CreateHeightGrid(key, nil, nil)
	same := true
	for i := range ga.Heights {
		if ga.Heights[i] != gc.Heights[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("不同种子不应产出完全相同的地形")
	}
}

// TestSimplexSourceAmplitudeBound 噪声高度受幅度约束
func TestSimplexSourceAmplitudeBound(t *testing.T) {
	const amplitude = 1000
	src := NewSimplexSource("terrain", 1, 33, amplitude, 15)
	key := Geo.NewTileKey(2, 1, 1, Geo.GlobalGeodetic())

	grid := src.CreateHeightGrid(key, nil, nil)
	for i, v := range grid.Heights {
		if v < -amplitude || v > amplitude {
			t.Fatalf("样本 %d 超出幅度范围: %f", i, v)
		}
	}

	// 非法瓦片尺寸回退为默认值
	fallback := NewSimplexSource("terrain", 1, 0, amplitude, 15)
	g := fallback.CreateHeightGrid(key, nil, nil)
	if g.Cols != Elevation.DefaultTileSize {
		t.Errorf("非法尺寸应回退为默认值: %d", g.Cols)
	}
}
