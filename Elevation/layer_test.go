package Elevation

import (
	"sync"
	"testing"
	"time"

	"elevation-platform/Geo"
	"elevation-platform/Store"
)

// stubSource 测试用驱动：按填充函数生成固定尺寸网格，可切换失败
type stubSource struct {
	mu    sync.Mutex
	calls int
	fail  bool
	size  int
	fill  func(c, r int) float32
}

func newStubSource(size int, fill func(c, r int) float32) *stubSource {
	return &stubSource{size: size, fill: fill}
}

func constFill(v float32) func(c, r int) float32 {
	return func(c, r int) float32 { return v }
}

func (s *stubSource) Name() string { return "stub" }
func (s *stubSource) OK() bool     { return true }

func (s *stubSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubSource) SetFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *stubSource) CreateHeightGrid(key Geo.TileKey, op GridOperation, progress ProgressCallback) *HeightGrid {
	s.mu.Lock()
	s.calls++
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return nil
	}
	g := NewHeightGrid(s.size, s.size)
	for r := 0; r < s.size; r++ {
		for c := 0; c < s.size; c++ {
			g.Set(c, r, s.fill(c, r))
		}
	}
	if op != nil {
		op.Apply(g)
	}
	return g
}

// memBin 测试用内存缓存槽
type memBin struct {
	mu      sync.Mutex
	entries map[string]memBinEntry
	writes  int
}

type memBinEntry struct {
	value []byte
	mtime time.Time
}

func newMemBin() *memBin {
	return &memBin{entries: make(map[string]memBinEntry)}
}

func (b *memBin) Read(key string) Store.ReadResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok {
		return Store.ReadResult{}
	}
	return Store.ReadResult{Value: e.value, LastModified: e.mtime, OK: true}
}

func (b *memBin) Write(key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = memBinEntry{value: value, mtime: time.Now()}
	b.writes++
	return nil
}

func (b *memBin) backdate(key string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[key]; ok {
		e.mtime = e.mtime.Add(-d)
		b.entries[key] = e
	}
}

func testLayer(name string, source TileSource) *ElevationLayer {
	opts := DefaultLayerOptions(name)
	opts.TileSize = 17
	return NewElevationLayer(opts, Geo.GlobalGeodetic(), source)
}

// TestCreateHeightFieldMemCache 内存缓存避免重复取数
func TestCreateHeightFieldMemCache(t *testing.T) {
	src := newStubSource(17, constFill(50))
	layer := testLayer("mem", src)

	key := Geo.NewTileKey(3, 2, 1, Geo.GlobalGeodetic())

	f1 := layer.CreateHeightField(key, nil)
	if !f1.Valid() {
		t.Fatal("首次合成应有效")
	}
	f2 := layer.CreateHeightField(key, nil)
	if !f2.Valid() {
		t.Fatal("二次合成应有效")
	}
	if src.Calls() != 1 {
		t.Errorf("二次合成应命中内存缓存: 驱动调用 %d 次", src.Calls())
	}
	if f2.Grid().At(5, 5) != 50 {
		t.Errorf("缓存返回值不符: got %f", f2.Grid().At(5, 5))
	}
	// 原点与步长按键范围标定
	ext := key.Extent()
	if f2.Grid().OriginX != ext.XMin() || f2.Grid().OriginY != ext.YMin() {
		t.Error("网格原点应为键范围西南角")
	}
	if f2.Grid().Border != 0 {
		t.Error("边缘宽度应为 0")
	}
}

// TestCreateHeightFieldPersistentCache 持久化缓存命中与写回
func TestCreateHeightFieldPersistentCache(t *testing.T) {
	bin := newMemBin()
	src1 := newStubSource(17, constFill(80))
	layer1 := testLayer("persist", src1)
	layer1.SetCacheBin(bin, Store.DefaultCachePolicy())

	key := Geo.NewTileKey(4, 5, 3, Geo.GlobalGeodetic())
	if !layer1.CreateHeightField(key, nil).Valid() {
		t.Fatal("首次合成应有效")
	}
	if bin.writes != 1 {
		t.Fatalf("应写回持久化缓存: writes=%d", bin.writes)
	}

	// 新图层（空内存缓存）共享同一缓存槽，读出无需驱动
	src2 := newStubSource(17, constFill(0))
	layer2 := testLayer("persist", src2)
	layer2.SetCacheBin(bin, Store.DefaultCachePolicy())

	f := layer2.CreateHeightField(key, nil)
	if !f.Valid() {
		t.Fatal("缓存读出应有效")
	}
	if src2.Calls() != 0 {
		t.Errorf("持久化命中不应调用驱动: %d 次", src2.Calls())
	}
	if f.Grid().At(8, 8) != 80 {
		t.Errorf("缓存读出值不符: got %f, want 80", f.Grid().At(8, 8))
	}
	// 缓存命中不产生二次写回
	if bin.writes != 1 {
		t.Errorf("缓存命中不应重复写回: writes=%d", bin.writes)
	}
}

// TestExpiredCacheFallback 过期缓存在取数失败时兜底
func TestExpiredCacheFallback(t *testing.T) {
	bin := newMemBin()
	src := newStubSource(17, constFill(60))
	layer := testLayer("expired", src)
	policy := Store.CachePolicy{Usage: Store.UsageReadWrite, MaxAge: time.Minute}
	layer.SetCacheBin(bin, policy)

	key := Geo.NewTileKey(4, 1, 1, Geo.GlobalGeodetic())
	if !layer.CreateHeightField(key, nil).Valid() {
		t.Fatal("首次合成应有效")
	}

	// 条目过期且驱动失败
	bin.backdate(cacheKeyFor(key), time.Hour)
	src.SetFail(true)

	fresh := testLayer("expired", src)
	fresh.SetCacheBin(bin, policy)
	f := fresh.CreateHeightField(key, nil)
	if !f.Valid() {
		t.Fatal("过期缓存应在取数失败时兜底")
	}
	if f.Grid().At(3, 3) != 60 {
		t.Errorf("兜底值不符: got %f, want 60", f.Grid().At(3, 3))
	}
}

// TestCacheOnlyExpiredEntryInvalid 仅缓存模式下过期条目不充当结果
func TestCacheOnlyExpiredEntryInvalid(t *testing.T) {
	bin := newMemBin()
	src := newStubSource(17, constFill(30))
	writer := testLayer("cacheonly", src)
	writer.SetCacheBin(bin, Store.DefaultCachePolicy())

	key := Geo.NewTileKey(4, 2, 2, Geo.GlobalGeodetic())
	if !writer.CreateHeightField(key, nil).Valid() {
		t.Fatal("预写入缓存应成功")
	}

	policy := Store.CachePolicy{Usage: Store.UsageCacheOnly, MaxAge: time.Minute}

	// 未过期条目在仅缓存模式下可读出
	reader := testLayer("cacheonly", nil)
	reader.SetCacheBin(bin, policy)
	if !reader.CreateHeightField(key, nil).Valid() {
		t.Fatal("未过期条目在仅缓存模式下应可读出")
	}

	// 过期后直接返回无效，不以过期条目兜底
	bin.backdate(cacheKeyFor(key), time.Hour)
	fresh := testLayer("cacheonly", nil)
	fresh.SetCacheBin(bin, policy)
	if fresh.CreateHeightField(key, nil).Valid() {
		t.Error("过期条目在仅缓存模式下应返回无效结果")
	}

	// 未缓存的键同样无效
	missing := Geo.NewTileKey(4, 3, 3, Geo.GlobalGeodetic())
	if fresh.CreateHeightField(missing, nil).Valid() {
		t.Error("未缓存的键在仅缓存模式下应返回无效结果")
	}
}

// TestBlacklistAfterHardFailure 硬失败后拉黑，二次调用不再触发驱动
func TestBlacklistAfterHardFailure(t *testing.T) {
	src := newStubSource(17, constFill(0))
	src.SetFail(true)
	layer := testLayer("blk", src)

	key := Geo.NewTileKey(5, 9, 9, Geo.GlobalGeodetic())
	progress := NewProgress()

	if layer.CreateHeightField(key, progress).Valid() {
		t.Fatal("失败取数应返回无效结果")
	}
	if src.Calls() != 1 {
		t.Fatalf("首次调用应触发驱动: %d 次", src.Calls())
	}
	if !layer.Blacklist().Contains(key) {
		t.Fatal("硬失败后键应被拉黑")
	}

	if layer.CreateHeightField(key, progress).Valid() {
		t.Fatal("黑名单键应返回无效结果")
	}
	if src.Calls() != 1 {
		t.Errorf("黑名单键不应再次触发驱动: %d 次", src.Calls())
	}

	// 重置后放行
	layer.Reset()
	src.SetFail(false)
	if !layer.CreateHeightField(key, progress).Valid() {
		t.Error("重置后应可重新取数")
	}
}

// TestCanceledFailureNotBlacklisted 取消的失败不拉黑
func TestCanceledFailureNotBlacklisted(t *testing.T) {
	src := newStubSource(17, constFill(0))
	src.SetFail(true)
	layer := testLayer("cancel", src)

	key := Geo.NewTileKey(5, 2, 2, Geo.GlobalGeodetic())
	progress := NewProgress()
	progress.Cancel()

	if layer.CreateHeightField(key, progress).Valid() {
		t.Fatal("失败取数应返回无效结果")
	}
	if layer.Blacklist().Contains(key) {
		t.Error("取消的失败不应拉黑")
	}

	// 要求重试的失败同样不拉黑
	retry := NewProgress()
	retry.SetNeedsRetry()
	layer.CreateHeightField(key, retry)
	if layer.Blacklist().Contains(key) {
		t.Error("待重试的失败不应拉黑")
	}
}

// TestNoDataPolicyMSL MSL 策略：无数据样本改写为海平面高度
func TestNoDataPolicyMSL(t *testing.T) {
	// 棋盘式半数无数据
	src := newStubSource(17, func(c, r int) float32 {
		if (c+r)%2 == 0 {
			return DefaultNoDataValue
		}
		return 100
	})

	egm := Geo.NewVerticalDatum("egm96", Geo.ConstGeoid(12))
	profile := Geo.GlobalGeodetic().WithVerticalDatum(egm)

	opts := DefaultLayerOptions("msl")
	opts.TileSize = 17
	opts.NoDataPolicy = NoDataMSL
	layer := NewElevationLayer(opts, profile, src)

	// 请求端为椭球高（基准未知），应采用源基准的大地水准面高度
	key := Geo.NewTileKey(3, 1, 1, Geo.GlobalGeodetic())
	f := layer.CreateHeightField(key, nil)
	if !f.Valid() {
		t.Fatal("合成应有效")
	}

	g := f.Grid()
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			v := g.At(c, r)
			if v == NoDataValue {
				t.Fatalf("MSL 策略后不应残留 NoData: (%d,%d)", c, r)
			}
			if (c+r)%2 == 0 {
				if v != 12 {
					t.Fatalf("无数据样本应为水准面高度 12: (%d,%d)=%f", c, r, v)
				}
			} else if v != 112 {
				// 有效样本从 MSL 换算到 HAE 抬升 12
				t.Fatalf("有效样本应为 112: (%d,%d)=%f", c, r, v)
			}
		}
	}
}

// TestCrossProfileAssembly 跨剖面拼装
func TestCrossProfileAssembly(t *testing.T) {
	src := newStubSource(17, constFill(42))
	layer := testLayer("assemble", src)

	merc := Geo.SphericalMercatorProfile()
	key := Geo.NewTileKey(2, 1, 1, merc)

	f := layer.CreateHeightField(key, nil)
	if !f.Valid() {
		t.Fatal("跨剖面合成应有效")
	}
	if src.Calls() == 0 {
		t.Fatal("拼装应触发驱动取数")
	}

	g := f.Grid()
	valid := 0
	for _, v := range g.Heights {
		if v != NoDataValue {
			valid++
			if v != 42 {
				t.Fatalf("拼装样本不符: got %f, want 42", v)
			}
		}
	}
	if valid == 0 {
		t.Error("拼装结果不应全为 NoData")
	}
}

// TestLayerConfigError 配置错误的图层永久禁用
func TestLayerConfigError(t *testing.T) {
	layer := testLayer("bad", nil)

	key := Geo.NewTileKey(2, 1, 1, Geo.GlobalGeodetic())
	if layer.CreateHeightField(key, nil).Valid() {
		t.Fatal("无驱动且非仅缓存模式应返回无效结果")
	}
	if layer.Status() != StatusError {
		t.Error("图层应进入错误状态")
	}
	if layer.Enabled() {
		t.Error("错误状态的图层应视为禁用")
	}
	// 状态不可逆
	layer.setStatus(StatusOK)
	if layer.Status() != StatusError {
		t.Error("错误状态应不可逆")
	}
}

// TestBestAvailableTileKey 最优可用键的夹取
func TestBestAvailableTileKey(t *testing.T) {
	src := newStubSource(17, constFill(0))
	opts := DefaultLayerOptions("best")
	opts.TileSize = 17
	opts.MinLevel = 2
	opts.MaxDataLevel = 3
	layer := NewElevationLayer(opts, Geo.GlobalGeodetic(), src)

	p := Geo.GlobalGeodetic()

	// 深于数据覆盖层级时夹取到祖先
	deep := Geo.NewTileKey(5, 8, 8, p)
	best := layer.BestAvailableTileKey(deep)
	if best.Level() != 3 {
		t.Errorf("应夹取到最深覆盖层级 3: got %d", best.Level())
	}
	if !best.Equals(deep.AncestorAt(3)) {
		t.Error("夹取结果应是原键的祖先")
	}

	// 低于最小层级返回无效
	if layer.BestAvailableTileKey(Geo.NewTileKey(1, 0, 0, p)).Valid() {
		t.Error("低于最小层级应返回无效键")
	}

	// 范围内原样返回
	mid := Geo.NewTileKey(3, 4, 2, p)
	if !layer.BestAvailableTileKey(mid).Equals(mid) {
		t.Error("覆盖范围内应返回原键")
	}
}

// bestKeyStub 实现最优键答复的测试驱动
type bestKeyStub struct {
	*stubSource
	best Geo.TileKey
}

func (s *bestKeyStub) BestAvailableTileKey(key Geo.TileKey) Geo.TileKey { return s.best }

// TestBestKeyProviderClampedToLegalRange 驱动答复受图层合法层级区间约束
func TestBestKeyProviderClampedToLegalRange(t *testing.T) {
	src := &bestKeyStub{stubSource: newStubSource(17, constFill(0))}
	opts := DefaultLayerOptions("provider")
	opts.TileSize = 17
	opts.MinLevel = 3
	opts.MaxLevel = 6
	layer := NewElevationLayer(opts, Geo.GlobalGeodetic(), src)

	p := Geo.GlobalGeodetic()
	req := Geo.NewTileKey(4, 2, 2, p)

	// 答复低于最小层级返回无效
	src.best = Geo.NewTileKey(1, 0, 0, p)
	if layer.BestAvailableTileKey(req).Valid() {
		t.Error("低于最小层级的答复应返回无效键")
	}

	// 答复深于最大层级夹取到最大层级的祖先
	deep := Geo.NewTileKey(8, 200, 100, p)
	src.best = deep
	got := layer.BestAvailableTileKey(req)
	if got.Level() != 6 || !got.Equals(deep.AncestorAt(6)) {
		t.Errorf("超深答复应夹取到最大层级: got %s", got.Str())
	}

	// 区间内原样返回
	mid := Geo.NewTileKey(5, 3, 3, p)
	src.best = mid
	if !layer.BestAvailableTileKey(req).Equals(mid) {
		t.Error("区间内的答复应原样返回")
	}

	// 无效答复原样视为无效
	src.best = Geo.InvalidTileKey
	if layer.BestAvailableTileKey(req).Valid() {
		t.Error("无效答复不应通过")
	}
}
