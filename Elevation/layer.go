package Elevation

import (
	"errors"
	"sync"

	"elevation-platform/Geo"
	"elevation-platform/Store"
	"elevation-platform/logger"
	"elevation-platform/metrics"
)

// errConfigInvalid 图层配置错误，该层在进程生命期内禁用
var errConfigInvalid = errors.New("图层配置无效")

// NoDataPolicy 无数据样本的后处理策略
type NoDataPolicy int

const (
	// NoDataInterpolate 保留 NoDataValue，由调用方处理（默认）
	NoDataInterpolate NoDataPolicy = iota
	// NoDataMSL 将 NoDataValue 改写为请求基准下的海平面高度
	NoDataMSL
)

// LayerStatus 图层状态，单向迁移：Fresh -> Opening -> OK | Error
type LayerStatus int

const (
	StatusFresh LayerStatus = iota
	StatusOpening
	StatusOK
	StatusError
)

// DefaultTileSize 默认瓦片采样尺寸
const DefaultTileSize = 257

// LayerOptions 高程图层配置
type LayerOptions struct {
	Name    string
	Enabled bool
	Visible bool
	// Offset 为真时该层作为叠加偏移层参与合成，不作为底层候选
	Offset       bool
	NoDataPolicy NoDataPolicy
	TileSize     int
	// 合法请求层级区间
	MinLevel int
	MaxLevel int
	// 数据实际覆盖的最深层级（0 表示与 MaxLevel 相同）
	MaxDataLevel int
	// 无数据规范化参数
	NoDataValue   float32
	MinValidValue float32
	MaxValidValue float32
	// 内存缓存容量（网格数，<=0 禁用）
	MemCacheSize int
}

// DefaultLayerOptions 带默认值的图层配置
func DefaultLayerOptions(name string) LayerOptions {
	return LayerOptions{
		Name:          name,
		Enabled:       true,
		Visible:       true,
		TileSize:      DefaultTileSize,
		MinLevel:      0,
		MaxLevel:      Geo.MaxTileLevel,
		NoDataValue:   DefaultNoDataValue,
		MinValidValue: DefaultMinValidValue,
		MaxValidValue: DefaultMaxValidValue,
		MemCacheSize:  128,
	}
}

// Layer 高程图层能力接口，合成器只通过它访问图层
type Layer interface {
	Name() string
	Enabled() bool
	Visible() bool
	IsOffset() bool
	TileSize() int
	IsKeyInLegalRange(key Geo.TileKey) bool
	BestAvailableTileKey(key Geo.TileKey) Geo.TileKey
	CreateHeightField(key Geo.TileKey, progress ProgressCallback) GeoHeightField
}

// ElevationLayer 单个高程数据源图层：内存缓存、持久化缓存槽、
// 失败键黑名单与驱动取数的完整读路径。init 后字段只读，可并发使用。
type ElevationLayer struct {
	opts    LayerOptions
	profile *Geo.Profile

	source         TileSource
	sourceExpected bool

	cacheBin    Store.CacheBin
	cachePolicy Store.CachePolicy

	memCache  *MemCache
	blacklist *Blacklist

	// 惰性创建的规范化操作，双检锁
	preCacheOnce sync.Once
	preCacheOp   GridOperation

	statusMu sync.Mutex
	status   LayerStatus
}

// NewElevationLayer 创建图层。source 可为 nil（仅缓存模式）。
func NewElevationLayer(opts LayerOptions, profile *Geo.Profile, source TileSource) *ElevationLayer {
	if opts.TileSize < MinGridSize {
		opts.TileSize = DefaultTileSize
	}
	if opts.MaxLevel <= 0 || opts.MaxLevel > Geo.MaxTileLevel {
		opts.MaxLevel = Geo.MaxTileLevel
	}
	return &ElevationLayer{
		opts:           opts,
		profile:        profile,
		source:         source,
		sourceExpected: true,
		cachePolicy:    Store.DefaultCachePolicy(),
		memCache:       NewMemCache(opts.MemCacheSize),
		blacklist:      NewBlacklist(),
		status:         StatusFresh,
	}
}

// SetCacheBin 挂接持久化缓存槽与策略
func (l *ElevationLayer) SetCacheBin(bin Store.CacheBin, policy Store.CachePolicy) {
	l.cacheBin = bin
	l.cachePolicy = policy
}

// SetSourceExpected 声明该层不依赖驱动（高程由外部注入缓存）
func (l *ElevationLayer) SetSourceExpected(expected bool) {
	l.sourceExpected = expected
}

// Name 图层名
func (l *ElevationLayer) Name() string { return l.opts.Name }

// Enabled 是否启用
func (l *ElevationLayer) Enabled() bool { return l.opts.Enabled && l.Status() != StatusError }

// Visible 是否可见
func (l *ElevationLayer) Visible() bool { return l.opts.Visible }

// IsOffset 是否为叠加偏移层
func (l *ElevationLayer) IsOffset() bool { return l.opts.Offset }

// TileSize 瓦片采样尺寸
func (l *ElevationLayer) TileSize() int { return l.opts.TileSize }

// Profile 图层剖面
func (l *ElevationLayer) Profile() *Geo.Profile { return l.profile }

// Status 当前状态
func (l *ElevationLayer) Status() LayerStatus {
	l.statusMu.Lock()
	defer l.statusMu.Unlock()
	return l.status
}

// setStatus 单向状态迁移；Error 不可逆
func (l *ElevationLayer) setStatus(s LayerStatus) {
	l.statusMu.Lock()
	defer l.statusMu.Unlock()
	if l.status == StatusError {
		return
	}
	l.status = s
}

// Open 校验配置并迁移状态。配置错误的图层永久禁用。
func (l *ElevationLayer) Open() error {
	l.setStatus(StatusOpening)
	if !l.canContinue() {
		l.setStatus(StatusError)
		logger.Error("图层 %s 配置无效: 无可用驱动且未启用仅缓存模式", l.opts.Name)
		return errConfigInvalid
	}
	if !l.cachePolicy.IsCacheOnly() && l.profile == nil {
		l.setStatus(StatusError)
		logger.Error("图层 %s 配置无效: 缺少剖面", l.opts.Name)
		return errConfigInvalid
	}
	l.setStatus(StatusOK)
	return nil
}

// Reset 清空黑名单与内存缓存
func (l *ElevationLayer) Reset() {
	l.blacklist.Clear()
	l.memCache.Purge()
}

// Blacklist 失败键黑名单
func (l *ElevationLayer) Blacklist() *Blacklist { return l.blacklist }

// IsKeyInLegalRange 键是否在图层的合法层级区间内
func (l *ElevationLayer) IsKeyInLegalRange(key Geo.TileKey) bool {
	return key.Valid() && key.Level() >= l.opts.MinLevel && key.Level() <= l.opts.MaxLevel
}

// BestAvailableTileKey 返回键的最优可用形态：数据覆盖不到请求层级时
// 夹取到最深覆盖层级的祖先键；低于最小层级返回无效键。
// 驱动实现 BestKeyProvider 时以驱动为准。
func (l *ElevationLayer) BestAvailableTileKey(key Geo.TileKey) Geo.TileKey {
	if !key.Valid() {
		return Geo.InvalidTileKey
	}
	if p, ok := l.source.(BestKeyProvider); ok {
		// 驱动的回答仍受图层合法层级区间约束
		best := p.BestAvailableTileKey(key)
		if !best.Valid() || best.Level() < l.opts.MinLevel {
			return Geo.InvalidTileKey
		}
		if best.Level() > l.opts.MaxLevel {
			return best.AncestorAt(l.opts.MaxLevel)
		}
		return best
	}
	if key.Level() < l.opts.MinLevel {
		return Geo.InvalidTileKey
	}
	maxData := l.opts.MaxDataLevel
	if maxData <= 0 || maxData > l.opts.MaxLevel {
		maxData = l.opts.MaxLevel
	}
	if key.Level() > maxData {
		return key.AncestorAt(maxData)
	}
	return key
}

// canContinue 是否具备产出数据的任一条件：
// 可用驱动、声明不需要驱动、或仅缓存模式下有缓存槽
func (l *ElevationLayer) canContinue() bool {
	if l.source != nil && l.source.OK() {
		return true
	}
	if !l.sourceExpected {
		return true
	}
	return l.cachePolicy.IsCacheOnly() && l.cacheBin != nil
}

// cacheKeyFor 缓存键：瓦片键加剖面全签名，跨剖面不会冲突
func cacheKeyFor(key Geo.TileKey) string {
	return key.Str() + "_" + key.Profile().FullSignature()
}

// layerVDatum 图层原生垂直基准
func (l *ElevationLayer) layerVDatum() *Geo.VerticalDatum {
	if l.profile == nil {
		return nil
	}
	return l.profile.SRS().VerticalDatum()
}

// CreateHeightField 合成单层单瓦片的高程场。
// 顺序：内存缓存、持久化缓存、驱动取数（或跨剖面拼装）、过期缓存兜底。
// 缓存槽中的网格始终保存图层原生垂直基准的高度，读出时换算到请求基准。
func (l *ElevationLayer) CreateHeightField(key Geo.TileKey, progress ProgressCallback) GeoHeightField {
	metrics.CreateHeightFieldCalls.WithLabelValues(l.opts.Name).Inc()

	if l.Status() == StatusError || !l.opts.Enabled {
		return InvalidGeoHeightField
	}
	if !key.Valid() {
		return InvalidGeoHeightField
	}

	cacheKey := cacheKeyFor(key)
	keyVD := key.Profile().SRS().VerticalDatum()

	var hf *HeightGrid
	var cachedHF *HeightGrid
	fromMemCache := false
	fromCache := false
	assembled := false

	// 内存缓存（存的是已换算到请求基准的网格）
	if g, ok := l.memCache.Get(cacheKey); ok {
		metrics.MemCacheHits.WithLabelValues(l.opts.Name).Inc()
		logger.Debug("图层 %s 内存缓存命中: %s", l.opts.Name, cacheKey)
		hf = g
		fromMemCache = true
	}

	if hf == nil {
		if !l.canContinue() {
			l.setStatus(StatusError)
			logger.Error("图层 %s 无可用驱动且未启用仅缓存模式，已禁用", l.opts.Name)
			return InvalidGeoHeightField
		}
		if !l.cachePolicy.IsCacheOnly() && l.profile == nil {
			l.setStatus(StatusError)
			logger.Error("图层 %s 缺少剖面，已禁用", l.opts.Name)
			return InvalidGeoHeightField
		}

		// 持久化缓存
		if l.cacheBin != nil && l.cachePolicy.IsCacheReadable() {
			if rr := l.cacheBin.Read(cacheKey); rr.Succeeded() {
				if g, err := DecodeHeightGrid(rr.Value); err == nil && g.Valid() {
					if !l.cachePolicy.IsExpired(rr.LastModified) {
						metrics.PersistCacheHits.WithLabelValues(l.opts.Name).Inc()
						logger.Debug("图层 %s 持久化缓存命中: %s", l.opts.Name, cacheKey)
						hf = g
						fromCache = true
					} else {
						// 过期条目留作取数失败时的兜底
						cachedHF = g
					}
				} else if err != nil {
					logger.Warn("图层 %s 缓存块解码失败: %s: %v", l.opts.Name, cacheKey, err)
				}
			}
		}

		// 仅缓存模式不触发取数；过期条目只作为取数失败的兜底，
		// 这里没有取数环节，直接返回无效
		if hf == nil && l.cachePolicy.IsCacheOnly() {
			return InvalidGeoHeightField
		}

		// 驱动取数
		if hf == nil {
			if !l.IsKeyInLegalRange(key) {
				return InvalidGeoHeightField
			}
			if key.Profile().IsHorizEquivalentTo(l.profile) {
				hf = l.createFromTileSource(key, progress)
			} else {
				hf = l.assembleHeightGrid(key, progress)
				assembled = true
			}

			if hf != nil && !hf.Valid() {
				logger.Warn("图层 %s 返回非法网格，已丢弃: %s", l.opts.Name, key.Str())
				hf = nil
				assembled = false
			}
			if hf == nil && cachedHF != nil {
				logger.Debug("图层 %s 取数失败，回退到过期缓存: %s", l.opts.Name, cacheKey)
				hf = cachedHF
				fromCache = true
			}
			if hf == nil {
				return InvalidGeoHeightField
			}
		}
	}

	// 标定原点与步长
	ext := key.Extent()
	hf.OriginX = ext.XMin()
	hf.OriginY = ext.YMin()
	hf.XStep = ext.Width() / float64(hf.Cols-1)
	hf.YStep = ext.Height() / float64(hf.Rows-1)
	hf.Border = 0

	// 写回持久化缓存：只写驱动新取的数据，且按图层原生基准保存
	if !fromCache && !fromMemCache && l.cacheBin != nil && l.cachePolicy.IsCacheWriteable() {
		writeGrid := hf
		if assembled && !keyVD.EquivalentTo(l.layerVDatum()) {
			// 拼装结果已在请求基准，换算回原生基准再入库
			writeGrid = hf.Clone()
			TransformVerticalDatum(keyVD, l.layerVDatum(), ext, writeGrid)
		}
		if blob, err := writeGrid.Encode(); err == nil {
			if err := l.cacheBin.Write(cacheKey, blob); err != nil {
				logger.Warn("图层 %s 缓存写回失败: %s: %v", l.opts.Name, cacheKey, err)
			}
		}
	}

	// 缓存读出或驱动直取的网格是原生基准，换算到请求基准
	if !fromMemCache && !assembled {
		TransformVerticalDatum(l.layerVDatum(), keyVD, ext, hf)
	}

	if !fromMemCache {
		l.memCache.Put(cacheKey, hf)
	}

	if l.opts.NoDataPolicy == NoDataMSL {
		l.applySeaLevel(key, ext, hf)
	}

	l.setStatus(StatusOK)
	return NewGeoHeightField(hf, ext)
}

// createFromTileSource 同剖面取数：黑名单与覆盖范围剪枝后调用驱动。
// 失败且非取消/重试时拉黑该键。返回的网格保持图层原生垂直基准。
func (l *ElevationLayer) createFromTileSource(key Geo.TileKey, progress ProgressCallback) *HeightGrid {
	if l.source == nil || !l.source.OK() {
		return nil
	}
	if l.blacklist.Contains(key) {
		metrics.BlacklistHits.WithLabelValues(l.opts.Name).Inc()
		return nil
	}
	if checker, ok := l.source.(DataExtentChecker); ok && !checker.MayHaveData(key) {
		return nil
	}

	metrics.DriverFetches.WithLabelValues(l.opts.Name).Inc()
	grid := l.source.CreateHeightGrid(key, l.preCache(), progress)
	if grid == nil {
		metrics.DriverFailures.WithLabelValues(l.opts.Name).Inc()
		if !canceledOrRetry(progress) {
			l.blacklist.Add(key)
			logger.Debug("图层 %s 取数失败，键已拉黑: %s", l.opts.Name, key.Str())
		}
		return nil
	}
	return grid
}

// assembleHeightGrid 跨剖面拼装：枚举图层剖面中相交的瓦片逐个合成，
// 按分辨率从细到粗逐像素选第一个有效样本。结果在请求基准下。
func (l *ElevationLayer) assembleHeightGrid(key Geo.TileKey, progress ProgressCallback) *HeightGrid {
	keys := l.profile.IntersectingTiles(key)

	var fields []GeoHeightField
	for _, k := range keys {
		if !l.IsKeyInLegalRange(k) {
			continue
		}
		if f := l.CreateHeightField(k, progress); f.Valid() {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return nil
	}

	cols, rows := 0, 0
	for _, f := range fields {
		if f.Grid().Cols > cols {
			cols = f.Grid().Cols
		}
		if f.Grid().Rows > rows {
			rows = f.Grid().Rows
		}
	}

	SortByResolution(fields)

	ext := key.Extent()
	keySRS := key.Profile().SRS()
	out := NewHeightGrid(cols, rows)
	dx := ext.Width() / float64(cols-1)
	dy := ext.Height() / float64(rows-1)

	for r := 0; r < rows; r++ {
		y := ext.YMin() + dy*float64(r)
		for c := 0; c < cols; c++ {
			x := ext.XMin() + dx*float64(c)
			for _, f := range fields {
				v, ok := f.GetElevation(keySRS, x, y, InterpBilinear, keySRS)
				if ok && v != NoDataValue {
					out.Set(c, r, v)
					break
				}
			}
		}
	}
	return out
}

// applySeaLevel MSL 策略：把 NoDataValue 改写为请求基准下的海平面高度。
// 请求基准未知（HAE）且源基准带大地水准面时取水准面高度，否则取 0。
func (l *ElevationLayer) applySeaLevel(key Geo.TileKey, ext Geo.GeoExtent, hf *HeightGrid) {
	keyVD := key.Profile().SRS().VerticalDatum()

	var geoid Geo.Geoid
	if keyVD == nil {
		geoid = l.layerVDatum().Geoid()
	}
	if geoid == nil {
		for i, v := range hf.Heights {
			if v == NoDataValue {
				hf.Heights[i] = 0
			}
		}
		return
	}

	srs := ext.SRS()
	dx := ext.Width() / float64(hf.Cols-1)
	dy := ext.Height() / float64(hf.Rows-1)
	for r := 0; r < hf.Rows; r++ {
		y := ext.YMin() + dy*float64(r)
		for c := 0; c < hf.Cols; c++ {
			if hf.At(c, r) != NoDataValue {
				continue
			}
			x := ext.XMin() + dx*float64(c)
			lon, lat := srs.ToGeographic(x, y)
			hf.Set(c, r, geoid.Offset(lon, lat))
		}
	}
}

// preCache 惰性创建取数后的规范化操作
func (l *ElevationLayer) preCache() GridOperation {
	l.preCacheOnce.Do(func() {
		l.preCacheOp = &normalizeNoData{
			noDataValue:   l.opts.NoDataValue,
			minValidValue: l.opts.MinValidValue,
			maxValidValue: l.opts.MaxValidValue,
		}
	})
	return l.preCacheOp
}
