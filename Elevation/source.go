package Elevation

import (
	"elevation-platform/Geo"
)

// TileSource 高程数据源驱动。实现负责文件或网络取数，
// 返回前应对网格调用传入的 op（无数据规范化）。
// 取不到数据返回 nil；阻塞 I/O 期间应轮询 progress。
type TileSource interface {
	Name() string
	OK() bool
	CreateHeightGrid(key Geo.TileKey, op GridOperation, progress ProgressCallback) *HeightGrid
}

// DataExtentChecker 可选接口：驱动声明某键处是否可能有数据，
// 用于在取数前快速剪枝。未实现时视为处处可能有数据。
type DataExtentChecker interface {
	MayHaveData(key Geo.TileKey) bool
}

// BestKeyProvider 可选接口：驱动给出某键的最优可用键
// （数据覆盖不到请求层级时返回更粗的祖先键）。
type BestKeyProvider interface {
	BestAvailableTileKey(key Geo.TileKey) Geo.TileKey
}
