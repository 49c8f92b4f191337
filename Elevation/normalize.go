package Elevation

import (
	"math"
)

// GridOperation 取数后、入缓存前应用于网格的操作。
// 驱动在返回网格前调用，保证进入缓存与合成器的数据已经规范化。
type GridOperation interface {
	Apply(grid *HeightGrid)
}

// normalizeNoData 无数据规范化：把 NaN、等于图层哨兵值、
// 或落在合法区间外的样本统一改写为全局 NoDataValue。
// 操作是幂等的：已改写的样本再次处理仍为 NoDataValue。
type normalizeNoData struct {
	noDataValue   float32
	minValidValue float32
	maxValidValue float32
}

// NewNormalizeNoDataOp 创建无数据规范化操作，供外部驱动在图层之外取数时复用
func NewNormalizeNoDataOp(noDataValue, minValidValue, maxValidValue float32) GridOperation {
	return &normalizeNoData{
		noDataValue:   noDataValue,
		minValidValue: minValidValue,
		maxValidValue: maxValidValue,
	}
}

func (op *normalizeNoData) Apply(grid *HeightGrid) {
	if grid == nil {
		return
	}
	for i, v := range grid.Heights {
		if math.IsNaN(float64(v)) || equivalent(v, op.noDataValue) ||
			v < op.minValidValue || v > op.maxValidValue {
			grid.Heights[i] = NoDataValue
		}
	}
}

// equivalent 单精度近似相等
func equivalent(a, b float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= 1e-6
}
