package Elevation

import (
	"elevation-platform/Geo"
	"elevation-platform/logger"
	"elevation-platform/metrics"
)

// LayerStack 图层栈，靠后的图层优先级更高
type LayerStack []Layer

// maxHeightFields 合成期间候选层网格缓存的上限，超过即整体清空，
// 防止超大瓦片合成时内存无界增长。偏移层缓存不参与淘汰。
const maxHeightFields = 50

// layerData 参与合成的一个图层条目：图层、解析后的键与原始栈序号
type layerData struct {
	layer Layer
	key   Geo.TileKey
	index int
}

// Compositor 图层栈合成器：对输出网格逐像素选取优先级最高的有效底层，
// 再叠加排位更高的偏移层，并按回退层级差生成法线图。
type Compositor struct {
	Layers LayerStack

	// ApplyOffsetsWithoutBase 为真时，即便没有任何底层命中，
	// 偏移层仍会叠加到 NoDataValue 上（旧行为）。默认关闭。
	ApplyOffsetsWithoutBase bool
}

// NewCompositor 创建合成器
func NewCompositor(layers ...Layer) *Compositor {
	return &Compositor{Layers: layers}
}

// neighborSlot 根据采样点相对瓦片范围的位置选择 3x3 槽位（行主序，中心为 4）。
// 边缘宽度为 0 时采样点始终落在范围内。
func neighborSlot(x, y float64, ext Geo.GeoExtent) int {
	col, row := 1, 1
	if x < ext.XMin() {
		col = 0
	} else if x > ext.XMax() {
		col = 2
	}
	if y > ext.YMax() {
		row = 0
	} else if y < ext.YMin() {
		row = 2
	}
	return row*3 + col
}

// Populate 合成 key 对应的输出网格，可选生成法线图。
// haeProfile 非空时用它构造查询键，使所有源查询产出椭球高。
// 返回是否至少有一个样本来自非回退的真实数据。
func (cp *Compositor) Populate(hf *HeightGrid, normalMap *NormalMap, key Geo.TileKey, haeProfile *Geo.Profile, interp InterpolationMethod, progress ProgressCallback) bool {
	metrics.PopulateCalls.Inc()

	if hf == nil || !hf.Valid() || !key.Valid() {
		return false
	}

	queryKey := key
	if haeProfile != nil {
		queryKey = Geo.NewTileKey(key.Level(), key.X(), key.Y(), haeProfile)
	}

	// 从高优先级（栈尾）到低优先级收集参与条目
	var contenders []layerData
	var offsets []layerData
	numFallbackLayers := 0

	for i := len(cp.Layers) - 1; i >= 0; i-- {
		layer := cp.Layers[i]
		if !layer.Enabled() || !layer.Visible() {
			continue
		}
		if !layer.IsKeyInLegalRange(key) {
			continue
		}

		mappedKey := queryKey.MapResolution(hf.Cols, layer.TileSize())
		bestKey := layer.BestAvailableTileKey(mappedKey)
		if !bestKey.Valid() {
			continue
		}
		if !bestKey.Equals(mappedKey) {
			numFallbackLayers++
		}

		entry := layerData{layer: layer, key: bestKey, index: i}
		if layer.IsOffset() {
			offsets = append(offsets, entry)
		} else {
			contenders = append(contenders, entry)
		}
	}

	total := len(contenders) + len(offsets)
	if total == 0 {
		return false
	}
	// 全部条目都是回退时直接放弃
	if numFallbackLayers == total {
		logger.Debug("合成 %s: %d 个条目全部回退，跳过", key.Str(), total)
		return false
	}

	// 采样一律使用查询键的参考系，保证 haeProfile 生效时产出椭球高
	ext := queryKey.Extent()
	keySRS := queryKey.Profile().SRS()
	cols := hf.Cols
	rows := hf.Rows
	dx := ext.Width() / float64(cols-1)
	dy := ext.Height() / float64(rows-1)

	// 为未来的边缘采样保留 3x3 邻接槽位，当前仅中心槽有数据
	var heightFields [9][]GeoHeightField
	var heightFallback [9][]bool
	var heightFailed [9][]bool
	var offsetFields [9][]GeoHeightField
	var offsetFailed [9][]bool
	for n := 0; n < 9; n++ {
		heightFields[n] = make([]GeoHeightField, len(contenders))
		heightFallback[n] = make([]bool, len(contenders))
		heightFailed[n] = make([]bool, len(contenders))
		offsetFields[n] = make([]GeoHeightField, len(offsets))
		offsetFailed[n] = make([]bool, len(offsets))
	}

	deltaLOD := make([]int16, cols*rows)
	realData := false
	numFieldsInCache := 0

	for c := 0; c < cols; c++ {
		x := ext.XMin() + dx*float64(c)
		for r := 0; r < rows; r++ {
			y := ext.YMin() + dy*float64(r)

			resolvedIndex := -1

			// 底层候选：优先级从高到低，第一个有效样本胜出
			for i := 0; i < len(contenders) && resolvedIndex < 0; i++ {
				layer := contenders[i].layer
				contenderKey := contenders[i].key

				n := 4
				if hf.Border > 0 {
					n = neighborSlot(x, y, ext)
				}

				if heightFailed[n][i] {
					continue
				}

				if !heightFields[n][i].Valid() {
					// 沿父键链向上直到取到有效网格或越出合法范围
					field := InvalidGeoHeightField
					successKey := contenderKey
					for k := contenderKey; k.Valid() && layer.IsKeyInLegalRange(k); k = k.Parent() {
						field = layer.CreateHeightField(k, progress)
						if field.Valid() {
							successKey = k
							break
						}
					}
					if !field.Valid() {
						heightFailed[n][i] = true
						continue
					}

					heightFields[n][i] = field
					if !successKey.Equals(contenderKey) {
						heightFallback[n][i] = true
					}
					contenders[i].key = successKey
					if !heightFallback[n][i] {
						realData = true
					}
					numFieldsInCache++
				}

				elevation, ok := heightFields[n][i].GetElevation(keySRS, x, y, interp, keySRS)
				if ok && elevation != NoDataValue {
					resolvedIndex = contenders[i].index
					hf.Set(c, r, elevation)
					deltaLOD[r*cols+c] = int16(key.Level() - contenders[i].key.Level())
				}

				// 工作集淘汰：清空全部候选槽位并复位回退标记
				if numFieldsInCache >= maxHeightFields {
					for n2 := 0; n2 < 9; n2++ {
						for j := range heightFields[n2] {
							heightFields[n2][j] = InvalidGeoHeightField
							heightFallback[n2][j] = false
						}
					}
					numFieldsInCache = 0
				}
			}

			// 偏移层：按存储序号从低到高叠加到已解析的底层之上
			for j := range offsets {
				if resolvedIndex >= 0 && offsets[j].index < resolvedIndex {
					continue
				}
				if resolvedIndex < 0 && !cp.ApplyOffsetsWithoutBase {
					continue
				}

				n := 4
				if hf.Border > 0 {
					n = neighborSlot(x, y, ext)
				}

				if offsetFailed[n][j] {
					continue
				}

				if !offsetFields[n][j].Valid() {
					field := offsets[j].layer.CreateHeightField(offsets[j].key, progress)
					if !field.Valid() {
						offsetFailed[n][j] = true
						continue
					}
					offsetFields[n][j] = field
					realData = true
				}

				elevation, ok := offsetFields[n][j].GetElevation(keySRS, x, y, interp, keySRS)
				if ok && elevation != NoDataValue {
					hf.Set(c, r, hf.At(c, r)+elevation)
					deltaLOD[r*cols+c] = int16(key.Level() - offsets[j].key.Level())
				}
			}
		}
	}

	if normalMap != nil {
		BuildNormalMap(ext, hf, deltaLOD, normalMap)
	}

	return realData
}
