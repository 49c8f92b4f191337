package Geo

import (
	"fmt"
)

// TileKey 瓦片键：层级、列号、行号与所属剖面。不可变值类型。
// 行号从北向南递增，列号从西向东递增。
type TileKey struct {
	level   int
	x, y    int
	profile *Profile
}

// InvalidTileKey 无效键
var InvalidTileKey = TileKey{level: -1}

// NewTileKey 创建瓦片键
func NewTileKey(level, x, y int, profile *Profile) TileKey {
	return TileKey{level: level, x: x, y: y, profile: profile}
}

// Valid 键是否有效（层级与行列号均落在剖面网格内）
func (k TileKey) Valid() bool {
	if k.profile == nil || k.level < 0 || k.level > MaxTileLevel {
		return false
	}
	numW, numH := k.profile.NumTiles(k.level)
	return k.x >= 0 && k.x < numW && k.y >= 0 && k.y < numH
}

// Level 层级
func (k TileKey) Level() int { return k.level }

// X 列号
func (k TileKey) X() int { return k.x }

// Y 行号
func (k TileKey) Y() int { return k.y }

// Profile 所属剖面
func (k TileKey) Profile() *Profile { return k.profile }

// Str 返回 "level/x/y" 形式的字符串
func (k TileKey) Str() string {
	return fmt.Sprintf("%d/%d/%d", k.level, k.x, k.y)
}

// Equals 键是否相同（剖面按水平等价比较）
func (k TileKey) Equals(o TileKey) bool {
	if k.level != o.level || k.x != o.x || k.y != o.y {
		return false
	}
	if k.profile == nil || o.profile == nil {
		return k.profile == o.profile
	}
	return k.profile.IsHorizEquivalentTo(o.profile)
}

// Extent 瓦片的地理范围
func (k TileKey) Extent() GeoExtent {
	if !k.Valid() {
		return GeoExtent{}
	}
	return k.profile.TileExtent(k.level, k.x, k.y)
}

// Parent 上一层级的父键；根层返回无效键
func (k TileKey) Parent() TileKey {
	if !k.Valid() || k.level == 0 {
		return InvalidTileKey
	}
	return TileKey{level: k.level - 1, x: k.x >> 1, y: k.y >> 1, profile: k.profile}
}

// AncestorAt 指定层级上的祖先键；层级不低于当前时返回自身
func (k TileKey) AncestorAt(level int) TileKey {
	if !k.Valid() || level < 0 {
		return InvalidTileKey
	}
	if level >= k.level {
		return k
	}
	d := uint(k.level - level)
	return TileKey{level: level, x: k.x >> d, y: k.y >> d, profile: k.profile}
}

// Neighbor 同层级相邻键。经向越界按世界环绕，纬向越界返回无效键。
func (k TileKey) Neighbor(dx, dy int) TileKey {
	if !k.Valid() {
		return InvalidTileKey
	}
	numW, numH := k.profile.NumTiles(k.level)
	nx := ((k.x+dx)%numW + numW) % numW
	ny := k.y + dy
	if ny < 0 || ny >= numH {
		return InvalidTileKey
	}
	return TileKey{level: k.level, x: nx, y: ny, profile: k.profile}
}

// MapResolution 将键映射到分辨率匹配的层级：输出网格为 targetSize 时，
// 寻找源瓦片（sourceSize 采样）分辨率不粗于目标的最低层级并返回该层级上的键。
func (k TileKey) MapResolution(targetSize, sourceSize int) TileKey {
	if !k.Valid() || targetSize < 2 || sourceSize < 2 || targetSize == sourceSize {
		return k
	}
	targetRes := k.profile.tileWidth(k.level) / float64(targetSize-1)
	level := 0
	for level < MaxTileLevel {
		res := k.profile.tileWidth(level) / float64(sourceSize-1)
		if res <= targetRes*(1+1e-9) {
			break
		}
		level++
	}
	if level == k.level {
		return k
	}
	if level < k.level {
		return k.AncestorAt(level)
	}
	// 更细层级：取本瓦片西北角对应的后代键
	d := uint(level - k.level)
	return TileKey{level: level, x: k.x << d, y: k.y << d, profile: k.profile}
}
