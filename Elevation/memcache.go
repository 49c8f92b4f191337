package Elevation

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// MemCache 图层内有界的高程网格内存缓存。
// 存取都走深拷贝：MSL 策略等后处理会就地改写返回的网格，
// 拷贝保证缓存内容不被调用方污染，重复调用结果一致。
type MemCache struct {
	cache *lru.Cache[string, *HeightGrid]
}

// NewMemCache 创建缓存；capacity <= 0 时返回 nil（禁用）
func NewMemCache(capacity int) *MemCache {
	if capacity <= 0 {
		return nil
	}
	c, err := lru.New[string, *HeightGrid](capacity)
	if err != nil {
		return nil
	}
	return &MemCache{cache: c}
}

// Get 查询缓存，命中时返回拷贝
func (m *MemCache) Get(key string) (*HeightGrid, bool) {
	if m == nil {
		return nil, false
	}
	g, ok := m.cache.Get(key)
	if !ok {
		return nil, false
	}
	return g.Clone(), true
}

// Put 写入缓存（存拷贝）
func (m *MemCache) Put(key string, grid *HeightGrid) {
	if m == nil || grid == nil {
		return
	}
	m.cache.Add(key, grid.Clone())
}

// Purge 清空缓存
func (m *MemCache) Purge() {
	if m != nil {
		m.cache.Purge()
	}
}
