package Elevation

import (
	"sync"

	"elevation-platform/Geo"
)

// Blacklist 记录取数失败的瓦片键。被记录的键在图层重置前不会再次请求驱动。
// 键按 "tilekey_剖面签名" 存储，跨剖面拼装时不同剖面的同名键互不冲突。
type Blacklist struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

// NewBlacklist 创建黑名单
func NewBlacklist() *Blacklist {
	return &Blacklist{keys: make(map[string]struct{})}
}

func blacklistKey(key Geo.TileKey) string {
	return key.Str() + "_" + key.Profile().FullSignature()
}

// Add 将键加入黑名单
func (b *Blacklist) Add(key Geo.TileKey) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys[blacklistKey(key)] = struct{}{}
}

// Contains 键是否在黑名单中
func (b *Blacklist) Contains(key Geo.TileKey) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.keys[blacklistKey(key)]
	return ok
}

// Clear 清空黑名单（图层重置时调用）
func (b *Blacklist) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys = make(map[string]struct{})
}

// Len 当前记录数
func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.keys)
}
